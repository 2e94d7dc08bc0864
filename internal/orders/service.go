package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medilink-health/medilink/internal/catalog"
	"github.com/medilink-health/medilink/internal/observability"
	"github.com/medilink-health/medilink/internal/shared"
)

// RepositoryPort is what the service needs from order storage.
type RepositoryPort interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to Status) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)
}

// CatalogPort is the slice of the catalog service used during accept.
type CatalogPort interface {
	FindByNameFuzzy(ctx context.Context, pharmacyID, query string) (*catalog.AggregatedItem, error)
	AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (catalog.CatalogItem, int64, error)
}

// IdempotencyPort guards accept against concurrent and repeated runs.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the order lifecycle.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	idempotency IdempotencyPort
	metrics     *observability.Metrics
}

// NewService constructs Service.
func NewService(repo RepositoryPort, catalogPort CatalogPort, idempotency IdempotencyPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, catalog: catalogPort, idempotency: idempotency, metrics: metrics}
}

// UnresolvedLine is an order line no catalog entry matched.
type UnresolvedLine struct {
	Name             string `json:"name"`
	RequiredQuantity int64  `json:"requiredQuantity"`
	Reason           string `json:"reason"`
}

// ShortLine is an order line only partially covered by stock.
type ShortLine struct {
	Name             string `json:"name"`
	RequiredQuantity int64  `json:"requiredQuantity"`
	AppliedQuantity  int64  `json:"appliedQuantity"`
}

// AcceptReport records what accept could not fully satisfy.
type AcceptReport struct {
	Unresolved []UnresolvedLine `json:"unresolved,omitempty"`
	Short      []ShortLine      `json:"short,omitempty"`
}

// Clean reports whether every line was fully decremented.
func (r AcceptReport) Clean() bool {
	return len(r.Unresolved) == 0 && len(r.Short) == 0
}

// Create places a new pending order for the patient.
func (s *Service) Create(ctx context.Context, order Order) (Order, error) {
	if len(order.Items) == 0 {
		return Order{}, ErrEmptyItems
	}
	for _, line := range order.Items {
		if strings.TrimSpace(line.Name) == "" || line.RequiredQuantity <= 0 {
			return Order{}, ErrEmptyItems
		}
	}
	switch order.Pickup {
	case PickupDelivery:
		if strings.TrimSpace(order.Address) == "" {
			return Order{}, ErrAddressRequired
		}
	case PickupInStore:
	default:
		return Order{}, ErrInvalidPickup
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Status = StatusPending
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, fmt.Errorf("orders: create: %w", err)
	}
	return created, nil
}

// Accept confirms a pending order and decrements stock best effort, line
// by line. Lines the catalog cannot resolve or cover fully are reported
// rather than failing the accept. The idempotency key prevents a retry
// from decrementing stock twice.
func (s *Service) Accept(ctx context.Context, orderID string) (Order, AcceptReport, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, AcceptReport{}, err
	}
	if order.Status != StatusPending {
		return Order{}, AcceptReport{}, ErrInvalidTransition
	}

	key := "orders:accept:" + orderID
	if err := s.idempotency.CheckAndInsert(ctx, key); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return Order{}, AcceptReport{}, ErrAcceptInProgress
		}
		return Order{}, AcceptReport{}, fmt.Errorf("orders: accept guard: %w", err)
	}

	report := s.decrementLines(ctx, order)

	confirmed, err := s.repo.UpdateStatus(ctx, orderID, StatusPending, StatusConfirmed)
	if err != nil {
		// Stock is already decremented. Release the guard so a retry
		// after manual reconciliation is possible.
		_ = s.idempotency.Delete(ctx, key)
		return Order{}, AcceptReport{}, err
	}

	s.metrics.IncOrderAccepted()
	if !report.Clean() {
		s.metrics.IncPartialFulfillment()
	}
	return confirmed, report, nil
}

func (s *Service) decrementLines(ctx context.Context, order Order) AcceptReport {
	var report AcceptReport
	for _, line := range order.Items {
		agg, err := s.catalog.FindByNameFuzzy(ctx, order.PharmacyID, line.Name)
		if err != nil {
			reason := "no matching catalog entry"
			if !errors.Is(err, catalog.ErrNoMatch) {
				reason = "catalog lookup failed"
			}
			report.Unresolved = append(report.Unresolved, UnresolvedLine{
				Name:             line.Name,
				RequiredQuantity: line.RequiredQuantity,
				Reason:           reason,
			})
			continue
		}

		// Batches are ordered earliest expiry first, so the soonest to
		// expire stock is consumed before the rest.
		remaining := line.RequiredQuantity
		for _, batch := range agg.Batches {
			if remaining <= 0 {
				break
			}
			_, applied, err := s.catalog.AdjustQuantity(ctx, order.PharmacyID, batch.ItemID, -remaining)
			if err != nil {
				continue
			}
			remaining += applied
		}
		if remaining > 0 {
			report.Short = append(report.Short, ShortLine{
				Name:             line.Name,
				RequiredQuantity: line.RequiredQuantity,
				AppliedQuantity:  line.RequiredQuantity - remaining,
			})
		}
	}
	return report
}

// Reject declines a pending order. Stock is untouched.
func (s *Service) Reject(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusPending, StatusRejected)
}

// MarkReady flags a confirmed order as prepared for handover.
func (s *Service) MarkReady(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusConfirmed, StatusReady)
}

// Complete closes a ready order after pickup or delivery.
func (s *Service) Complete(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusReady, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, orderID string, from, to Status) (Order, error) {
	if !CanTransition(from, to) {
		return Order{}, ErrInvalidTransition
	}
	return s.repo.UpdateStatus(ctx, orderID, from, to)
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.repo.Get(ctx, orderID)
}

// List returns orders matching filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int64, error) {
	return s.repo.List(ctx, filter)
}
