package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medilink-health/medilink/internal/matching"
	"github.com/medilink-health/medilink/internal/observability"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Upsert(ctx context.Context, item CatalogItem) (CatalogItem, error)
	Get(ctx context.Context, pharmacyID, itemID string) (CatalogItem, error)
	List(ctx context.Context, pharmacyID string) ([]CatalogItem, error)
	DeleteByNameBrand(ctx context.Context, pharmacyID, name, brand string) (int64, error)
	AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (CatalogItem, int64, error)
	SetQuantity(ctx context.Context, pharmacyID, itemID string, quantity int64) (CatalogItem, error)
	DeleteExpired(ctx context.Context, asOf time.Time) (int64, error)
	ListLowStock(ctx context.Context, threshold int64) ([]LowStockRow, error)
}

// CacheInvalidator bumps cached fulfillment results after stock mutations.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int64
}

// Service coordinates catalog operations for a pharmacy.
type Service struct {
	repo        RepositoryPort
	matcher     *matching.Matcher
	invalidator CacheInvalidator
	metrics     *observability.Metrics
	threshold   int64
}

// NewService builds Service. invalidator and metrics may be nil.
func NewService(repo RepositoryPort, matcher *matching.Matcher, invalidator CacheInvalidator, metrics *observability.Metrics, cfg ServiceConfig) *Service {
	if matcher == nil {
		matcher = matching.NewMatcher(nil)
	}
	return &Service{
		repo:        repo,
		matcher:     matcher,
		invalidator: invalidator,
		metrics:     metrics,
		threshold:   cfg.LowStockThreshold,
	}
}

// UpsertItem validates and stores a batch. A missing id gets a fresh one.
func (s *Service) UpsertItem(ctx context.Context, pharmacyID string, item CatalogItem) (CatalogItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return CatalogItem{}, ErrNameRequired
	}
	if item.Price < 0 {
		return CatalogItem{}, ErrNegativePrice
	}
	if item.Quantity < 0 {
		return CatalogItem{}, ErrNegativeQuantity
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.PharmacyID = pharmacyID
	saved, err := s.repo.Upsert(ctx, item)
	if err != nil {
		return CatalogItem{}, fmt.Errorf("upsert item: %w", err)
	}
	s.bump(ctx)
	return saved, nil
}

// GetItem fetches one batch.
func (s *Service) GetItem(ctx context.Context, pharmacyID, itemID string) (CatalogItem, error) {
	return s.repo.Get(ctx, pharmacyID, itemID)
}

// ListItems returns the raw batch rows for the pharmacy stock screen.
func (s *Service) ListItems(ctx context.Context, pharmacyID string) ([]CatalogItem, error) {
	return s.repo.List(ctx, pharmacyID)
}

// Aggregates returns the logical stock rows, one per (name, brand) pair.
func (s *Service) Aggregates(ctx context.Context, pharmacyID string) ([]AggregatedItem, error) {
	items, err := s.repo.List(ctx, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return Aggregate(items, s.threshold), nil
}

// DeleteByNameBrand removes an entire aggregated row; with an empty brand it
// removes all brands of the name.
func (s *Service) DeleteByNameBrand(ctx context.Context, pharmacyID, name, brand string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrNameRequired
	}
	deleted, err := s.repo.DeleteByNameBrand(ctx, pharmacyID, name, brand)
	if err != nil {
		return 0, fmt.Errorf("delete by name+brand: %w", err)
	}
	if deleted > 0 {
		s.bump(ctx)
	}
	return deleted, nil
}

// AdjustQuantity applies a delta with the clamp-at-zero policy and returns
// the updated batch plus the delta actually applied. Concurrent decrements
// on the same batch never lose an update and never go negative; flooring is
// preferred over failing because partial fulfillment is an accepted outcome.
func (s *Service) AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (CatalogItem, int64, error) {
	item, applied, err := s.repo.AdjustQuantity(ctx, pharmacyID, itemID, delta)
	if err != nil {
		return CatalogItem{}, 0, err
	}
	if applied != delta {
		s.metrics.IncStockClamp()
	}
	s.bump(ctx)
	return item, applied, nil
}

// SetQuantity stores an absolute quantity.
func (s *Service) SetQuantity(ctx context.Context, pharmacyID, itemID string, quantity int64) (CatalogItem, error) {
	if quantity < 0 {
		return CatalogItem{}, ErrNegativeQuantity
	}
	item, err := s.repo.SetQuantity(ctx, pharmacyID, itemID, quantity)
	if err != nil {
		return CatalogItem{}, err
	}
	s.bump(ctx)
	return item, nil
}

// FindByNameFuzzy resolves a free-text name to the best aggregated row.
// Returns ErrNoMatch when nothing matches.
func (s *Service) FindByNameFuzzy(ctx context.Context, pharmacyID, query string) (*AggregatedItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrNameRequired
	}
	aggregates, err := s.Aggregates(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	stock := make([]matching.StockEntry, len(aggregates))
	for i, agg := range aggregates {
		stock[i] = matching.StockEntry{Name: agg.Name, Brand: agg.Brand, Available: agg.Quantity}
	}
	idx, ok := s.matcher.Best(query, stock)
	if !ok {
		return nil, ErrNoMatch
	}
	found := aggregates[idx]
	return &found, nil
}

// SweepExpired deletes batches past their expiry date. Used by the nightly
// maintenance job.
func (s *Service) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	if deleted > 0 {
		s.bump(ctx)
	}
	return deleted, nil
}

// LowStock lists aggregated rows at or below threshold. A threshold of
// zero or less falls back to the configured default.
func (s *Service) LowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	return s.repo.ListLowStock(ctx, threshold)
}

// bump invalidates downstream fulfillment caches. Failures are deliberately
// swallowed: a stale cache entry expires on its own TTL.
func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Bump(ctx)
}
