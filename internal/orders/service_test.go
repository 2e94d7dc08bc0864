package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medilink-health/medilink/internal/catalog"
	"github.com/medilink-health/medilink/internal/shared"
)

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[string]Order
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[string]Order)}
}

func (r *memoryOrderRepo) Create(ctx context.Context, order Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryOrderRepo) Get(ctx context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (r *memoryOrderRepo) UpdateStatus(ctx context.Context, orderID string, from, to Status) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if order.Status != from {
		return Order{}, ErrInvalidTransition
	}
	order.Status = to
	r.orders[orderID] = order
	return order, nil
}

func (r *memoryOrderRepo) List(ctx context.Context, filter ListFilter) ([]Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Order
	for _, order := range r.orders {
		if filter.PharmacyID != "" && order.PharmacyID != filter.PharmacyID {
			continue
		}
		if filter.PatientID != "" && order.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, order)
	}
	return result, int64(len(result)), nil
}

// fakeCatalog is a single-pharmacy stock keyed by medicine name. Each name
// maps to exactly one batch, decremented with the clamp-at-zero policy.
type fakeCatalog struct {
	mu        sync.Mutex
	stock     map[string]int64
	adjustErr error
}

func newFakeCatalog(stock map[string]int64) *fakeCatalog {
	return &fakeCatalog{stock: stock}
}

func (f *fakeCatalog) FindByNameFuzzy(ctx context.Context, pharmacyID, query string) (*catalog.AggregatedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.stock[query]
	if !ok {
		return nil, catalog.ErrNoMatch
	}
	return &catalog.AggregatedItem{
		PharmacyID: pharmacyID,
		Name:       query,
		Quantity:   qty,
		Batches:    []catalog.Batch{{ItemID: query, Quantity: qty}},
	}, nil
}

func (f *fakeCatalog) AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (catalog.CatalogItem, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjustErr != nil {
		return catalog.CatalogItem{}, 0, f.adjustErr
	}
	qty, ok := f.stock[itemID]
	if !ok {
		return catalog.CatalogItem{}, 0, catalog.ErrItemNotFound
	}
	next := qty + delta
	if next < 0 {
		next = 0
	}
	f.stock[itemID] = next
	return catalog.CatalogItem{ID: itemID, Quantity: next}, next - qty, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = struct{}{}
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func newTestService(repo RepositoryPort, cat CatalogPort) *Service {
	return NewService(repo, cat, newMemoryIdempotency(), nil)
}

func pendingOrder(id string, items ...OrderItem) Order {
	return Order{
		ID:         id,
		PharmacyID: "ph-1",
		PatientID:  "pat-1",
		Items:      items,
		Status:     StatusPending,
		Pickup:     PickupInStore,
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusConfirmed))
	require.True(t, CanTransition(StatusPending, StatusRejected))
	require.True(t, CanTransition(StatusConfirmed, StatusReady))
	require.True(t, CanTransition(StatusReady, StatusCompleted))

	require.False(t, CanTransition(StatusPending, StatusReady))
	require.False(t, CanTransition(StatusConfirmed, StatusCompleted))
	require.False(t, CanTransition(StatusRejected, StatusConfirmed))
	require.False(t, CanTransition(StatusCompleted, StatusPending))
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryOrderRepo(), newFakeCatalog(nil))
	ctx := context.Background()

	_, err := svc.Create(ctx, Order{Pickup: PickupInStore})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(ctx, Order{
		Items:  []OrderItem{{Name: "Paracetamol", RequiredQuantity: 0}},
		Pickup: PickupInStore,
	})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(ctx, Order{
		Items:  []OrderItem{{Name: "Paracetamol", RequiredQuantity: 2}},
		Pickup: PickupDelivery,
	})
	require.ErrorIs(t, err, ErrAddressRequired)

	_, err = svc.Create(ctx, Order{
		Items:  []OrderItem{{Name: "Paracetamol", RequiredQuantity: 2}},
		Pickup: "teleport",
	})
	require.ErrorIs(t, err, ErrInvalidPickup)
}

func TestCreateSetsPendingAndID(t *testing.T) {
	svc := newTestService(newMemoryOrderRepo(), newFakeCatalog(nil))

	order, err := svc.Create(context.Background(), Order{
		PharmacyID: "ph-1",
		PatientID:  "pat-1",
		Items:      []OrderItem{{Name: "Paracetamol", RequiredQuantity: 2}},
		Pickup:     PickupDelivery,
		Address:    "1 Main St",
	})
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)
	require.Equal(t, StatusPending, order.Status)
}

func TestAcceptDecrementsStock(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 50, "Amoxicillin": 20})
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1",
		OrderItem{Name: "Paracetamol", RequiredQuantity: 10},
		OrderItem{Name: "Amoxicillin", RequiredQuantity: 20},
	))
	require.NoError(t, err)

	order, report, err := svc.Accept(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, order.Status)
	require.True(t, report.Clean())
	require.Equal(t, int64(40), cat.stock["Paracetamol"])
	require.Zero(t, cat.stock["Amoxicillin"])
}

func TestAcceptReportsUnresolvedAndShortLines(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 4})
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1",
		OrderItem{Name: "Paracetamol", RequiredQuantity: 10},
		OrderItem{Name: "Warfarin", RequiredQuantity: 1},
	))
	require.NoError(t, err)

	order, report, err := svc.Accept(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, order.Status)
	require.False(t, report.Clean())

	require.Len(t, report.Short, 1)
	require.Equal(t, int64(4), report.Short[0].AppliedQuantity)
	require.Equal(t, int64(10), report.Short[0].RequiredQuantity)

	require.Len(t, report.Unresolved, 1)
	require.Equal(t, "Warfarin", report.Unresolved[0].Name)
	require.Zero(t, cat.stock["Paracetamol"])
}

func TestAcceptRequiresPending(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, newFakeCatalog(nil))
	ctx := context.Background()

	order := pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 1})
	order.Status = StatusConfirmed
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	_, _, err = svc.Accept(ctx, "ord-1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = svc.Accept(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptIsIdempotent(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 50})
	idem := newMemoryIdempotency()
	svc := NewService(repo, cat, idem, nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 10}))
	require.NoError(t, err)

	_, _, err = svc.Accept(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, int64(40), cat.stock["Paracetamol"])

	// The order is already confirmed, so a retry fails on status before
	// touching the guard or stock.
	_, _, err = svc.Accept(ctx, "ord-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, int64(40), cat.stock["Paracetamol"])
}

func TestAcceptGuardBlocksConcurrentRun(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 50})
	idem := newMemoryIdempotency()
	svc := NewService(repo, cat, idem, nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 10}))
	require.NoError(t, err)

	require.NoError(t, idem.CheckAndInsert(ctx, "orders:accept:ord-1"))

	_, _, err = svc.Accept(ctx, "ord-1")
	require.ErrorIs(t, err, ErrAcceptInProgress)
	require.Equal(t, int64(50), cat.stock["Paracetamol"])
}

func TestConcurrentAcceptsDrainStockToZero(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 5})
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 3}))
	require.NoError(t, err)
	_, err = repo.Create(ctx, pendingOrder("ord-2", OrderItem{Name: "Paracetamol", RequiredQuantity: 3}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	reports := make([]AcceptReport, 2)
	for i, id := range []string{"ord-1", "ord-2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, report, err := svc.Accept(ctx, id)
			require.NoError(t, err)
			require.Equal(t, StatusConfirmed, order.Status)
			reports[i] = report
		}()
	}
	wg.Wait()

	// 5 units cannot cover 6 requested: both orders confirm, stock hits
	// zero without going negative, and exactly one order reports a
	// one-unit shortfall.
	require.Zero(t, cat.stock["Paracetamol"])
	var shortfall int64
	for _, report := range reports {
		for _, line := range report.Short {
			shortfall += line.RequiredQuantity - line.AppliedQuantity
		}
	}
	require.Equal(t, int64(1), shortfall)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 50})
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 1}))
	require.NoError(t, err)

	_, err = svc.MarkReady(ctx, "ord-1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = svc.Accept(ctx, "ord-1")
	require.NoError(t, err)

	order, err := svc.MarkReady(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusReady, order.Status)

	order, err = svc.Complete(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, order.Status)

	_, err = svc.Complete(ctx, "ord-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectLeavesStockUntouched(t *testing.T) {
	repo := newMemoryOrderRepo()
	cat := newFakeCatalog(map[string]int64{"Paracetamol": 50})
	svc := newTestService(repo, cat)
	ctx := context.Background()

	_, err := repo.Create(ctx, pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 10}))
	require.NoError(t, err)

	order, err := svc.Reject(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, order.Status)
	require.Equal(t, int64(50), cat.stock["Paracetamol"])

	_, _, err = svc.Accept(ctx, "ord-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListFilters(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, newFakeCatalog(nil))
	ctx := context.Background()

	o1 := pendingOrder("ord-1", OrderItem{Name: "Paracetamol", RequiredQuantity: 1})
	o2 := pendingOrder("ord-2", OrderItem{Name: "Ibuprofen", RequiredQuantity: 1})
	o2.PatientID = "pat-2"
	o2.Status = StatusRejected
	_, err := repo.Create(ctx, o1)
	require.NoError(t, err)
	_, err = repo.Create(ctx, o2)
	require.NoError(t, err)

	orders, total, err := svc.List(ctx, ListFilter{PharmacyID: "ph-1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, orders, 2)

	orders, total, err = svc.List(ctx, ListFilter{Status: StatusRejected})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "ord-2", orders[0].ID)
}
