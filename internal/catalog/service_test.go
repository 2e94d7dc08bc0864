package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu    sync.Mutex
	items map[string]CatalogItem
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]CatalogItem)}
}

func (r *memoryRepo) Upsert(ctx context.Context, item CatalogItem) (CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[item.ID]; ok && existing.PharmacyID != item.PharmacyID {
		return CatalogItem{}, ErrItemNotFound
	}
	if existing, ok := r.items[item.ID]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = time.Now()
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) Get(ctx context.Context, pharmacyID, itemID string) (CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok || item.PharmacyID != pharmacyID {
		return CatalogItem{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) List(ctx context.Context, pharmacyID string) ([]CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []CatalogItem
	for _, item := range r.items {
		if item.PharmacyID == pharmacyID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (r *memoryRepo) DeleteByNameBrand(ctx context.Context, pharmacyID, name, brand string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, item := range r.items {
		if item.PharmacyID != pharmacyID {
			continue
		}
		if !equalFold(item.Name, name) {
			continue
		}
		if brand != "" && !equalFold(item.Brand, brand) {
			continue
		}
		delete(r.items, id)
		deleted++
	}
	return deleted, nil
}

func (r *memoryRepo) AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (CatalogItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok || item.PharmacyID != pharmacyID {
		return CatalogItem{}, 0, ErrItemNotFound
	}
	prev := item.Quantity
	next := prev + delta
	if next < 0 {
		next = 0
	}
	item.Quantity = next
	item.UpdatedAt = time.Now()
	r.items[itemID] = item
	return item, next - prev, nil
}

func (r *memoryRepo) SetQuantity(ctx context.Context, pharmacyID, itemID string, quantity int64) (CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok || item.PharmacyID != pharmacyID {
		return CatalogItem{}, ErrItemNotFound
	}
	item.Quantity = quantity
	r.items[itemID] = item
	return item, nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, item := range r.items {
		if item.ExpiryDate != nil && item.ExpiryDate.Before(asOf) {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := make(map[string]*LowStockRow)
	for _, item := range r.items {
		key := item.PharmacyID + "\x00" + item.Name + "\x00" + item.Brand
		row, ok := totals[key]
		if !ok {
			row = &LowStockRow{PharmacyID: item.PharmacyID, Name: item.Name, Brand: item.Brand}
			totals[key] = row
		}
		row.Quantity += item.Quantity
	}
	var result []LowStockRow
	for _, row := range totals {
		if row.Quantity <= threshold {
			result = append(result, *row)
		}
	}
	return result, nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func newTestService(repo RepositoryPort) *Service {
	return NewService(repo, nil, nil, nil, ServiceConfig{LowStockThreshold: 10})
}

func TestUpsertItemValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{Name: "  "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{Name: "Paracetamol", Price: -1})
	require.ErrorIs(t, err, ErrNegativePrice)

	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{Name: "Paracetamol", Quantity: -5})
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestUpsertItemAssignsID(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	item, err := svc.UpsertItem(context.Background(), "ph-1", CatalogItem{Name: "Paracetamol", Quantity: 10})
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)
	require.Equal(t, "ph-1", item.PharmacyID)
}

func TestAggregatesSumQuantities(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	soon := time.Now().AddDate(0, 1, 0)
	later := time.Now().AddDate(1, 0, 0)
	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Brand: "Panadol", Price: 3.00, Quantity: 30, ExpiryDate: &later})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b2", Name: "paracetamol", Brand: "panadol", Price: 4.00, Quantity: 20, ExpiryDate: &soon})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b3", Name: "Ibuprofen", Brand: "Nurofen", Price: 5.00, Quantity: 8})
	require.NoError(t, err)

	aggs, err := svc.Aggregates(ctx, "ph-1")
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	// Sorted by name, so Ibuprofen first.
	require.Equal(t, "Ibuprofen", aggs[0].Name)
	require.True(t, aggs[0].LowStock)

	para := aggs[1]
	require.Equal(t, int64(50), para.Quantity)
	require.InDelta(t, 3.50, para.AvgPrice, 0.001)
	require.False(t, para.LowStock)
	require.Len(t, para.Batches, 2)
	// Earliest expiry consumed first.
	require.Equal(t, "b2", para.Batches[0].ItemID)
	require.NotNil(t, para.EarliestExpiry)
	require.WithinDuration(t, soon, *para.EarliestExpiry, time.Second)
}

func TestDeleteByNameBrand(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Brand: "Panadol", Quantity: 30})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b2", Name: "Paracetamol", Brand: "Panadol", Quantity: 20})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b3", Name: "Paracetamol", Brand: "Calpol", Quantity: 10})
	require.NoError(t, err)

	deleted, err := svc.DeleteByNameBrand(ctx, "ph-1", "paracetamol", "PANADOL")
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	aggs, err := svc.Aggregates(ctx, "ph-1")
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	require.Equal(t, "Calpol", aggs[0].Brand)

	_, err = svc.DeleteByNameBrand(ctx, "ph-1", "", "")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestAdjustQuantityClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Quantity: 5})
	require.NoError(t, err)

	item, applied, err := svc.AdjustQuantity(ctx, "ph-1", "b1", -8)
	require.NoError(t, err)
	require.Zero(t, item.Quantity)
	require.Equal(t, int64(-5), applied)

	item, applied, err = svc.AdjustQuantity(ctx, "ph-1", "b1", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), item.Quantity)
	require.Equal(t, int64(3), applied)

	_, _, err = svc.AdjustQuantity(ctx, "ph-1", "missing", -1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestConcurrentAdjustNeverGoesNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Quantity: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	applieds := make([]int64, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := svc.AdjustQuantity(ctx, "ph-1", "b1", -3)
			require.NoError(t, err)
			applieds[i] = applied
		}()
	}
	wg.Wait()

	item, err := svc.GetItem(ctx, "ph-1", "b1")
	require.NoError(t, err)
	require.Zero(t, item.Quantity)
	require.Equal(t, int64(-5), applieds[0]+applieds[1])
}

func TestFindByNameFuzzy(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol 500mg", Brand: "Panadol", Quantity: 50})
	require.NoError(t, err)

	found, err := svc.FindByNameFuzzy(ctx, "ph-1", "paracetamol")
	require.NoError(t, err)
	require.Equal(t, "Paracetamol 500mg", found.Name)
	require.Equal(t, int64(50), found.Quantity)

	_, err = svc.FindByNameFuzzy(ctx, "ph-1", "warfarin")
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = svc.FindByNameFuzzy(ctx, "ph-1", "  ")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestSweepExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	past := time.Now().AddDate(0, 0, -1)
	future := time.Now().AddDate(0, 6, 0)
	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Quantity: 10, ExpiryDate: &past})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b2", Name: "Paracetamol", Quantity: 20, ExpiryDate: &future})
	require.NoError(t, err)

	deleted, err := svc.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	items, err := svc.ListItems(ctx, "ph-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "b2", items[0].ID)
}

func TestLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b1", Name: "Paracetamol", Quantity: 4})
	require.NoError(t, err)
	_, err = svc.UpsertItem(ctx, "ph-1", CatalogItem{ID: "b2", Name: "Ibuprofen", Quantity: 400})
	require.NoError(t, err)

	rows, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Paracetamol", rows[0].Name)
}
