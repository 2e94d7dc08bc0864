package catalog

import (
	"math"
	"sort"
	"strings"
)

// Aggregate folds batch-level items into one logical row per (name, brand)
// pair. Grouping is case-insensitive; the first batch's spelling wins for
// display. The invariant callers rely on: the aggregated quantity equals the
// sum of the underlying batch quantities.
func Aggregate(items []CatalogItem, lowStockThreshold int64) []AggregatedItem {
	type bucket struct {
		agg        AggregatedItem
		priceSum   float64
		priceCount int
		categories map[string]struct{}
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0, len(items))

	for _, item := range items {
		key := strings.ToLower(item.Name) + "\x00" + strings.ToLower(item.Brand)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				agg: AggregatedItem{
					PharmacyID: item.PharmacyID,
					Name:       item.Name,
					Brand:      item.Brand,
				},
				categories: make(map[string]struct{}),
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.agg.Quantity += item.Quantity
		b.priceSum += item.Price
		b.priceCount++
		if item.Category != "" {
			b.categories[item.Category] = struct{}{}
		}
		if item.ExpiryDate != nil {
			if b.agg.EarliestExpiry == nil || item.ExpiryDate.Before(*b.agg.EarliestExpiry) {
				expiry := *item.ExpiryDate
				b.agg.EarliestExpiry = &expiry
			}
		}
		b.agg.Batches = append(b.agg.Batches, Batch{ItemID: item.ID, Quantity: item.Quantity, ExpiryDate: item.ExpiryDate})
	}

	result := make([]AggregatedItem, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		if b.priceCount > 0 {
			b.agg.AvgPrice = roundCents(b.priceSum / float64(b.priceCount))
		}
		for category := range b.categories {
			b.agg.Categories = append(b.agg.Categories, category)
		}
		sort.Strings(b.agg.Categories)
		sortBatchesByExpiry(b.agg.Batches)
		b.agg.LowStock = lowStockThreshold > 0 && b.agg.Quantity <= lowStockThreshold
		result = append(result, b.agg)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Brand < result[j].Brand
	})
	return result
}

// sortBatchesByExpiry orders batches earliest expiry first; batches without
// an expiry date go last so dated stock is consumed before undated stock.
func sortBatchesByExpiry(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i].ExpiryDate, batches[j].ExpiryDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
