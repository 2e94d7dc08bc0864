// Package catalog owns the per-pharmacy drug catalog: batch-level items,
// name+brand aggregation and atomic quantity adjustments.
package catalog

import (
	"errors"
	"time"
)

// CatalogItem is one physical stock batch held by a pharmacy. Several
// batches of the same drug may coexist; matching and display always operate
// on the aggregated view.
type CatalogItem struct {
	ID         string     `json:"id"`
	PharmacyID string     `json:"pharmacyId"`
	Name       string     `json:"name"`
	Brand      string     `json:"brand,omitempty"`
	Category   string     `json:"category,omitempty"`
	Price      float64    `json:"price"`
	Quantity   int64      `json:"quantity"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Batch is the slice of a physical batch the aggregation exposes to callers
// that need to walk batches in consumption order.
type Batch struct {
	ItemID     string     `json:"itemId"`
	Quantity   int64      `json:"quantity"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// AggregatedItem is the pharmacy's total stock for one (name, brand) pair:
// quantities summed, price averaged, categories unioned, earliest expiry
// kept. Batches are ordered earliest expiry first so decrements consume the
// oldest stock.
type AggregatedItem struct {
	PharmacyID     string     `json:"pharmacyId"`
	Name           string     `json:"name"`
	Brand          string     `json:"brand,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Quantity       int64      `json:"quantity"`
	AvgPrice       float64    `json:"avgPrice"`
	EarliestExpiry *time.Time `json:"earliestExpiry,omitempty"`
	LowStock       bool       `json:"lowStock"`
	Batches        []Batch    `json:"batches"`
}

// LowStockRow is one aggregated row whose total quantity fell to or below
// the configured threshold. Consumed by the background low-stock scan.
type LowStockRow struct {
	PharmacyID string `json:"pharmacyId"`
	Name       string `json:"name"`
	Brand      string `json:"brand,omitempty"`
	Quantity   int64  `json:"quantity"`
}

var (
	// ErrItemNotFound indicates an unknown item id for the pharmacy.
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrNoMatch indicates the fuzzy lookup found no aggregated row.
	ErrNoMatch = errors.New("catalog: no matching item")
	// ErrNameRequired indicates a missing item or query name.
	ErrNameRequired = errors.New("catalog: name is required")
	// ErrNegativePrice rejects items priced below zero.
	ErrNegativePrice = errors.New("catalog: price must be >= 0")
	// ErrNegativeQuantity rejects absolute quantities below zero.
	ErrNegativeQuantity = errors.New("catalog: quantity must be >= 0")
)
