package catalog

import "time"

type UpsertItemRequest struct {
	ID         string     `json:"id,omitempty" validate:"omitempty,uuid"`
	Name       string     `json:"name" validate:"required,max=200"`
	Brand      string     `json:"brand,omitempty" validate:"max=200"`
	Category   string     `json:"category,omitempty" validate:"max=100"`
	Price      float64    `json:"price" validate:"gte=0"`
	Quantity   int64      `json:"quantity" validate:"gte=0"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

type AdjustQuantityRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

type SetQuantityRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type AdjustQuantityResponse struct {
	Item CatalogItem `json:"item"`
	// Applied is the delta actually written; it differs from the requested
	// delta when the quantity was clamped at zero.
	Applied int64 `json:"applied"`
}

type DeleteByNameBrandResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

type ListItemsResponse struct {
	Items []CatalogItem `json:"items"`
}

type AggregatesResponse struct {
	Items []AggregatedItem `json:"items"`
}
