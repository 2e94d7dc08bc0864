package fulfillment

import "github.com/medilink-health/medilink/internal/matching"

// Candidate is one pharmacy to evaluate, with its distance from the
// patient as computed by the caller.
type Candidate struct {
	PharmacyID string  `json:"pharmacyId" validate:"required"`
	DistanceKm float64 `json:"distanceKm" validate:"gte=0"`
}

// SearchRequest is the POST /fulfillment/search body.
type SearchRequest struct {
	Lines         []matching.Line `json:"lines" validate:"required,min=1,dive"`
	Candidates    []Candidate     `json:"candidates" validate:"required,min=1,dive"`
	FullMatchOnly bool            `json:"fullMatchOnly"`
}

// PharmacyMatch pairs a candidate pharmacy with its match result.
type PharmacyMatch struct {
	PharmacyID string          `json:"pharmacyId"`
	DistanceKm float64         `json:"distanceKm"`
	Result     matching.Result `json:"matchResult"`
}

// SearchResponse lists pharmacies able to cover at least one line,
// best match first.
type SearchResponse struct {
	Pharmacies []PharmacyMatch `json:"pharmacies"`
}
