package orders

// CreateOrderItem is one requested line in a create request.
type CreateOrderItem struct {
	Name             string `json:"name" validate:"required,max=200"`
	RequiredQuantity int64  `json:"requiredQuantity" validate:"required,gt=0"`
}

// CreateOrderRequest is the POST /orders body.
type CreateOrderRequest struct {
	PharmacyID string            `json:"pharmacyId" validate:"required"`
	PatientID  string            `json:"patientId" validate:"required"`
	Items      []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
	Pickup     string            `json:"pickup" validate:"required,oneof=delivery pickup"`
	Address    string            `json:"address" validate:"required_if=Pickup delivery,max=500"`
	Note       string            `json:"note" validate:"max=1000"`
}

// AcceptOrderResponse returns the confirmed order along with anything
// stock could not cover.
type AcceptOrderResponse struct {
	Order  Order        `json:"order"`
	Report AcceptReport `json:"report"`
}

// ListOrdersResponse pages orders.
type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
}
