package orders

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

// PickupMode says how the patient receives the order.
type PickupMode string

const (
	PickupDelivery PickupMode = "delivery"
	PickupInStore  PickupMode = "pickup"
)

var (
	ErrNotFound          = errors.New("orders: order not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrEmptyItems        = errors.New("orders: order must have at least one item")
	ErrAddressRequired   = errors.New("orders: delivery orders require an address")
	ErrInvalidPickup     = errors.New("orders: pickup must be delivery or pickup")
	ErrAcceptInProgress  = errors.New("orders: accept already in progress")
)

// transitions enumerates the legal status edges. Rejected and completed
// are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusReady},
	StatusReady:     {StatusCompleted},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderItem is one requested medicine line on an order.
type OrderItem struct {
	Name             string `json:"name"`
	RequiredQuantity int64  `json:"requiredQuantity"`
}

// Order is a patient's medicine order against a single pharmacy.
type Order struct {
	ID          string      `json:"id"`
	PharmacyID  string      `json:"pharmacyId"`
	PatientID   string      `json:"patientId"`
	Items       []OrderItem `json:"items"`
	Status      Status      `json:"status"`
	Pickup      PickupMode  `json:"pickup"`
	Address     string      `json:"address,omitempty"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	ConfirmedAt *time.Time  `json:"confirmedAt,omitempty"`
	RejectedAt  *time.Time  `json:"rejectedAt,omitempty"`
	ReadyAt     *time.Time  `json:"readyAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	PharmacyID string
	PatientID  string
	Status     Status
	Limit      int32
	Offset     int32
}
