package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus enumerates the order lifecycle states owned by the
// order-management collaborator. Only completed orders participate in
// attribution and revenue totals.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// CustomerOrder is a commercial order. This core only reads it.
// TotalValue is in minor currency units (cents).
type CustomerOrder struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	OrderDate  time.Time   `json:"order_date"`
	TotalValue int64       `json:"total_value"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Validate checks order fields read from collaborators before they enter
// attribution. Orders are never silently corrected.
func (o CustomerOrder) Validate() error {
	if o.CustomerID == uuid.Nil {
		return &ValidationError{Field: "customer_id", Reason: "required"}
	}
	if o.TotalValue < 0 {
		return &ValidationError{Field: "total_value", Reason: "must be non-negative"}
	}
	switch o.Status {
	case OrderPending, OrderCompleted, OrderCancelled:
	default:
		return &ValidationError{Field: "status", Reason: "unknown status"}
	}
	return nil
}
