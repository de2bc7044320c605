package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxFeedbackLen bounds the free-text feedback recorded with a sample.
const MaxFeedbackLen = 5000

// SampleUsage is a promotional sample given to a customer.
//
// Attribution fields are mutated at most once, by the attribution engine:
// OrderID is set if and only if ResultedInOrder is true, and once set both
// are immutable (re-attribution corrections are out of scope).
type SampleUsage struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ProductID  uuid.UUID `json:"product_id"`
	SalesRepID uuid.UUID `json:"sales_rep_id"`
	DateGiven  time.Time `json:"date_given"`
	Quantity   int       `json:"quantity"`
	Feedback   *string   `json:"feedback,omitempty"`

	ResultedInOrder bool       `json:"resulted_in_order"`
	OrderID         *uuid.UUID `json:"order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the sample against the input rules: required references,
// positive quantity, bounded feedback, and a date within [epoch, now].
func (s SampleUsage) Validate(now, epoch time.Time) error {
	if s.CustomerID == uuid.Nil {
		return &ValidationError{Field: "customer_id", Reason: "required"}
	}
	if s.ProductID == uuid.Nil {
		return &ValidationError{Field: "product_id", Reason: "required"}
	}
	if s.SalesRepID == uuid.Nil {
		return &ValidationError{Field: "sales_rep_id", Reason: "required"}
	}
	if s.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if s.Feedback != nil && len(*s.Feedback) > MaxFeedbackLen {
		return &ValidationError{Field: "feedback", Reason: "exceeds maximum length"}
	}
	if s.DateGiven.After(now) {
		return &ValidationError{Field: "date_given", Reason: "in the future"}
	}
	if s.DateGiven.Before(epoch) {
		return &ValidationError{Field: "date_given", Reason: "before configured epoch"}
	}
	if s.ResultedInOrder != (s.OrderID != nil) {
		return &ValidationError{Field: "order_id", Reason: "must be set exactly when resulted_in_order is true"}
	}
	return nil
}
