package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the read-only slice of the customer record this core needs:
// contact recency for customer_timing triggers and the days-of-supply
// estimate for burn_rate_alert triggers.
type Customer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	LastContactDate *time.Time `json:"last_contact_date,omitempty"`

	// EstimatedBurnRateDays is days of supply remaining. Smaller is worse.
	// Nil when no ordering pattern exists yet.
	EstimatedBurnRateDays *int `json:"estimated_burn_rate_days,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
