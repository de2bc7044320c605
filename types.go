package samplefront

import (
	"time"

	"github.com/google/uuid"

	"github.com/samplefront/samplefront/internal/model"
)

// Sample is a promotional sample given to a customer.
type Sample struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	ProductID       uuid.UUID
	SalesRepID      uuid.UUID
	DateGiven       time.Time
	Quantity        int
	Feedback        *string
	ResultedInOrder bool
	OrderID         *uuid.UUID
	CreatedAt       time.Time
}

// Task is a follow-up task created by a trigger or by hand.
type Task struct {
	ID          uuid.UUID
	Type        string
	SampleID    *uuid.UUID
	OrderID     *uuid.UUID
	CustomerID  *uuid.UUID
	TriggerID   *uuid.UUID
	Priority    string
	Title       string
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// AttributionResult reports one attribution attempt. When Success is false,
// Reason holds the machine-readable cause (e.g. "outside_attribution_window").
type AttributionResult struct {
	Success          bool
	SampleID         *uuid.UUID
	Amount           int64
	DaysToConversion int
	Reason           string
}

func fromPublicSample(s Sample) model.SampleUsage {
	return model.SampleUsage{
		ID:              s.ID,
		CustomerID:      s.CustomerID,
		ProductID:       s.ProductID,
		SalesRepID:      s.SalesRepID,
		DateGiven:       s.DateGiven,
		Quantity:        s.Quantity,
		Feedback:        s.Feedback,
		ResultedInOrder: s.ResultedInOrder,
		OrderID:         s.OrderID,
		CreatedAt:       s.CreatedAt,
	}
}

func toPublicSample(s model.SampleUsage) Sample {
	return Sample{
		ID:              s.ID,
		CustomerID:      s.CustomerID,
		ProductID:       s.ProductID,
		SalesRepID:      s.SalesRepID,
		DateGiven:       s.DateGiven,
		Quantity:        s.Quantity,
		Feedback:        s.Feedback,
		ResultedInOrder: s.ResultedInOrder,
		OrderID:         s.OrderID,
		CreatedAt:       s.CreatedAt,
	}
}

func toPublicTask(t model.Task) Task {
	return Task{
		ID:          t.ID,
		Type:        string(t.Type),
		SampleID:    t.SampleID,
		OrderID:     t.OrderID,
		CustomerID:  t.CustomerID,
		TriggerID:   t.TriggerID,
		Priority:    string(t.Priority),
		Title:       t.Title,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
}

func toPublicAttribution(o model.AttributionOutcome) AttributionResult {
	return AttributionResult{
		Success:          o.Success,
		SampleID:         o.SampleID,
		Amount:           o.Amount,
		DaysToConversion: o.DaysToConversion,
		Reason:           string(o.Reason),
	}
}
