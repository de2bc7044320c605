package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskType enumerates follow-up work item kinds, one per trigger type.
type TaskType string

const (
	TaskSampleFollowup  TaskType = "sample_followup"
	TaskOrderFollowup   TaskType = "order_followup"
	TaskCustomerContact TaskType = "customer_contact"
	TaskBurnRateAlert   TaskType = "burn_rate_alert"
)

// TaskPriority is the urgency band a task is filed under.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Task is a unit of follow-up work produced by trigger evaluation.
//
// Exactly one reference entity is populated per type: sample_followup
// references the sample, order_followup the order (plus the customer id as
// display context), customer_contact and burn_rate_alert the customer.
// For a given (reference entity, type) pair at most one incomplete task may
// exist at any time; completed tasks for the same pair may accumulate.
type Task struct {
	ID   uuid.UUID `json:"id"`
	Type TaskType  `json:"type"`

	SampleID   *uuid.UUID `json:"sample_id,omitempty"`
	OrderID    *uuid.UUID `json:"order_id,omitempty"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`

	// TriggerID records which definition emitted the task, when any did.
	TriggerID *uuid.UUID `json:"trigger_id,omitempty"`

	Priority TaskPriority `json:"priority"`
	Title    string       `json:"title"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EntityRef returns the reference entity id used as the dedup key together
// with the task type. Order followups dedup on the order, not the customer.
func (t Task) EntityRef() uuid.UUID {
	switch t.Type {
	case TaskSampleFollowup:
		if t.SampleID != nil {
			return *t.SampleID
		}
	case TaskOrderFollowup:
		if t.OrderID != nil {
			return *t.OrderID
		}
	case TaskCustomerContact, TaskBurnRateAlert:
		if t.CustomerID != nil {
			return *t.CustomerID
		}
	}
	return uuid.Nil
}

// Validate checks the reference shape for the task's type.
func (t Task) Validate() error {
	switch t.Type {
	case TaskSampleFollowup:
		if t.SampleID == nil {
			return &ValidationError{Field: "sample_id", Reason: "required for sample_followup"}
		}
	case TaskOrderFollowup:
		if t.OrderID == nil {
			return &ValidationError{Field: "order_id", Reason: "required for order_followup"}
		}
	case TaskCustomerContact, TaskBurnRateAlert:
		if t.CustomerID == nil {
			return &ValidationError{Field: "customer_id", Reason: "required for " + string(t.Type)}
		}
	default:
		return &ValidationError{Field: "type", Reason: "unknown task type"}
	}
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	return nil
}
