package model

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates the supported automated trigger rules.
type TriggerType string

const (
	TriggerSampleNoOrder      TriggerType = "sample_no_order"
	TriggerFirstOrderFollowup TriggerType = "first_order_followup"
	TriggerCustomerTiming     TriggerType = "customer_timing"
	TriggerBurnRateAlert      TriggerType = "burn_rate_alert"
)

// TriggerConditions carries the type-specific rule parameters. Exactly one
// field is meaningful per TriggerType; the rest are zero. This replaces the
// free-form condition map with a tagged union keyed by TriggerType.
type TriggerConditions struct {
	DaysAfterSample      int `json:"days_after_sample,omitempty"`
	DaysAfterOrder       int `json:"days_after_order,omitempty"`
	DaysSinceLastContact int `json:"days_since_last_contact,omitempty"`
	ThresholdDays        int `json:"threshold_days,omitempty"`
}

// ActionPayload describes the task a trigger emits. Missing fields fall
// back to medium priority and a type-generic title at evaluation time.
type ActionPayload struct {
	Priority TaskPriority `json:"priority,omitempty"`
	Title    string       `json:"title,omitempty"`
}

// DedupPolicy controls whether a trigger suppresses cohort members that
// already have an open task. The per-type default keeps every trigger
// deduplicated; DedupOff makes a trigger re-fire on every evaluation pass
// once its previous task is completed or when none is tracked.
type DedupPolicy string

const (
	DedupDefault DedupPolicy = ""
	DedupOn      DedupPolicy = "on"
	DedupOff     DedupPolicy = "off"
)

// TriggerDefinition is a configured rule. Conditions are never edited by
// evaluation; only IsActive is mutated by this core (SetActive).
type TriggerDefinition struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Type       TriggerType       `json:"trigger_type"`
	Conditions TriggerConditions `json:"conditions"`
	Action     ActionPayload     `json:"action"`
	Dedup      DedupPolicy       `json:"dedup,omitempty"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TaskType returns the task type a trigger of this type emits.
// Each trigger type produces tasks into a disjoint type space.
func (t TriggerType) TaskType() TaskType {
	switch t {
	case TriggerSampleNoOrder:
		return TaskSampleFollowup
	case TriggerFirstOrderFollowup:
		return TaskOrderFollowup
	case TriggerCustomerTiming:
		return TaskCustomerContact
	case TriggerBurnRateAlert:
		return TaskBurnRateAlert
	default:
		return ""
	}
}

// Validate checks that the definition names a known type and carries the
// parameter that type requires.
func (d TriggerDefinition) Validate() error {
	switch d.Type {
	case TriggerSampleNoOrder:
		if d.Conditions.DaysAfterSample <= 0 {
			return &ValidationError{Field: "conditions.days_after_sample", Reason: "must be positive"}
		}
	case TriggerFirstOrderFollowup:
		if d.Conditions.DaysAfterOrder <= 0 {
			return &ValidationError{Field: "conditions.days_after_order", Reason: "must be positive"}
		}
	case TriggerCustomerTiming:
		if d.Conditions.DaysSinceLastContact <= 0 {
			return &ValidationError{Field: "conditions.days_since_last_contact", Reason: "must be positive"}
		}
	case TriggerBurnRateAlert:
		if d.Conditions.ThresholdDays <= 0 {
			return &ValidationError{Field: "conditions.threshold_days", Reason: "must be positive"}
		}
	default:
		return &ValidationError{Field: "trigger_type", Reason: "unknown trigger type"}
	}
	return nil
}
