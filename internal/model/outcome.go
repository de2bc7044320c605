package model

import "github.com/google/uuid"

// AttributionFailure enumerates the routine, non-exceptional reasons an
// attribution attempt can fail. These are control flow for the caller, not
// errors.
type AttributionFailure string

const (
	ReasonNoSampleFound     AttributionFailure = "no_sample_found"
	ReasonOrderCancelled    AttributionFailure = "order_cancelled"
	ReasonOutsideWindow     AttributionFailure = "outside_attribution_window"
	ReasonAlreadyAttributed AttributionFailure = "already_attributed"
	ReasonNotFound          AttributionFailure = "not_found"
)

// AttributionOutcome is the transient result of attempting to attribute one
// order to a sample. Not persisted.
type AttributionOutcome struct {
	Success          bool               `json:"success"`
	SampleID         *uuid.UUID         `json:"sample_id,omitempty"`
	Amount           int64              `json:"amount"`
	DaysToConversion int                `json:"days_to_conversion"`
	Reason           AttributionFailure `json:"reason,omitempty"`
}

// Failure builds a failed outcome with the given reason.
func Failure(reason AttributionFailure) AttributionOutcome {
	return AttributionOutcome{Reason: reason}
}
