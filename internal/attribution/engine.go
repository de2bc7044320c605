// Package attribution decides whether a completed order should be credited
// to a promotional sample, and to which one.
//
// Attribute is pure: it reads the order and candidate snapshot and returns
// an outcome. Persisting the winning sample's mutation (resulted_in_order,
// order_id) is the caller's job, and the read-check-then-write must be
// atomic per sample on the host side (see storage.MarkSampleAttributed).
package attribution

import (
	"bytes"
	"time"

	"github.com/samplefront/samplefront/internal/model"
)

// WindowDays is the attribution window: an order within this many whole
// days after a sample (inclusive on both ends) may be credited to it.
// Day 30 is attributable; day 31 is not.
const WindowDays = 30

const millisPerDay = 24 * 60 * 60 * 1000

// Attribute attempts to credit order to one of candidates.
//
// Selection: among same-customer samples given on or before the order date
// and within the window, the latest DateGiven wins; ties break to the
// lowest sample id in byte order so repeated runs pick the same sample.
// A winner that is already attributed fails with ReasonAlreadyAttributed, which
// makes retries of the same order safe: the first success flips the flag
// and every retry after it is rejected here, never double-counted.
func Attribute(order model.CustomerOrder, candidates []model.SampleUsage, now time.Time) model.AttributionOutcome {
	if order.Status != model.OrderCompleted {
		return model.Failure(model.ReasonOrderCancelled)
	}

	var matched bool
	var selected model.SampleUsage
	var selectedDays int
	var inWindow bool

	for _, s := range candidates {
		if s.CustomerID != order.CustomerID || s.DateGiven.After(order.OrderDate) {
			continue
		}
		matched = true

		days := daysBetween(s.DateGiven, order.OrderDate)
		if days < 0 || days > WindowDays {
			continue
		}
		if !inWindow || moreRecent(s, selected) {
			selected = s
			selectedDays = days
			inWindow = true
		}
	}

	if !matched {
		return model.Failure(model.ReasonNoSampleFound)
	}
	if !inWindow {
		return model.Failure(model.ReasonOutsideWindow)
	}
	if selected.ResultedInOrder {
		return model.Failure(model.ReasonAlreadyAttributed)
	}

	id := selected.ID
	return model.AttributionOutcome{
		Success:          true,
		SampleID:         &id,
		Amount:           order.TotalValue,
		DaysToConversion: selectedDays,
	}
}

// daysBetween is the whole-day difference from a to b, truncating the
// millisecond delta (not rounding). a <= b is the caller's invariant, so
// truncation and floor coincide.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Milliseconds() / millisPerDay)
}

// moreRecent reports whether candidate should replace current: later
// DateGiven wins, identical dates break to the lower id.
func moreRecent(candidate, current model.SampleUsage) bool {
	if candidate.DateGiven.After(current.DateGiven) {
		return true
	}
	if candidate.DateGiven.Equal(current.DateGiven) {
		return bytes.Compare(candidate.ID[:], current.ID[:]) < 0
	}
	return false
}
