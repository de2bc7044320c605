// Package trigger evaluates automated trigger definitions against entity
// snapshots and emits follow-up tasks.
//
// Evaluate is pure: it never mutates its inputs and returns only the new
// tasks for this pass. The caller persists the batch in one transaction so
// the at-most-one-open-task invariant can be enforced atomically by the
// host (a partial unique index in the reference storage layer).
package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samplefront/samplefront/internal/model"
)

// Snapshot is the read-only input to one evaluation pass.
type Snapshot struct {
	Samples   []model.SampleUsage
	Orders    []model.CustomerOrder
	Customers []model.Customer
	OpenTasks []model.Task
}

// Report describes what one trigger did during a pass, mirroring the
// per-trigger result the dashboard renders. Err is set when a trigger was
// skipped as malformed; other triggers in the pass are unaffected.
type Report struct {
	TriggerID uuid.UUID
	Type      model.TriggerType
	Matched   int
	Created   int
	Deduped   int
	Err       error
}

// Result is the output of one evaluation pass.
type Result struct {
	Tasks   []model.Task
	Reports []Report
}

// dedupKey identifies an open task slot: one incomplete task per
// (reference entity, task type) pair.
type dedupKey struct {
	entity uuid.UUID
	typ    model.TaskType
}

// passState tracks duplicate suppression for one pass. The dedup policy
// applies only to tasks that were already open before the pass started;
// tasks emitted earlier in the same pass always suppress, so no pass
// produces two tasks for the same slot.
type passState struct {
	open    map[dedupKey]bool
	emitted map[dedupKey]bool
}

func (p passState) duplicate(def model.TriggerDefinition, key dedupKey) bool {
	return p.emitted[key] || (dedupEnabled(def) && p.open[key])
}

// Evaluate runs every active trigger against the snapshot at now.
//
// Inactive triggers are skipped entirely. A malformed trigger aborts only
// itself (fault isolation per trigger). Within a single pass every
// eligible, non-duplicate cohort member yields exactly one task; tasks
// emitted earlier in the same pass always suppress, so a pass is
// internally duplicate-free even for triggers that opt out of dedup.
func Evaluate(triggers []model.TriggerDefinition, snap Snapshot, now time.Time) Result {
	state := passState{
		open:    make(map[dedupKey]bool, len(snap.OpenTasks)),
		emitted: make(map[dedupKey]bool),
	}
	for _, t := range snap.OpenTasks {
		if !t.Completed {
			state.open[dedupKey{t.EntityRef(), t.Type}] = true
		}
	}

	var result Result
	for _, def := range triggers {
		if !def.IsActive {
			continue
		}

		report := Report{TriggerID: def.ID, Type: def.Type}
		if err := def.Validate(); err != nil {
			report.Err = fmt.Errorf("trigger %s (%s): %w", def.Name, def.ID, err)
			result.Reports = append(result.Reports, report)
			continue
		}

		var tasks []model.Task
		switch def.Type {
		case model.TriggerSampleNoOrder:
			tasks, report = evalSampleNoOrder(def, snap.Samples, now, state, report)
		case model.TriggerFirstOrderFollowup:
			tasks, report = evalFirstOrderFollowup(def, snap.Orders, now, state, report)
		case model.TriggerCustomerTiming:
			tasks, report = evalCustomerTiming(def, snap.Customers, now, state, report)
		case model.TriggerBurnRateAlert:
			tasks, report = evalBurnRateAlert(def, snap.Customers, state, report)
		}

		for _, task := range tasks {
			task.CreatedAt = now
			result.Tasks = append(result.Tasks, task)
			state.emitted[dedupKey{task.EntityRef(), task.Type}] = true
		}
		report.Created = len(tasks)
		result.Reports = append(result.Reports, report)
	}
	return result
}

// dedupEnabled resolves the definition's dedup policy. The default keeps
// every trigger type deduplicated; DedupOff lets a definition re-fire on
// each pass (the emitted set still prevents duplicates within one pass).
func dedupEnabled(def model.TriggerDefinition) bool {
	return def.Dedup != model.DedupOff
}

func evalSampleNoOrder(def model.TriggerDefinition, samples []model.SampleUsage, now time.Time, state passState, report Report) ([]model.Task, Report) {
	cutoff := now.AddDate(0, 0, -def.Conditions.DaysAfterSample)
	var tasks []model.Task
	for _, s := range samples {
		// Boundary is inclusive: a sample exactly daysAfterSample old qualifies.
		if s.DateGiven.After(cutoff) || s.ResultedInOrder {
			continue
		}
		report.Matched++
		if state.duplicate(def, dedupKey{s.ID, model.TaskSampleFollowup}) {
			report.Deduped++
			continue
		}
		sampleID := s.ID
		customerID := s.CustomerID
		tasks = append(tasks, newTask(def, model.Task{
			Type:       model.TaskSampleFollowup,
			SampleID:   &sampleID,
			CustomerID: &customerID,
		}, "Follow up on sample"))
	}
	return tasks, report
}

func evalFirstOrderFollowup(def model.TriggerDefinition, orders []model.CustomerOrder, now time.Time, state passState, report Report) ([]model.Task, Report) {
	cutoff := now.AddDate(0, 0, -def.Conditions.DaysAfterOrder)
	var tasks []model.Task
	for _, o := range orders {
		if o.OrderDate.After(cutoff) || o.Status != model.OrderCompleted {
			continue
		}
		report.Matched++
		if state.duplicate(def, dedupKey{o.ID, model.TaskOrderFollowup}) {
			report.Deduped++
			continue
		}
		orderID := o.ID
		customerID := o.CustomerID
		tasks = append(tasks, newTask(def, model.Task{
			Type:       model.TaskOrderFollowup,
			OrderID:    &orderID,
			CustomerID: &customerID,
		}, "Thank-you call after first order"))
	}
	return tasks, report
}

func evalCustomerTiming(def model.TriggerDefinition, customers []model.Customer, now time.Time, state passState, report Report) ([]model.Task, Report) {
	cutoff := now.AddDate(0, 0, -def.Conditions.DaysSinceLastContact)
	var tasks []model.Task
	for _, c := range customers {
		if c.LastContactDate == nil || c.LastContactDate.After(cutoff) {
			continue
		}
		report.Matched++
		if state.duplicate(def, dedupKey{c.ID, model.TaskCustomerContact}) {
			report.Deduped++
			continue
		}
		customerID := c.ID
		tasks = append(tasks, newTask(def, model.Task{
			Type:       model.TaskCustomerContact,
			CustomerID: &customerID,
		}, "Contact customer"))
	}
	return tasks, report
}

func evalBurnRateAlert(def model.TriggerDefinition, customers []model.Customer, state passState, report Report) ([]model.Task, Report) {
	var tasks []model.Task
	for _, c := range customers {
		// Fewer days of supply remaining than the threshold is worse.
		if c.EstimatedBurnRateDays == nil || *c.EstimatedBurnRateDays >= def.Conditions.ThresholdDays {
			continue
		}
		report.Matched++
		if state.duplicate(def, dedupKey{c.ID, model.TaskBurnRateAlert}) {
			report.Deduped++
			continue
		}
		customerID := c.ID
		task := newTask(def, model.Task{
			Type:       model.TaskBurnRateAlert,
			CustomerID: &customerID,
		}, "Reorder check-in")
		task.Priority = model.PriorityHigh // burn rate alerts are always high
		tasks = append(tasks, task)
	}
	return tasks, report
}

// newTask fills the trigger-derived fields, applying the action payload
// with medium/generic defaults when absent.
func newTask(def model.TriggerDefinition, task model.Task, defaultTitle string) model.Task {
	triggerID := def.ID
	task.TriggerID = &triggerID
	task.Priority = def.Action.Priority
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	task.Title = def.Action.Title
	if task.Title == "" {
		task.Title = defaultTitle
	}
	return task
}
