// Package tasks provides the business logic for trigger management and the
// follow-up task lifecycle.
//
// RunTriggers is the evaluation entry point: it loads a consistent snapshot,
// runs the pure trigger evaluator, and persists the resulting task batch in
// one transaction. Task completion is idempotent.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/samplefront/samplefront/internal/clock"
	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/storage"
	"github.com/samplefront/samplefront/internal/telemetry"
	"github.com/samplefront/samplefront/internal/trigger"
)

// Service encapsulates trigger and task business logic.
type Service struct {
	db     *storage.DB
	clock  clock.Clock
	logger *slog.Logger

	tasksCreated   metric.Int64Counter
	tasksDeduped   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	passDuration   metric.Float64Histogram
}

// New creates a task Service.
func New(db *storage.DB, clk clock.Clock, logger *slog.Logger) *Service {
	meter := telemetry.Meter("samplefront/tasks")
	created, _ := meter.Int64Counter("samplefront.tasks.created",
		metric.WithDescription("Tasks created by trigger evaluation"),
	)
	deduped, _ := meter.Int64Counter("samplefront.tasks.deduped",
		metric.WithDescription("Task creations suppressed by an existing open task"),
	)
	completed, _ := meter.Int64Counter("samplefront.tasks.completed",
		metric.WithDescription("Tasks marked completed"),
	)
	passDur, _ := meter.Float64Histogram("samplefront.triggers.pass_duration",
		metric.WithDescription("Trigger evaluation pass duration (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		db:             db,
		clock:          clk,
		logger:         logger,
		tasksCreated:   created,
		tasksDeduped:   deduped,
		tasksCompleted: completed,
		passDuration:   passDur,
	}
}

// RunResult summarizes one trigger evaluation pass.
type RunResult struct {
	TriggersRun int
	Created     []model.Task
	Deduped     int
	Reports     []trigger.Report
}

// RunTriggers executes one evaluation pass over all active triggers.
//
// Evaluation reads a snapshot, so a task created by a concurrent pass can
// race a task this pass emits; the batch insert's conflict handling makes
// the loser a dedup, not a duplicate.
func (s *Service) RunTriggers(ctx context.Context) (RunResult, error) {
	start := time.Now()
	now := s.clock.Now()

	snap, triggers, err := s.db.LoadSnapshot(ctx)
	if err != nil {
		return RunResult{}, err
	}

	evaluated := trigger.Evaluate(triggers, snap, now)

	// Concurrent passes and task completions can deadlock on the dedup
	// index; the batch is safe to replay because conflicts insert nothing.
	var inserted []model.Task
	err = storage.WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var insertErr error
		inserted, insertErr = s.db.CreateTasks(ctx, evaluated.Tasks)
		return insertErr
	})
	if err != nil {
		return RunResult{}, err
	}

	res := RunResult{
		TriggersRun: len(evaluated.Reports),
		Created:     inserted,
		Reports:     evaluated.Reports,
	}
	for _, r := range evaluated.Reports {
		res.Deduped += r.Deduped
	}
	// Conflicts lost to a concurrent pass count as dedups too.
	res.Deduped += len(evaluated.Tasks) - len(inserted)

	s.passDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	s.tasksCreated.Add(ctx, int64(len(inserted)))
	s.tasksDeduped.Add(ctx, int64(res.Deduped))

	for _, r := range evaluated.Reports {
		if r.Err != nil {
			s.logger.Warn("trigger skipped", "trigger_id", r.TriggerID, "error", r.Err)
		}
	}
	s.logger.Info("trigger pass complete",
		"triggers", res.TriggersRun,
		"created", len(inserted),
		"deduped", res.Deduped,
	)

	if len(inserted) > 0 {
		for _, task := range inserted {
			if err := s.db.Notify(ctx, storage.ChannelTasks, task.ID.String()); err != nil {
				s.logger.Warn("task notify failed", "task_id", task.ID, "error", err)
				break
			}
		}
	}
	return res, nil
}

// CreateTrigger validates and persists a new trigger definition.
func (s *Service) CreateTrigger(ctx context.Context, def model.TriggerDefinition) (model.TriggerDefinition, error) {
	return s.db.CreateTrigger(ctx, def)
}

// SetTriggerActive enables or disables a trigger definition.
func (s *Service) SetTriggerActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.db.SetTriggerActive(ctx, id, active)
}

// Triggers lists trigger definitions; activeOnly filters to enabled ones.
func (s *Service) Triggers(ctx context.Context, activeOnly bool) ([]model.TriggerDefinition, error) {
	return s.db.ListTriggers(ctx, activeOnly)
}

// CreateTask persists a manually created task. The open-task invariant
// applies to manual tasks too: storage.ErrDuplicateOpenTask is returned when
// an open task for the same entity and type already exists.
func (s *Service) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	created, err := s.db.CreateTask(ctx, task)
	if err != nil {
		return model.Task{}, err
	}
	s.tasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "manual")))
	return created, nil
}

// CompleteResult reports a completion attempt.
type CompleteResult struct {
	Task             model.Task
	AlreadyCompleted bool
}

// Complete marks a task completed. Completion is idempotent: repeat calls
// succeed, report AlreadyCompleted, and preserve the original completed_at.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (CompleteResult, error) {
	already, err := s.db.CompleteTask(ctx, id, s.clock.Now())
	if err != nil {
		return CompleteResult{}, err
	}
	task, err := s.db.GetTask(ctx, id)
	if err != nil {
		return CompleteResult{}, err
	}
	if !already {
		s.tasksCompleted.Add(ctx, 1)
		s.logger.Info("task completed", "task_id", id, "type", task.Type)
	}
	return CompleteResult{Task: task, AlreadyCompleted: already}, nil
}

// Task returns one task by id.
func (s *Service) Task(ctx context.Context, id uuid.UUID) (model.Task, error) {
	return s.db.GetTask(ctx, id)
}

// OpenTasks lists all incomplete tasks, oldest first.
func (s *Service) OpenTasks(ctx context.Context) ([]model.Task, error) {
	return s.db.ListOpenTasks(ctx)
}

// TasksByCustomer lists a customer's tasks, newest first.
func (s *Service) TasksByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Task, error) {
	return s.db.ListTasksByCustomer(ctx, customerID)
}

// TriggerStatistics reports how a trigger definition has performed.
// CompletionRate is a fraction in [0, 1], not a percentage; it is zero
// when the trigger has created no tasks.
type TriggerStatistics struct {
	Trigger        model.TriggerDefinition
	Total          int
	Completed      int
	Pending        int
	CompletionRate float64
}

// Statistics returns task counts and completion rate for one trigger.
// An unknown id returns storage.ErrNotFound.
func (s *Service) Statistics(ctx context.Context, triggerID uuid.UUID) (TriggerStatistics, error) {
	def, err := s.db.GetTrigger(ctx, triggerID)
	if err != nil {
		return TriggerStatistics{}, err
	}
	counts, err := s.db.CountTriggerTasks(ctx, triggerID)
	if err != nil {
		return TriggerStatistics{}, err
	}
	stats := TriggerStatistics{
		Trigger:   def,
		Total:     counts.Total,
		Completed: counts.Completed,
		Pending:   counts.Pending,
	}
	if counts.Total > 0 {
		stats.CompletionRate = float64(counts.Completed) / float64(counts.Total)
	}
	return stats, nil
}
