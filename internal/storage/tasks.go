package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samplefront/samplefront/internal/model"
)

const taskColumns = `id, type, sample_id, order_id, customer_id, trigger_id,
	priority, title, completed, completed_at, created_at`

// CreateTask inserts one task. The partial unique index over
// (entity_ref, type) WHERE NOT completed is the authoritative guard for the
// at-most-one-open-task invariant; a conflicting insert returns
// ErrDuplicateOpenTask rather than a second open task.
func (db *DB) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT DO NOTHING`,
		task.ID, string(task.Type), task.SampleID, task.OrderID, task.CustomerID,
		task.TriggerID, string(task.Priority), task.Title,
		task.Completed, task.CompletedAt, task.CreatedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Task{}, ErrDuplicateOpenTask
	}
	return task, nil
}

// CreateTasks inserts an evaluation pass's task batch in one transaction.
// Rows that would violate the open-task invariant (a concurrent pass or
// manual creation got there first) are skipped via ON CONFLICT DO NOTHING.
// Returns the tasks actually inserted.
func (db *DB) CreateTasks(ctx context.Context, tasks []model.Task) ([]model.Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin create tasks tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var inserted []model.Task
	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return nil, err
		}
		if task.ID == uuid.Nil {
			task.ID = uuid.New()
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO tasks (`+taskColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT DO NOTHING`,
			task.ID, string(task.Type), task.SampleID, task.OrderID, task.CustomerID,
			task.TriggerID, string(task.Priority), task.Title,
			task.Completed, task.CompletedAt, task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("storage: create tasks batch: %w", err)
		}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, task)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit create tasks tx: %w", err)
	}
	return inserted, nil
}

// GetTask returns one task by id, or ErrNotFound.
func (db *DB) GetTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("storage: get task: %w", err)
	}
	return task, nil
}

// ListOpenTasks returns all incomplete tasks, oldest first. This is the
// dedup input for trigger evaluation.
func (db *DB) ListOpenTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE NOT completed ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list open tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasksByCustomer returns the customer's tasks, newest first.
func (db *DB) ListTasksByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE customer_id = $1
		 ORDER BY created_at DESC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list tasks by customer: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// CompleteTask marks a task completed at completedAt. The update is guarded
// by NOT completed so concurrent completions converge on the first caller's
// timestamp: the first call returns (false, nil), later calls
// (true, nil) with all fields untouched. Unknown ids return ErrNotFound.
func (db *DB) CompleteTask(ctx context.Context, id uuid.UUID, completedAt time.Time) (alreadyCompleted bool, err error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tasks SET completed = true, completed_at = $2
		 WHERE id = $1 AND NOT completed`,
		id, completedAt,
	)
	if err != nil {
		return false, fmt.Errorf("storage: complete task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return false, nil
	}

	var completed bool
	err = db.pool.QueryRow(ctx, `SELECT completed FROM tasks WHERE id = $1`, id).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("storage: complete task: %w", err)
	}
	return completed, nil
}

// TriggerTaskStats summarizes tasks a trigger definition has created.
type TriggerTaskStats struct {
	Total     int
	Completed int
	Pending   int
}

// CountTriggerTasks returns task counts for one trigger definition.
func (db *DB) CountTriggerTasks(ctx context.Context, triggerID uuid.UUID) (TriggerTaskStats, error) {
	var stats TriggerTaskStats
	err := db.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE completed),
		        count(*) FILTER (WHERE NOT completed)
		 FROM tasks WHERE trigger_id = $1`, triggerID,
	).Scan(&stats.Total, &stats.Completed, &stats.Pending)
	if err != nil {
		return TriggerTaskStats{}, fmt.Errorf("storage: count trigger tasks: %w", err)
	}
	return stats, nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var task model.Task
	var typ, priority string
	err := row.Scan(
		&task.ID, &typ, &task.SampleID, &task.OrderID, &task.CustomerID, &task.TriggerID,
		&priority, &task.Title, &task.Completed, &task.CompletedAt, &task.CreatedAt,
	)
	task.Type = model.TaskType(typ)
	task.Priority = model.TaskPriority(priority)
	return task, err
}

func collectTasks(rows pgx.Rows) ([]model.Task, error) {
	var out []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}
