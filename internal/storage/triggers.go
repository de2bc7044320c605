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

const triggerColumns = `id, name, trigger_type, conditions, action, dedup, is_active, created_at, updated_at`

// CreateTrigger inserts a new trigger definition.
func (db *DB) CreateTrigger(ctx context.Context, def model.TriggerDefinition) (model.TriggerDefinition, error) {
	if err := def.Validate(); err != nil {
		return model.TriggerDefinition{}, err
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO trigger_definitions (`+triggerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		def.ID, def.Name, string(def.Type), def.Conditions, def.Action,
		string(def.Dedup), def.IsActive, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		return model.TriggerDefinition{}, fmt.Errorf("storage: create trigger: %w", err)
	}
	return def, nil
}

// GetTrigger returns one trigger definition by id, or ErrNotFound.
func (db *DB) GetTrigger(ctx context.Context, id uuid.UUID) (model.TriggerDefinition, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+triggerColumns+` FROM trigger_definitions WHERE id = $1`, id)
	def, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TriggerDefinition{}, ErrNotFound
	}
	if err != nil {
		return model.TriggerDefinition{}, fmt.Errorf("storage: get trigger: %w", err)
	}
	return def, nil
}

// ListTriggers returns all trigger definitions; activeOnly filters to
// active ones (the set one evaluation pass considers).
func (db *DB) ListTriggers(ctx context.Context, activeOnly bool) ([]model.TriggerDefinition, error) {
	query := `SELECT ` + triggerColumns + ` FROM trigger_definitions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY trigger_type ASC, created_at ASC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: list triggers: %w", err)
	}
	defer rows.Close()

	var out []model.TriggerDefinition
	for rows.Next() {
		def, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan trigger: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

// SetTriggerActive toggles is_active. It has no cascading effect on tasks
// the trigger already created. Returns ErrNotFound for an unknown id.
func (db *DB) SetTriggerActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE trigger_definitions SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("storage: set trigger active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrigger(row pgx.Row) (model.TriggerDefinition, error) {
	var def model.TriggerDefinition
	var typ, dedup string
	err := row.Scan(
		&def.ID, &def.Name, &typ, &def.Conditions, &def.Action,
		&dedup, &def.IsActive, &def.CreatedAt, &def.UpdatedAt,
	)
	def.Type = model.TriggerType(typ)
	def.Dedup = model.DedupPolicy(dedup)
	return def, err
}
