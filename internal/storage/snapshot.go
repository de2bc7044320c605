package storage

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/trigger"
)

// LoadSnapshot reads everything one trigger evaluation pass needs: the full
// sample, order and customer sets, the active trigger definitions, and the
// open tasks used for dedup. The five reads run concurrently; each hits its
// own pooled connection, so a failure in any one cancels the rest.
func (db *DB) LoadSnapshot(ctx context.Context) (trigger.Snapshot, []model.TriggerDefinition, error) {
	var (
		snap     trigger.Snapshot
		triggers []model.TriggerDefinition
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Samples, err = db.ListSamples(ctx, time.Time{}, time.Time{})
		return err
	})
	g.Go(func() error {
		var err error
		snap.Orders, err = db.ListOrders(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Customers, err = db.ListCustomers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.OpenTasks, err = db.ListOpenTasks(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		triggers, err = db.ListTriggers(ctx, true)
		return err
	})

	if err := g.Wait(); err != nil {
		return trigger.Snapshot{}, nil, err
	}
	return snap, triggers, nil
}
