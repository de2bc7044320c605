package storage

import (
	"context"
	"fmt"
)

// Notification channels. Collaborators (dashboards, schedulers) LISTEN on
// these to learn about new tasks and attributions without polling.
const (
	ChannelTasks        = "samplefront_tasks"
	ChannelAttributions = "samplefront_attributions"
)

// Notify sends a payload on a channel via pg_notify. Delivered on commit
// of the surrounding transaction, or immediately when there is none.
func (db *DB) Notify(ctx context.Context, channel, payload string) error {
	if _, err := db.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, payload); err != nil {
		return fmt.Errorf("storage: notify %s: %w", channel, err)
	}
	return nil
}

// Listen subscribes the dedicated notify connection to a channel.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return fmt.Errorf("storage: listen %s: no notify connection", channel)
	}
	if _, err := db.notifyConn.Exec(ctx, "LISTEN "+pgIdent(channel)); err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on any channel the
// notify connection is subscribed to, or ctx is cancelled.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	if db.notifyConn == nil {
		return "", "", fmt.Errorf("storage: wait for notification: no notify connection")
	}
	n, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return n.Channel, n.Payload, nil
}

// pgIdent quotes a channel name as a Postgres identifier.
func pgIdent(name string) string {
	return `"` + name + `"`
}
