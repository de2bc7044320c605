package samplefront

import "context"

// TaskHook receives task lifecycle notifications. Implementations must be
// safe for concurrent use; hooks run on their own goroutines with a bounded
// timeout and their errors are logged, never propagated.
type TaskHook interface {
	// OnTaskCreated is called after a task has been committed.
	OnTaskCreated(ctx context.Context, task Task) error
}
