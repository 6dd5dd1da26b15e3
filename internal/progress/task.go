package progress

import (
	"context"

	"github.com/langcham/mapquiz/internal/mapquiz"
)

// Task is a background commit. Once started it runs to completion even if
// the request that started it goes away.
type Task struct {
	done    chan struct{}
	outcome Outcome
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the commit finished and returns its outcome.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.outcome
}

// CommitAsync runs Commit in the background.
func (c *Client) CommitAsync(ctx context.Context, userID string, next mapquiz.UserQuizProgress, locationID, riddleID string) *Task {
	t := &Task{done: make(chan struct{})}
	ctx = context.WithoutCancel(ctx)

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		defer close(t.done)
		t.outcome = c.Commit(ctx, userID, next, locationID, riddleID)
	}()
	return t
}

// Drain waits for in-flight background commits or for ctx to end.
func (c *Client) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
