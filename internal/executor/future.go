package executor

import "context"

// Future is the completion signal of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// failedFuture returns a Future that is already complete with err.
func failedFuture(err error) *Future {
	f := newFuture()
	f.complete(err)
	return f
}

// complete must be called exactly once.
func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error once Done is closed, nil before that.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx ends. Only the caller waits;
// the task itself keeps its place in the queue either way.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
