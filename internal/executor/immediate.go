package executor

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
)

// Immediate runs tasks on the goroutine that schedules them, which makes it
// deterministic for tests.
//
// A task scheduled while another is running, whether re-entrantly from inside
// that task or from a different goroutine, is queued and run by the goroutine
// already draining once the current task returns. This keeps Immediate serial.
type Immediate struct {
	mu       sync.Mutex
	pending  *queue.Queue // of job
	draining bool
	closed   bool
}

func NewImmediate() *Immediate {
	return &Immediate{pending: queue.New()}
}

func (e *Immediate) Invoke(task func()) error {
	return e.schedule(invokeJob(task))
}

func (e *Immediate) Submit(task func() error) *Future {
	j := submitJob(task)
	if err := e.schedule(j); err != nil {
		return failedFuture(err)
	}
	return j.future
}

// Shutdown only stops new tasks. Anything queued is run by the goroutine that
// is draining.
func (e *Immediate) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Immediate) Close() error {
	return e.Shutdown(context.Background())
}

func (e *Immediate) serial() {}

func (e *Immediate) schedule(j job) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.Wrap(ErrClosed, "immediate")
	}
	e.pending.Add(j)
	if e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()

	e.drain()
	return nil
}

func (e *Immediate) drain() {
	for {
		e.mu.Lock()
		if e.pending.Length() == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		j := e.pending.Remove().(job)
		e.mu.Unlock()

		j.run()
	}
}
