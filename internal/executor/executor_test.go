package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

const waitTimeout = 5 * time.Second

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// serials returns a fresh instance of every serial executor.
func serials() map[string]Serial {
	return map[string]Serial{
		"immediate": NewImmediate(),
		"worker":    NewWorker("test"),
	}
}

func all() map[string]Executor {
	return map[string]Executor{
		"immediate": NewImmediate(),
		"worker":    NewWorker("test"),
		"pool":      NewPool("test", 4),
	}
}

// block schedules a task on exec that signals started and then waits for
// release.
func block(exec Executor) (started, release chan struct{}, f *Future) {
	started = make(chan struct{})
	release = make(chan struct{})
	f = exec.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	return started, release, f
}

// --- Tests ------------------------------------------------------------------

func TestSerial_RunsTasksInSubmissionOrder(t *testing.T) {
	for name, exec := range serials() {
		t.Run(name, func(t *testing.T) {
			defer exec.Close()

			// Only ever touched from inside the executor.
			var seen []int
			for i := 0; i < 1000; i++ {
				require.NoError(t, exec.Invoke(func() {
					seen = append(seen, i)
				}))
			}

			var got []int
			require.NoError(t, exec.Submit(func() error {
				got = append(got, seen...)
				return nil
			}).Wait(waitCtx(t)))

			require.Len(t, got, 1000)
			for i, v := range got {
				assert.Equal(t, i, v)
			}
		})
	}
}

func TestSerial_NeverOverlapsTasks(t *testing.T) {
	for name, exec := range serials() {
		t.Run(name, func(t *testing.T) {
			defer exec.Close()

			var inFlight, maxInFlight atomic.Int32
			var wg sync.WaitGroup
			futures := make(chan *Future, 400)

			// Many producers submitting at once.
			for p := 0; p < 8; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						futures <- exec.Submit(func() error {
							n := inFlight.Add(1)
							if n > maxInFlight.Load() {
								maxInFlight.Store(n)
							}
							time.Sleep(time.Microsecond)
							inFlight.Add(-1)
							return nil
						})
					}
				}()
			}
			wg.Wait()
			close(futures)

			for f := range futures {
				require.NoError(t, f.Wait(waitCtx(t)))
			}
			assert.Equal(t, int32(1), maxInFlight.Load())
		})
	}
}

func TestSubmit_PropagatesTaskError(t *testing.T) {
	errBoom := errors.New("boom")
	for name, exec := range all() {
		t.Run(name, func(t *testing.T) {
			defer exec.Close()

			err := exec.Submit(func() error { return errBoom }).Wait(waitCtx(t))
			assert.ErrorIs(t, err, errBoom)
		})
	}
}

func TestSubmit_RecoversPanic(t *testing.T) {
	for name, exec := range all() {
		t.Run(name, func(t *testing.T) {
			defer exec.Close()

			err := exec.Submit(func() error { panic("kaboom") }).Wait(waitCtx(t))
			assert.ErrorIs(t, err, ErrTaskPanicked)
			assert.Contains(t, err.Error(), "kaboom")

			// A panicking Invoke does not take the executor down either.
			require.NoError(t, exec.Invoke(func() { panic("again") }))
			assert.NoError(t, exec.Submit(func() error { return nil }).Wait(waitCtx(t)))
		})
	}
}

func TestExecutors_RejectTasksAfterShutdown(t *testing.T) {
	for name, exec := range all() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, exec.Close())

			assert.ErrorIs(t, exec.Invoke(func() {}), ErrClosed)

			f := exec.Submit(func() error { return nil })
			<-f.Done()
			assert.ErrorIs(t, f.Err(), ErrClosed)
		})
	}
}

func TestWorker_ShutdownDrainsQueue(t *testing.T) {
	w := NewWorker("test")

	// 1. Hold the worker busy and queue more work behind it.
	started, release, first := block(w)
	<-started

	var ran atomic.Int32
	futures := make([]*Future, 10)
	for i := range futures {
		futures[i] = w.Submit(func() error {
			ran.Add(1)
			return nil
		})
	}

	// 2. Shutdown must wait for the whole queue.
	done := make(chan error, 1)
	go func() { done <- w.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	// 3. New work is refused as soon as shutdown has begun.
	assert.Eventually(t, func() bool {
		return errors.Is(w.Invoke(func() {}), ErrClosed)
	}, waitTimeout, time.Millisecond)

	close(release)
	require.NoError(t, <-done)
	assert.NoError(t, first.Err())
	assert.Equal(t, int32(10), ran.Load())
	for _, f := range futures {
		assert.NoError(t, f.Err())
	}
}

func TestWorker_ShutdownDeadlineDiscardsQueuedTasks(t *testing.T) {
	w := NewWorker("test")

	started, release, first := block(w)
	<-started

	var ran atomic.Int32
	futures := make([]*Future, 5)
	for i := range futures {
		futures[i] = w.Submit(func() error {
			ran.Add(1)
			return nil
		})
	}

	// The deadline has already passed, but the running task still finishes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	err := w.Shutdown(ctx)
	assert.ErrorIs(t, err, ErrDiscarded)
	assert.Contains(t, err.Error(), "5 queued tasks")

	assert.NoError(t, first.Err())
	assert.Equal(t, int32(0), ran.Load())
	for _, f := range futures {
		<-f.Done()
		assert.ErrorIs(t, f.Err(), ErrDiscarded)
	}
}

func TestWorker_ShutdownIsIdempotent(t *testing.T) {
	w := NewWorker("test")
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	w := NewWorker("test")
	started, release, f := block(w)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, f.Err(), "Err is nil until the task completes")

	close(release)
	assert.NoError(t, f.Wait(waitCtx(t)))
	require.NoError(t, w.Close())
}

func TestImmediate_RunsOnCallerAndQueuesReentrantTasks(t *testing.T) {
	e := NewImmediate()
	defer e.Close()

	var trace []string
	require.NoError(t, e.Invoke(func() {
		trace = append(trace, "outer start")
		require.NoError(t, e.Invoke(func() {
			trace = append(trace, "inner")
		}))
		trace = append(trace, "outer end")
	}))

	// Everything has run by the time Invoke returns, and the inner task did
	// not interrupt the outer one.
	assert.Equal(t, []string{"outer start", "outer end", "inner"}, trace)
}

func TestPool_RunsEveryTask(t *testing.T) {
	p := NewPool("test", 4)

	var ran atomic.Int32
	for i := 0; i < 200; i++ {
		require.NoError(t, p.Invoke(func() { ran.Add(1) }))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, int32(200), ran.Load())
}

func TestPool_RunsTasksConcurrently(t *testing.T) {
	p := NewPool("test", 2)
	defer p.Close()

	// Two tasks that each wait for the other can only finish in parallel.
	a, b := make(chan struct{}), make(chan struct{})
	fa := p.Submit(func() error {
		close(a)
		<-b
		return nil
	})
	fb := p.Submit(func() error {
		close(b)
		<-a
		return nil
	})
	assert.NoError(t, fa.Wait(waitCtx(t)))
	assert.NoError(t, fb.Wait(waitCtx(t)))
}

func TestNewSerial(t *testing.T) {
	exec, err := NewSerial("mutation", KindWorker)
	require.NoError(t, err)
	assert.IsType(t, &Worker{}, exec)
	require.NoError(t, exec.Close())

	exec, err = NewSerial("mutation", KindImmediate)
	require.NoError(t, err)
	assert.IsType(t, &Immediate{}, exec)

	_, err = NewSerial("mutation", KindPool)
	assert.ErrorIs(t, err, ErrUnsafeSerial)

	_, err = NewSerial("mutation", Kind("fork"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNew(t *testing.T) {
	exec, err := New("notifier", KindPool, 3)
	require.NoError(t, err)
	assert.IsType(t, &Pool{}, exec)
	require.NoError(t, exec.Close())

	exec, err = New("notifier", KindWorker, 0)
	require.NoError(t, err)
	assert.IsType(t, &Worker{}, exec)
	require.NoError(t, exec.Close())
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Worker ")
	require.NoError(t, err)
	assert.Equal(t, KindWorker, kind)

	_, err = ParseKind("dispatcher")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
