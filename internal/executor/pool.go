package executor

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// loop is a set of tomb-managed workers draining one shared, unbounded FIFO.
// With a single worker it is a strict serializer.
type loop struct {
	name  string
	t     tomb.Tomb
	wake  chan struct{} // holds at most one pending wake-up
	mu    sync.Mutex
	tasks *queue.Queue // of job
	// Set once Shutdown starts. Workers exit when it is set and tasks is empty.
	closed bool
}

func newLoop(name string, workers int) *loop {
	l := &loop{
		name:  name,
		wake:  make(chan struct{}, 1),
		tasks: queue.New(),
	}
	for id := 0; id < workers; id++ {
		l.t.Go(func() error {
			return l.work(id)
		})
	}
	log.Debug().Str("executor", name).Int("workers", workers).Msg("executor started")
	return l
}

func (l *loop) Invoke(task func()) error {
	return l.schedule(invokeJob(task))
}

func (l *loop) Submit(task func() error) *Future {
	j := submitJob(task)
	if err := l.schedule(j); err != nil {
		return failedFuture(err)
	}
	return j.future
}

func (l *loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()

	select {
	case <-l.t.Dead():
	case <-ctx.Done():
		// Workers notice Dying between tasks and discard the rest.
		l.t.Kill(nil)
		<-l.t.Dead()
	}
	log.Debug().Str("executor", l.name).Msg("executor stopped")
	return l.t.Err()
}

func (l *loop) Close() error {
	return l.Shutdown(context.Background())
}

func (l *loop) schedule(j job) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.Wrap(ErrClosed, l.name)
	}
	l.tasks.Add(j)
	l.mu.Unlock()

	l.signal()
	return nil
}

func (l *loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest task. When more remain it passes the wake-up on so an
// idle sibling can pick them up.
func (l *loop) next() (j job, ok bool, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tasks.Length() == 0 {
		return job{}, false, l.closed
	}
	j = l.tasks.Remove().(job)
	if l.tasks.Length() > 0 {
		l.signal()
	}
	return j, true, l.closed
}

// work is one worker. It only returns between tasks.
func (l *loop) work(id int) error {
	for {
		select {
		case <-l.t.Dying():
			return l.discard()
		default:
		}

		j, ok, closed := l.next()
		if ok {
			j.run()
			continue
		}
		if closed {
			// Let the siblings see the empty, closed queue too.
			l.signal()
			log.Debug().Str("executor", l.name).Int("id", id).Msg("worker drained")
			return nil
		}

		select {
		case <-l.wake:
		case <-l.t.Dying():
			return l.discard()
		}
	}
}

// discard fails every queued task. Only the first worker to get here finds
// anything to discard.
func (l *loop) discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.tasks.Length()
	for l.tasks.Length() > 0 {
		l.tasks.Remove().(job).discard()
	}
	if n == 0 {
		return nil
	}
	log.Error().Str("executor", l.name).Int("discarded", n).Msg("shutdown deadline hit, queued tasks discarded")
	return errors.Wrapf(ErrDiscarded, "%s: %d queued tasks", l.name, n)
}

// Pool runs tasks on several workers. Tasks start in submission order but may
// overlap and finish out of order, so a Pool is never Serial.
type Pool struct {
	*loop
}

func NewPool(name string, size uint) *Pool {
	if size == 0 {
		size = 1
	}
	return &Pool{loop: newLoop(name, int(size))}
}
