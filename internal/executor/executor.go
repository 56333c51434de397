// Package executor provides execution contexts: task serializers that run
// scheduled work in submission order.
//
// Every context runs tasks to completion and never preempts them. A Serial
// context additionally guarantees that at most one task is in flight at any
// time, which is what lets the matching engine mutate its book without locks.
package executor

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrClosed       = errors.New("executor closed")
	ErrDiscarded    = errors.New("task discarded before it ran")
	ErrTaskPanicked = errors.New("task panicked")
	ErrUnsafeSerial = errors.New("executor kind cannot serialize tasks")
	ErrUnknownKind  = errors.New("unknown executor kind")
)

// Executor schedules tasks. Scheduling never blocks the caller.
type Executor interface {
	// Invoke schedules task and returns immediately. A failure raised by the
	// task is logged since there is nobody to hand it to.
	Invoke(task func()) error
	// Submit schedules task and returns a Future that completes with the
	// task's error, or with ErrTaskPanicked if it panicked.
	Submit(task func() error) *Future
	// Shutdown stops accepting tasks and waits for the queued ones to finish.
	// If ctx ends first, whatever is still queued is discarded and every
	// discarded Future fails with ErrDiscarded. A running task is never
	// interrupted.
	Shutdown(ctx context.Context) error
	// Close is Shutdown without a deadline.
	Close() error
}

// Serial is an Executor that never runs two tasks at once. Only the
// implementations in this package can satisfy it.
type Serial interface {
	Executor
	serial()
}

type Kind string

const (
	KindImmediate Kind = "immediate"
	KindWorker    Kind = "worker"
	KindPool      Kind = "pool"
)

func ParseKind(s string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(s))); kind {
	case KindImmediate, KindWorker, KindPool:
		return kind, nil
	default:
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// NewSerial builds a single-writer context. A pool is rejected because its
// workers would run tasks concurrently.
func NewSerial(name string, kind Kind) (Serial, error) {
	switch kind {
	case KindImmediate:
		return NewImmediate(), nil
	case KindWorker:
		return NewWorker(name), nil
	case KindPool:
		return nil, errors.Wrapf(ErrUnsafeSerial, "%s: %s", name, kind)
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%s: %q", name, kind)
	}
}

// New builds any kind of context. workers is only used by KindPool.
func New(name string, kind Kind, workers uint) (Executor, error) {
	if kind == KindPool {
		return NewPool(name, workers), nil
	}
	return NewSerial(name, kind)
}
