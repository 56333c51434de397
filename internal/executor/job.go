package executor

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type job struct {
	fn     func() error
	future *Future // nil when scheduled through Invoke
}

func invokeJob(task func()) job {
	return job{fn: func() error {
		task()
		return nil
	}}
}

func submitJob(task func() error) job {
	return job{fn: task, future: newFuture()}
}

func (j job) run() {
	err := safeCall(j.fn)
	if j.future != nil {
		j.future.complete(err)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("invoked task failed")
	}
}

func (j job) discard() {
	if j.future != nil {
		j.future.complete(ErrDiscarded)
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrTaskPanicked, "%v", r)
		}
	}()
	return fn()
}
