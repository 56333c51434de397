package executor

// Worker is a dedicated goroutine draining a FIFO queue, one task at a time.
// It is the production choice for the matching engine's mutation context.
type Worker struct {
	*loop
}

func NewWorker(name string) *Worker {
	return &Worker{loop: newLoop(name, 1)}
}

func (w *Worker) serial() {}
