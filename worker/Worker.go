/*
File Name:  Worker.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Cooperative single-owner event loop (spec §5). State kept behind a
Worker (the session manager's contact index) is mutated only by tasks
posted to its inbox and executed on its single goroutine, so callers
never need a lock around that state. RunAndWait is the synchronous
cross-worker query (e.g. C4 asking the registry whether a pubkey is
known) - it must never be called from the same Worker it targets, since
that task would be waiting behind itself in the inbox.
*/

package worker

// Worker serializes all mutation of one subsystem's state onto a single goroutine.
type Worker struct {
	inbox chan func()
	done  chan struct{}
}

// New starts a Worker with the given inbox capacity.
func New(queueSize int) *Worker {
	w := &Worker{
		inbox: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case task, ok := <-w.inbox:
			if !ok {
				return
			}
			task()
		case <-w.done:
			return
		}
	}
}

// Post enqueues fn to run on the worker's goroutine without waiting for it.
func (w *Worker) Post(fn func()) {
	select {
	case w.inbox <- fn:
	case <-w.done:
	}
}

// Close stops the worker. Pending tasks are dropped.
func (w *Worker) Close() {
	close(w.done)
}

// RunAndWait posts fn to w and blocks until it has executed, returning its
// result. Callers must never invoke this from within w's own goroutine.
func RunAndWait[T any](w *Worker, fn func() T) T {
	result := make(chan T, 1)
	w.Post(func() {
		result <- fn()
	})
	return <-result
}
