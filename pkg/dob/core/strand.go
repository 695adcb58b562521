package core

import "sync"

// Strand is the serialized execution context described in §5: a single
// worker goroutine draining a buffered queue of tasks, so callbacks
// dispatched onto the same Strand never run concurrently with one another.
// This is the concrete rendering of the "single consumer thread draining a
// task queue" design note in §9, generalized from the teacher's ad-hoc
// goroutine-per-callback Invoker into an actual serialized executor.
type Strand struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewStrand creates and starts a Strand with the given task queue depth.
func NewStrand(queueDepth int) *Strand {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	s := &Strand{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Strand) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case task, ok := <-s.tasks:
			if !ok {
				return
			}
			task()
		}
	}
}

// Dispatch enqueues a task for serialized execution. It is safe to call
// from any goroutine. Dispatch is a no-op once the strand has been
// stopped.
func (s *Strand) Dispatch(task func()) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.tasks <- task:
	case <-s.done:
	}
}

// Stop drains any in-flight callback and prevents further dispatch from
// running; it blocks until the worker goroutine has exited.
func (s *Strand) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
