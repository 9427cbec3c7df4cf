package broker

import (
	"sync"
	"sync/atomic"

	"github.com/ismaild/vumi/interfaces"
)

// TaskQueue is a single-goroutine work queue: tasks run one at a time
// in submission order. It is the broker's default scheduler; the
// delivery loop posts its "run again" unit of work here instead of
// recursing inline, so other operations get a turn between passes.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []*task
	closed bool
	done   chan struct{}
}

type task struct {
	fn       func()
	canceled atomic.Bool
}

// Cancel prevents the task from running if it has not started yet.
func (t *task) Cancel() {
	t.canceled.Store(true)
}

// NewTaskQueue creates and starts a task queue.
func NewTaskQueue() *TaskQueue {
	s := &TaskQueue{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Later enqueues fn to run on the queue's goroutine.
func (s *TaskQueue) Later(fn func()) interfaces.Cancelable {
	t := &task{fn: fn}
	s.mu.Lock()
	if !s.closed {
		s.tasks = append(s.tasks, t)
		s.cond.Signal()
	} else {
		t.canceled.Store(true)
	}
	s.mu.Unlock()
	return t
}

// Stop shuts the queue down. Pending tasks are discarded. Blocks until
// the loop goroutine has exited.
func (s *TaskQueue) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.tasks = nil
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *TaskQueue) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.tasks) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		if !t.canceled.Load() {
			t.fn()
		}
	}
}

var _ interfaces.Scheduler = (*TaskQueue)(nil)

// completion resolves when a delivery run reaches quiescence.
type completion struct {
	once sync.Once
	ch   chan struct{}
}

func newCompletion() *completion {
	return &completion{ch: make(chan struct{})}
}

func (c *completion) resolve() {
	c.once.Do(func() { close(c.ch) })
}

// Done returns a channel closed once the run has settled.
func (c *completion) Done() <-chan struct{} {
	return c.ch
}

var _ interfaces.Completion = (*completion)(nil)
