// Package loop runs tasks one at a time, in submission order, on a single
// goroutine.
package loop

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Dispatch once Shutdown has begun.
var ErrClosed = errors.New("loop closed")

// Loop is a serial executor backed by an unbounded FIFO queue.
//
// Dispatch never blocks. Every task dispatched before Shutdown runs before
// the goroutine exits.
type Loop struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	done chan struct{}
}

// New starts a loop goroutine. A nil logger discards panic reports.
func New(name string, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		name:   name,
		logger: logger.Named(name),
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Name returns the name the loop was created with.
func (l *Loop) Name() string { return l.name }

// Dispatch queues fn to run after every previously queued task.
func (l *Loop) Dispatch(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// Shutdown stops accepting tasks, runs everything already queued, and
// waits for the goroutine to exit. It is safe to call more than once.
// Calling it from a task on the same loop deadlocks.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

// Pending reports how many tasks are queued but not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
