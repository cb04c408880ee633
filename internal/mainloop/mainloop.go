// ABOUTME: Serializes backend calls under one lock while a loop goroutine iterates
// ABOUTME: Turns asynchronous backend operations into blocking calls
package mainloop

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PollInterval is how often Block and WaitFor re-check state
const PollInterval = time.Millisecond

// OpState is the progress of an asynchronous backend operation
type OpState int

const (
	OpRunning OpState = iota
	OpDone
	OpCancelled
)

func (s OpState) String() string {
	switch s {
	case OpRunning:
		return "running"
	case OpDone:
		return "done"
	case OpCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Operation is a handle on an asynchronous backend request.
// State is always read with the loop lock held.
type Operation interface {
	State() OpState
	Release()
}

// Loop owns the lock every backend call must hold. When an iterate function
// is given, a goroutine runs it under the lock at a fixed cadence; backend
// callbacks are dispatched from there and therefore must never call back
// into the Loop.
type Loop struct {
	mu       sync.Mutex
	iterate  func()
	interval time.Duration
	logger   logrus.FieldLogger

	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a loop. iterate may be nil for backends that run their own
// threads and only need call serialization.
func New(iterate func(), interval time.Duration, logger logrus.FieldLogger) *Loop {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Loop{
		iterate:  iterate,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the loop goroutine
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.iterate == nil {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
	l.logger.Debug("mainloop started")
}

// Stop halts the loop goroutine and waits for the current iteration
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
	l.logger.Debug("mainloop stopped")
}

func (l *Loop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.iterate()
			l.mu.Unlock()
		}
	}
}

// Call runs fn with the lock held
func (l *Loop) Call(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// Do runs fn with the lock held and returns its results
func Do[T any](l *Loop, fn func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Block issues an operation under the lock, then waits for it to leave
// OpRunning, releasing it afterwards. A nil operation counts as done.
func (l *Loop) Block(issue func() Operation) OpState {
	l.mu.Lock()
	op := issue()
	l.mu.Unlock()
	if op == nil {
		return OpDone
	}

	for {
		l.mu.Lock()
		state := op.State()
		if state != OpRunning {
			op.Release()
			l.mu.Unlock()
			return state
		}
		l.mu.Unlock()
		time.Sleep(PollInterval)
	}
}

// WaitFor polls cond under the lock until it holds or the timeout expires.
// A zero timeout waits forever.
func (l *Loop) WaitFor(cond func() bool, timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		l.mu.Lock()
		ok := cond()
		l.mu.Unlock()
		if ok {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(PollInterval)
	}
}
