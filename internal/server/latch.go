package server

import (
	"sync"
	"time"
)

// Latch is a one-shot readiness flag. It opens at most once and never closes
// again. Abort releases waiters without opening it.
type Latch struct {
	mu      sync.Mutex
	open    bool
	opened  chan struct{}
	aborted chan struct{}
	abort   sync.Once
}

// NewLatch creates a closed latch.
func NewLatch() *Latch {
	return &Latch{
		opened:  make(chan struct{}),
		aborted: make(chan struct{}),
	}
}

// Open opens the latch and wakes every waiter. Later calls do nothing.
func (l *Latch) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		l.open = true
		close(l.opened)
	}
}

// Abort wakes every waiter without opening the latch.
func (l *Latch) Abort() {
	l.abort.Do(func() { close(l.aborted) })
}

// IsOpen reports whether Open has been called.
func (l *Latch) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Wait blocks until the latch opens, it is aborted, or timeout elapses. A
// timeout of zero or less waits without a bound. It reports whether the latch
// is open; aborted is set when Abort released the wait.
func (l *Latch) Wait(timeout time.Duration) (ready bool, aborted bool) {
	if l.IsOpen() {
		return true, false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-l.opened:
		return true, false
	case <-l.aborted:
		return l.IsOpen(), true
	case <-expired:
		return l.IsOpen(), false
	}
}
