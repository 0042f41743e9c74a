package video

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot buffer with overwrite-on-publish semantics. Publish
// never blocks: a value that has not been taken yet is replaced and counted as
// dropped. Wait blocks until a value is available or the mailbox is closed.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores v, replacing any unconsumed value. It reports whether a value
// was dropped. Publishing to a closed mailbox is a no-op.
func (m *Mailbox[T]) Publish(v T) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	if m.full {
		m.dropped.Add(1)
		dropped = true
	}
	m.value = v
	m.full = true
	m.published.Add(1)
	m.cond.Signal()
	return dropped
}

// Wait blocks until a value is available and takes it. It returns false once
// the mailbox is closed.
func (m *Mailbox[T]) Wait() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		var zero T
		return zero, false
	}
	return m.takeLocked(), true
}

// TryTake takes the pending value without blocking.
func (m *Mailbox[T]) TryTake() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full || m.closed {
		var zero T
		return zero, false
	}
	return m.takeLocked(), true
}

// Discard drops any pending value without counting it as a drop.
func (m *Mailbox[T]) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value = zero
	m.full = false
}

// Pending reports whether an untaken value is held.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// Close releases the pending value and wakes every waiter.
// Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value = zero
	m.full = false
	m.closed = true
	m.cond.Broadcast()
}

// Published counts values accepted by Publish.
func (m *Mailbox[T]) Published() uint64 { return m.published.Load() }

// Dropped counts values overwritten before anyone took them.
func (m *Mailbox[T]) Dropped() uint64 { return m.dropped.Load() }

func (m *Mailbox[T]) takeLocked() T {
	v := m.value
	var zero T
	m.value = zero
	m.full = false
	return v
}
