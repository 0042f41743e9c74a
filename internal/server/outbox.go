package server

import (
	"sync"

	"github.com/thruflo/remoteui/internal/protocol"
)

// outbox holds what one viewer still has to receive. Every kind of packet has
// a single slot, so a slow viewer only ever falls behind by one packet per
// kind and always receives the newest. State packets are full snapshots, so
// replacing an unsent one loses nothing.
//
// Slots drain in a fixed order: ready, state, geometry, frame, progress,
// sample rate. A geometry change clears the pending frame so that no frame of
// the old size follows the new geometry.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	ready      *protocol.Packet
	state      *protocol.Packet
	geometry   *protocol.Packet
	frame      *protocol.Packet
	progress   *protocol.Packet
	sampleRate *protocol.Packet

	framesDropped uint64
}

func newOutbox() *outbox {
	o := &outbox{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// put stores p in the slot for its type. It reports whether an unsent packet
// was replaced.
func (o *outbox) put(p protocol.Packet) (replaced bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	var slot **protocol.Packet
	switch p.Type {
	case protocol.TypeReady:
		slot = &o.ready
	case protocol.TypeState:
		slot = &o.state
	case protocol.TypeGeometry:
		slot = &o.geometry
		o.frame = nil
	case protocol.TypeFrame:
		slot = &o.frame
	case protocol.TypeProgress:
		slot = &o.progress
	case protocol.TypeSampleRate:
		slot = &o.sampleRate
	default:
		return false
	}

	replaced = *slot != nil
	if replaced && p.Type == protocol.TypeFrame {
		o.framesDropped++
	}
	*slot = &p
	o.cond.Signal()
	return replaced
}

// next blocks until at least one slot is filled and drains all of them in
// order. It returns false once the outbox is closed.
func (o *outbox) next() ([]protocol.Packet, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for !o.closed && o.emptyLocked() {
		o.cond.Wait()
	}
	if o.closed {
		return nil, false
	}

	batch := make([]protocol.Packet, 0, 6)
	for _, slot := range []**protocol.Packet{&o.ready, &o.state, &o.geometry, &o.frame, &o.progress, &o.sampleRate} {
		if *slot != nil {
			batch = append(batch, **slot)
			*slot = nil
		}
	}
	return batch, true
}

func (o *outbox) emptyLocked() bool {
	return o.ready == nil && o.state == nil && o.geometry == nil &&
		o.frame == nil && o.progress == nil && o.sampleRate == nil
}

func (o *outbox) dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.framesDropped
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.cond.Broadcast()
}
