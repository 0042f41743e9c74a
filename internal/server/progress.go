package server

import (
	"github.com/thruflo/remoteui/internal/protocol"
	"github.com/thruflo/remoteui/internal/video"
)

// telemetry is a latest-wins channel for scalar reports that travel beside
// the video stream. Publishers never block; the relay goroutine forwards the
// newest value to the hub at whatever pace the hub accepts.
type telemetry[T any] struct {
	kind protocol.Type
	box  *video.Mailbox[T]
}

func newTelemetry[T any](kind protocol.Type) *telemetry[T] {
	return &telemetry[T]{kind: kind, box: video.NewMailbox[T]()}
}

func (t *telemetry[T]) publish(v T) {
	t.box.Publish(v)
}

// relay runs until close is called.
func (t *telemetry[T]) relay(h *hub) {
	for {
		v, ok := t.box.Wait()
		if !ok {
			return
		}
		p, err := protocol.Encode(t.kind, v)
		if err != nil {
			h.log.Warn("failed to encode telemetry", "type", t.kind, "error", err)
			continue
		}
		h.publish(p)
	}
}

func (t *telemetry[T]) close() {
	t.box.Close()
}

func (t *telemetry[T]) dropped() uint64 {
	return t.box.Dropped()
}
