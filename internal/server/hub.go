package server

import (
	"sync"
	"sync/atomic"

	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/protocol"
	"github.com/thruflo/remoteui/internal/video"
)

// viewer is one connected client, over TCP or websocket.
type viewer struct {
	id        string
	transport string
	conn      protocol.Conn
	out       *outbox
	log       *logging.Logger
}

// hub fans packets out to every viewer. It caches the latest geometry, frame,
// progress and state so that a viewer joining mid-stream is brought up to date
// before it receives live packets.
type hub struct {
	log     *logging.Logger
	encoder video.Encoder

	mu             sync.Mutex
	closed         bool
	viewers        map[string]*viewer
	geom           video.Geometry
	geometry       *protocol.Packet
	lastFrame      *protocol.Packet
	lastProgress   *protocol.Packet
	lastSampleRate *protocol.Packet
	state          protocol.Packet

	framesEncoded atomic.Uint64
	retiredDrops  atomic.Uint64
}

func newHub(log *logging.Logger, encoder video.Encoder, state protocol.Packet) *hub {
	return &hub{
		log:     log,
		encoder: encoder,
		viewers: make(map[string]*viewer),
		state:   state,
	}
}

// add registers v and queues the handshake: ready, state, then the current
// geometry and frame if the stream is initialised. It returns false once the
// hub is closed.
func (h *hub) add(v *viewer, hello protocol.Packet) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.viewers[v.id] = v
	v.out.put(hello)
	v.out.put(h.state)
	for _, p := range []*protocol.Packet{h.geometry, h.lastFrame, h.lastProgress, h.lastSampleRate} {
		if p != nil {
			v.out.put(*p)
		}
	}
	h.log.Info("viewer added", "viewer", v.id, "transport", v.transport, "viewers", len(h.viewers))
	return true
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.viewers[id]
	if !ok {
		return
	}
	delete(h.viewers, id)
	h.retiredDrops.Add(v.out.dropped())
	h.log.Info("viewer removed", "viewer", id, "viewers", len(h.viewers))
}

// setGeometry announces a new stream size and forgets the cached frame.
func (h *hub) setGeometry(g video.Geometry) {
	p := protocol.MustEncode(protocol.TypeGeometry, protocol.GeometryMsg{
		Width:       g.Width,
		Height:      g.Height,
		PixelFormat: video.PixelFormat,
		Encoding:    h.encoder.Name(),
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.geom = g
	h.geometry = &p
	h.lastFrame = nil
	h.broadcastLocked(p)
}

// publishFrame encodes f once and hands it to every viewer. A frame whose size
// no longer matches the stream was overtaken by a geometry change and is
// dropped.
func (h *hub) publishFrame(f *video.Frame) {
	data, err := h.encoder.Encode(f)
	if err != nil {
		h.log.Warn("failed to encode frame", "seq", f.Seq, "error", err)
		return
	}
	p, err := protocol.Encode(protocol.TypeFrame, protocol.FrameMsg{
		Seq:      f.Seq,
		Width:    f.Width,
		Height:   f.Height,
		Encoding: h.encoder.Name(),
		Data:     data,
	})
	if err != nil {
		h.log.Warn("failed to encode frame packet", "seq", f.Seq, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if f.Width != h.geom.Width || f.Height != h.geom.Height {
		h.log.Debug("dropping frame from previous geometry", "seq", f.Seq)
		return
	}
	h.lastFrame = &p
	h.framesEncoded.Add(1)
	h.broadcastLocked(p)
}

// publish caches and broadcasts a progress, sample rate or state packet.
func (h *hub) publish(p protocol.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch p.Type {
	case protocol.TypeProgress:
		h.lastProgress = &p
	case protocol.TypeSampleRate:
		h.lastSampleRate = &p
	case protocol.TypeState:
		h.state = p
	}
	h.broadcastLocked(p)
}

func (h *hub) broadcastLocked(p protocol.Packet) {
	for _, v := range h.viewers {
		v.out.put(p)
	}
}

// closeAll disconnects every viewer and refuses new ones. Sessions unregister
// themselves.
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	// websocket closes write a close frame and may block until its deadline
	var wg sync.WaitGroup
	for _, v := range viewers {
		v.out.close()
		wg.Add(1)
		go func(v *viewer) {
			defer wg.Done()
			v.conn.Close()
		}(v)
	}
	wg.Wait()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// viewerDrops is the number of frames replaced in viewer outboxes before the
// viewer's writer could send them.
func (h *hub) viewerDrops() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.retiredDrops.Load()
	for _, v := range h.viewers {
		total += v.out.dropped()
	}
	return total
}

// runFrames distributes frames until the mailbox is closed.
func (h *hub) runFrames(frames *video.Mailbox[*video.Frame]) {
	for {
		f, ok := frames.Wait()
		if !ok {
			return
		}
		h.publishFrame(f)
	}
}
