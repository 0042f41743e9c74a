// Package client is a headless viewer for the interface server. It keeps the
// latest frame, progress, sample rate and control state it has received and
// sends control edits back. The CLI's watch and control commands and the
// server's integration tests are built on it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thruflo/remoteui/internal/control"
	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/protocol"
	"github.com/thruflo/remoteui/internal/video"
)

var (
	// ErrTransportDisconnected is returned once the connection to the server
	// is gone.
	ErrTransportDisconnected = errors.New("transport disconnected")
	// ErrVideoTimeout is returned by NextFrame when no frame arrives within
	// the configured video timeout.
	ErrVideoTimeout = errors.New("video timeout")
	// ErrHandshake is returned when the server does not open with a ready
	// packet.
	ErrHandshake = errors.New("handshake failed")
)

// Options configures a Client.
type Options struct {
	// DialTimeout bounds connecting and the handshake. Default 5s.
	DialTimeout time.Duration
	// VideoTimeout is how long NextFrame waits for a frame. Zero waits for
	// the caller's context only.
	VideoTimeout time.Duration
	// Token authenticates websocket connections to a password protected server.
	Token  string
	Logger *logging.Logger
}

// Frame is a decoded frame in BGR order.
type Frame struct {
	Seq        uint64
	Raster     video.Raster
	ReceivedAt time.Time
}

// Snapshot is everything the client has received so far.
type Snapshot struct {
	Geometry    video.Geometry
	HasGeometry bool
	Encoding    string

	Frame  *Frame
	Frames uint64

	Progress   *protocol.ProgressMsg
	SampleRate *protocol.SampleRateMsg

	State        control.State
	StateVersion uint64
	HasState     bool
}

// Client is a connected viewer.
type Client struct {
	conn     protocol.Conn
	opts     Options
	log      *logging.Logger
	viewerID string

	wmu sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	changed chan struct{}
	err     error
	done    chan struct{}
}

// Dial connects to a server's TCP viewer listener.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = withDefaults(opts)
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(opts.DialTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	c, err := start(protocol.NewStreamConn(conn), opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})
	c.run()
	return c, nil
}

// DialWebsocket connects to a server's web listener. base is the listener's
// host:port or an http(s)/ws(s) URL.
func DialWebsocket(ctx context.Context, base string, opts Options) (*Client, error) {
	opts = withDefaults(opts)
	u, err := websocketURL(base, opts.Token)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ws, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: unauthorized", u)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	ws.SetReadDeadline(time.Now().Add(opts.DialTimeout))
	c, err := start(protocol.NewWebsocketConn(ws), opts)
	if err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Time{})
	c.run()
	return c, nil
}

func websocketURL(base, token string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server address %q", base)
	}
	u.Path = "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func withDefaults(opts Options) Options {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return opts
}

// start reads the server's ready packet and answers it.
func start(conn protocol.Conn, opts Options) (*Client, error) {
	p, err := conn.ReadPacket()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if p.Type != protocol.TypeReady {
		conn.Close()
		return nil, fmt.Errorf("%w: first packet was %s", ErrHandshake, p.Type)
	}
	var hello protocol.Hello
	if err := p.Decode(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if hello.Version != protocol.Version {
		conn.Close()
		return nil, fmt.Errorf("%w: server speaks version %d", ErrHandshake, hello.Version)
	}

	c := &Client{
		conn:     conn,
		opts:     opts,
		log:      opts.Logger.With("viewer", hello.ViewerID),
		viewerID: hello.ViewerID,
		changed:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := c.write(protocol.MustEncode(protocol.TypeReady, protocol.Hello{Version: protocol.Version})); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) run() {
	go c.readLoop()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		p, err := c.conn.ReadPacket()
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.handle(p); err != nil {
			c.log.Warn("ignoring packet", "type", p.Type, "error", err)
		}
	}
}

func (c *Client) handle(p protocol.Packet) error {
	switch p.Type {
	case protocol.TypeGeometry:
		var m protocol.GeometryMsg
		if err := p.Decode(&m); err != nil {
			return err
		}
		c.update(func(s *Snapshot) {
			s.Geometry = video.Geometry{Width: m.Width, Height: m.Height}
			s.HasGeometry = true
			s.Encoding = m.Encoding
			s.Frame = nil
		})
	case protocol.TypeFrame:
		var m protocol.FrameMsg
		if err := p.Decode(&m); err != nil {
			return err
		}
		r, err := video.Decode(m.Encoding, m.Width, m.Height, m.Data)
		if err != nil {
			return err
		}
		f := &Frame{Seq: m.Seq, Raster: r, ReceivedAt: time.Now()}
		c.update(func(s *Snapshot) {
			s.Frame = f
			s.Frames++
		})
	case protocol.TypeProgress:
		var m protocol.ProgressMsg
		if err := p.Decode(&m); err != nil {
			return err
		}
		c.update(func(s *Snapshot) { s.Progress = &m })
	case protocol.TypeSampleRate:
		var m protocol.SampleRateMsg
		if err := p.Decode(&m); err != nil {
			return err
		}
		c.update(func(s *Snapshot) { s.SampleRate = &m })
	case protocol.TypeState:
		var m protocol.StateMsg
		if err := p.Decode(&m); err != nil {
			return err
		}
		c.update(func(s *Snapshot) {
			s.State = m.State()
			s.StateVersion = m.Version
			s.HasState = true
		})
	default:
		return fmt.Errorf("unexpected packet %s", p.Type)
	}
	return nil
}

// update mutates the snapshot and wakes every waiter.
func (c *Client) update(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snap)
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) fail(err error) {
	if protocol.IsDisconnect(err) {
		c.log.Debug("disconnected", "error", err)
	} else {
		c.log.Warn("connection failed", "error", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
	}
	close(c.changed)
	c.changed = make(chan struct{})
}

// ViewerID is the id the server assigned to this connection.
func (c *Client) ViewerID() string {
	return c.viewerID
}

// Snapshot returns a copy of everything received so far.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Err returns the terminal connection error, or nil while connected.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WaitFor blocks until cond holds for the current snapshot, the connection
// ends, or ctx is done.
func (c *Client) WaitFor(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap, changed, err := c.snap, c.changed, c.err
		c.mu.Unlock()

		if cond(snap) {
			return snap, nil
		}
		if err != nil {
			return snap, err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// NextFrame waits for a frame newer than after. It gives up with
// ErrVideoTimeout when the video timeout elapses first.
func (c *Client) NextFrame(ctx context.Context, after uint64) (Frame, error) {
	if c.opts.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.VideoTimeout)
		defer cancel()
	}
	snap, err := c.WaitFor(ctx, func(s Snapshot) bool {
		return s.Frame != nil && s.Frame.Seq > after
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && c.opts.VideoTimeout > 0 {
			return Frame{}, ErrVideoTimeout
		}
		return Frame{}, err
	}
	return *snap.Frame, nil
}

// Send applies an edit on the server. Each set field travels as its own
// control packet.
func (c *Client) Send(e control.Edit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	packets, err := protocol.EditPackets(e)
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return nil
	}
	return c.write(packets...)
}

// Detach asks the server to drop this viewer and closes the connection.
func (c *Client) Detach() error {
	err := c.write(protocol.MustEncode(protocol.TypeDetach, true))
	c.Close()
	return err
}

// Close closes the connection and waits for the reader to exit.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) write(packets ...protocol.Packet) error {
	if err := c.Err(); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteBatch(packets); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
	}
	return nil
}
