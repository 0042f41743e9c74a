package protocol

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single batch write. A peer that cannot take a
// batch within it is treated as gone.
const DefaultWriteTimeout = 10 * time.Second

// Conn carries whole packets. One goroutine may read while another writes.
type Conn interface {
	ReadPacket() (Packet, error)
	WriteBatch(batch []Packet) error
	Close() error
	RemoteAddr() string
}

// StreamConn frames packets directly on a stream socket.
type StreamConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewStreamConn wraps a TCP (or any stream) connection.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriterSize(conn, 64<<10),
	}
}

func (c *StreamConn) ReadPacket() (Packet, error) {
	return ReadPacket(c.r)
}

// WriteBatch writes every packet and flushes once.
func (c *StreamConn) WriteBatch(batch []Packet) error {
	c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	for _, p := range batch {
		if err := WritePacket(c.w, p); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WebsocketConn carries one packet per binary websocket message. Text
// messages are ignored.
type WebsocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewWebsocketConn wraps an upgraded or dialled websocket.
func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	conn.SetReadLimit(HeaderSize + MaxPayload)
	return &WebsocketConn{conn: conn}
}

func (c *WebsocketConn) ReadPacket() (Packet, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return Packet{}, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return ParsePacket(data)
	}
}

func (c *WebsocketConn) WriteBatch(batch []Packet) error {
	c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	for _, p := range batch {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, p.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Close sends a close frame and closes the socket. Safe to call concurrently
// with a writer.
func (c *WebsocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *WebsocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// IsDisconnect reports whether err is an ordinary end of a connection rather
// than a protocol failure. An expired deadline is not a disconnect, see
// IsTimeout.
func IsDisconnect(err error) bool {
	if IsTimeout(err) {
		return false
	}
	var opErr *net.OpError
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &opErr) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// IsTimeout reports whether err is a read or write deadline expiring, as when
// a peer stops taking data for DefaultWriteTimeout.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
