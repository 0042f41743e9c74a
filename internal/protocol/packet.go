// Package protocol defines the viewer wire format: type-prefixed,
// length-prefixed packets whose payloads are msgpack documents.
//
//	[Type:1][Length:4 big-endian][Payload:Length]
//
// The same packet bytes travel over the TCP listener and, one packet per
// binary message, over the websocket endpoint.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is sent in the server's ready packet.
const Version = 1

// HeaderSize is the length of the type and length prefix.
const HeaderSize = 5

// MaxPayload bounds a single packet. A 4K BGR frame is well under it.
const MaxPayload = 64 << 20

// ErrPacketTooLarge is returned when a header announces more than MaxPayload.
var ErrPacketTooLarge = errors.New("packet too large")

// Type identifies the payload carried by a packet.
type Type byte

// Server to viewer.
const (
	TypeReady      Type = 0x01
	TypeGeometry   Type = 0x02
	TypeFrame      Type = 0x03
	TypeProgress   Type = 0x04
	TypeSampleRate Type = 0x05
	TypeState      Type = 0x06
)

// Viewer to server.
const (
	TypeStop   Type = 0x10
	TypeValue  Type = 0x11
	TypePrompt Type = 0x12
	TypeSteps  Type = 0x13
	TypePlay   Type = 0x14
	TypeDetach Type = 0x15
)

var typeNames = map[Type]string{
	TypeReady:      "ready",
	TypeGeometry:   "geometry",
	TypeFrame:      "frame",
	TypeProgress:   "progress",
	TypeSampleRate: "sample_rate",
	TypeState:      "state",
	TypeStop:       "stop",
	TypeValue:      "value",
	TypePrompt:     "prompt",
	TypeSteps:      "steps",
	TypePlay:       "play",
	TypeDetach:     "detach",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Packet is one framed message.
type Packet struct {
	Type    Type
	Payload []byte
}

// WritePacket writes a single packet to w.
func WritePacket(w io.Writer, p Packet) error {
	if len(p.Payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(p.Payload))
	}
	var header [HeaderSize]byte
	header[0] = byte(p.Type)
	binary.BigEndian.PutUint32(header[1:], uint32(len(p.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return nil
	}
	_, err := w.Write(p.Payload)
	return err
}

// ReadPacket reads a single packet from r. A clean close between packets
// returns io.EOF; a close inside a packet returns io.ErrUnexpectedEOF.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}

	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxPayload {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, length)
	}

	p := Packet{Type: Type(header[0])}
	if length == 0 {
		return p, nil
	}
	p.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, p.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	return p, nil
}

// Bytes returns the packet framed into one buffer, as sent in a websocket
// message.
func (p Packet) Bytes() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = byte(p.Type)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// ParsePacket parses a buffer holding exactly one packet.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("short packet: %d bytes", len(b))
	}
	length := binary.BigEndian.Uint32(b[1:HeaderSize])
	if length > MaxPayload {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, length)
	}
	if int(length) != len(b)-HeaderSize {
		return Packet{}, fmt.Errorf("packet length %d does not match %d payload bytes", length, len(b)-HeaderSize)
	}
	p := Packet{Type: Type(b[0])}
	if length > 0 {
		p.Payload = b[HeaderSize:]
	}
	return p, nil
}
