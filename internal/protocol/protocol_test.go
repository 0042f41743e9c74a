package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/remoteui/internal/control"
)

func TestWriteReadPacket(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WritePacket(&buf, Packet{Type: TypeFrame, Payload: []byte{1, 2, 3}}))
	require.NoError(t, WritePacket(&buf, Packet{Type: TypeDetach}))

	assert.Equal(t, []byte{0x03, 0, 0, 0, 3, 1, 2, 3, 0x15, 0, 0, 0, 0}, buf.Bytes())

	p, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeFrame, p.Type)
	assert.Equal(t, []byte{1, 2, 3}, p.Payload)

	p, err = ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeDetach, p.Type)
	assert.Empty(t, p.Payload)

	_, err = ReadPacket(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPacketTruncated(t *testing.T) {
	full := Packet{Type: TypePrompt, Payload: []byte("hello")}.Bytes()

	_, err := ReadPacket(bytes.NewReader(full[:7]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadPacket(bytes.NewReader(full[:3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadPacketTooLarge(t *testing.T) {
	header := make([]byte, HeaderSize)
	header[0] = byte(TypeFrame)
	binary.BigEndian.PutUint32(header[1:], MaxPayload+1)

	_, err := ReadPacket(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	_, err = ParsePacket(header)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestParsePacket(t *testing.T) {
	p, err := ParsePacket(Packet{Type: TypeValue, Payload: []byte{9}}.Bytes())
	require.NoError(t, err)
	assert.Equal(t, TypeValue, p.Type)
	assert.Equal(t, []byte{9}, p.Payload)

	_, err = ParsePacket([]byte{1, 0})
	assert.Error(t, err)

	_, err = ParsePacket([]byte{1, 0, 0, 0, 4, 1})
	assert.Error(t, err)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "frame", TypeFrame.String())
	assert.Equal(t, "sample_rate", TypeSampleRate.String())
	assert.Equal(t, "unknown(0x7f)", Type(0x7f).String())
}

func TestProgressFraction(t *testing.T) {
	assert.InDelta(t, 0.25, NewProgressMsg(5, 20).Fraction, 1e-6)
	assert.Zero(t, NewProgressMsg(5, 0).Fraction)
	assert.Zero(t, NewProgressMsg(5, -1).Fraction)
}

func TestEncodeDecodeMessages(t *testing.T) {
	p, err := Encode(TypeGeometry, GeometryMsg{Width: 640, Height: 480, PixelFormat: "bgr24", Encoding: "raw"})
	require.NoError(t, err)

	var g GeometryMsg
	require.NoError(t, p.Decode(&g))
	assert.Equal(t, 640, g.Width)
	assert.Equal(t, "bgr24", g.PixelFormat)

	s := control.State{IsPlaying: true, Prompt: "a cat", Steps: 30, Value: 1.5}
	p = MustEncode(TypeState, NewStateMsg(s, 7))
	var sm StateMsg
	require.NoError(t, p.Decode(&sm))
	assert.Equal(t, s, sm.State())
	assert.Equal(t, uint64(7), sm.Version)
}

func TestDecodeWrongPayload(t *testing.T) {
	p := MustEncode(TypeSteps, "twenty")
	_, err := DecodeEdit(p)
	assert.Error(t, err)
}

func TestEditPacketsRoundTrip(t *testing.T) {
	e := control.SetPrompt("fox").
		Merge(control.SetSteps(12)).
		Merge(control.SetValue(0.5)).
		Merge(control.SetPlaying(false)).
		Merge(control.SetStop(true))

	packets, err := EditPackets(e)
	require.NoError(t, err)
	require.Len(t, packets, 5)
	assert.Equal(t, TypeStop, packets[len(packets)-1].Type)

	var merged control.Edit
	for _, p := range packets {
		assert.True(t, p.Type.IsControl())
		one, err := DecodeEdit(p)
		require.NoError(t, err)
		merged = merged.Merge(one)
	}

	require.NotNil(t, merged.Prompt)
	assert.Equal(t, "fox", *merged.Prompt)
	assert.Equal(t, 12, *merged.Steps)
	assert.Equal(t, float32(0.5), *merged.Value)
	assert.False(t, *merged.IsPlaying)
	assert.True(t, *merged.Stop)
}

func TestDecodeEditRejectsNonControl(t *testing.T) {
	_, err := DecodeEdit(Packet{Type: TypeFrame})
	assert.Error(t, err)
	assert.False(t, TypeDetach.IsControl())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWritePacketError(t *testing.T) {
	err := WritePacket(failWriter{}, Packet{Type: TypeReady, Payload: []byte{1}})
	assert.EqualError(t, err, "broken pipe")
}

func TestDeadlineIsNotADisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(-time.Second)))
	_, err = NewStreamConn(conn).ReadPacket()
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsDisconnect(err))

	require.NoError(t, conn.Close())
	_, err = conn.Read(make([]byte, 1))
	assert.True(t, IsDisconnect(err))
	assert.False(t, IsTimeout(err))
}

func TestIsDisconnect(t *testing.T) {
	assert.True(t, IsDisconnect(io.EOF))
	assert.True(t, IsDisconnect(io.ErrUnexpectedEOF))
	assert.True(t, IsDisconnect(net.ErrClosed))
	assert.False(t, IsDisconnect(ErrPacketTooLarge))
}
