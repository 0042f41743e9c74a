package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/remoteui/internal/protocol"
)

func packetOf(t protocol.Type, payload string) protocol.Packet {
	return protocol.Packet{Type: t, Payload: []byte(payload)}
}

func types(batch []protocol.Packet) []protocol.Type {
	out := make([]protocol.Type, len(batch))
	for i, p := range batch {
		out[i] = p.Type
	}
	return out
}

func TestOutboxDrainOrder(t *testing.T) {
	o := newOutbox()
	o.put(packetOf(protocol.TypeSampleRate, "r"))
	o.put(packetOf(protocol.TypeProgress, "p"))
	o.put(packetOf(protocol.TypeState, "s"))
	o.put(packetOf(protocol.TypeGeometry, "g"))
	o.put(packetOf(protocol.TypeFrame, "f"))
	o.put(packetOf(protocol.TypeReady, "hello"))

	batch, ok := o.next()
	require.True(t, ok)
	assert.Equal(t, []protocol.Type{
		protocol.TypeReady,
		protocol.TypeState,
		protocol.TypeGeometry,
		protocol.TypeFrame,
		protocol.TypeProgress,
		protocol.TypeSampleRate,
	}, types(batch))
}

func TestOutboxLatestFrameWins(t *testing.T) {
	o := newOutbox()
	assert.False(t, o.put(packetOf(protocol.TypeFrame, "1")))
	assert.True(t, o.put(packetOf(protocol.TypeFrame, "2")))
	assert.True(t, o.put(packetOf(protocol.TypeFrame, "3")))

	batch, ok := o.next()
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, "3", string(batch[0].Payload))
	assert.Equal(t, uint64(2), o.dropped())
}

func TestOutboxGeometryClearsPendingFrame(t *testing.T) {
	o := newOutbox()
	o.put(packetOf(protocol.TypeFrame, "old"))
	o.put(packetOf(protocol.TypeGeometry, "new"))

	batch, ok := o.next()
	require.True(t, ok)
	assert.Equal(t, []protocol.Type{protocol.TypeGeometry}, types(batch))
}

func TestOutboxIgnoresControlPackets(t *testing.T) {
	o := newOutbox()
	assert.False(t, o.put(packetOf(protocol.TypeStop, "")))
	o.close()
	_, ok := o.next()
	assert.False(t, ok)
}

func TestOutboxNextBlocksUntilPut(t *testing.T) {
	o := newOutbox()
	got := make(chan []protocol.Packet, 1)
	go func() {
		batch, _ := o.next()
		got <- batch
	}()

	select {
	case <-got:
		t.Fatal("next returned on an empty outbox")
	case <-time.After(20 * time.Millisecond):
	}

	o.put(packetOf(protocol.TypeProgress, "p"))
	select {
	case batch := <-got:
		assert.Equal(t, []protocol.Type{protocol.TypeProgress}, types(batch))
	case <-time.After(time.Second):
		t.Fatal("next did not wake")
	}
}

func TestOutboxCloseWakesWriter(t *testing.T) {
	o := newOutbox()
	done := make(chan bool, 1)
	go func() {
		_, ok := o.next()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	o.close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("close did not wake writer")
	}
	assert.False(t, o.put(packetOf(protocol.TypeFrame, "late")))
}
