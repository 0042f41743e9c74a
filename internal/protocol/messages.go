package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/thruflo/remoteui/internal/control"
)

// Hello is exchanged in ready packets. The server fills both fields; a viewer
// answers with an empty Hello once it is listening.
type Hello struct {
	Version  int    `msgpack:"version"`
	ViewerID string `msgpack:"viewer_id,omitempty"`
}

// GeometryMsg declares the size and format of the frames that follow.
type GeometryMsg struct {
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
	PixelFormat string `msgpack:"pixel_format"`
	Encoding    string `msgpack:"encoding"`
}

// FrameMsg carries one encoded frame.
type FrameMsg struct {
	Seq      uint64 `msgpack:"seq"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Encoding string `msgpack:"encoding"`
	Data     []byte `msgpack:"data"`
}

// ProgressMsg reports producer progress. Fraction is Step/Total, or 0 when
// Total is not positive.
type ProgressMsg struct {
	Step     int     `msgpack:"step"`
	Total    int     `msgpack:"total"`
	Fraction float32 `msgpack:"fraction"`
}

// NewProgressMsg fills in Fraction.
func NewProgressMsg(step, total int) ProgressMsg {
	m := ProgressMsg{Step: step, Total: total}
	if total > 0 {
		m.Fraction = float32(step) / float32(total)
	}
	return m
}

// SampleRateMsg is renderer telemetry, in samples per second.
type SampleRateMsg struct {
	PathRate float32 `msgpack:"path_rate"`
	RayRate  float32 `msgpack:"ray_rate"`
}

// StateMsg is the full control state broadcast after every applied edit.
type StateMsg struct {
	Stop      bool    `msgpack:"stop"`
	IsPlaying bool    `msgpack:"is_playing"`
	Prompt    string  `msgpack:"prompt"`
	Steps     int     `msgpack:"steps"`
	Value     float32 `msgpack:"value"`
	Version   uint64  `msgpack:"version"`
}

// NewStateMsg converts a snapshot for the wire.
func NewStateMsg(s control.State, version uint64) StateMsg {
	return StateMsg{
		Stop:      s.Stop,
		IsPlaying: s.IsPlaying,
		Prompt:    s.Prompt,
		Steps:     s.Steps,
		Value:     s.Value,
		Version:   version,
	}
}

// State converts back to a control snapshot.
func (m StateMsg) State() control.State {
	return control.State{
		Stop:      m.Stop,
		IsPlaying: m.IsPlaying,
		Prompt:    m.Prompt,
		Steps:     m.Steps,
		Value:     m.Value,
	}
}

// Encode marshals v into a packet of type t.
func Encode(t Type, v any) (Packet, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return Packet{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Packet{Type: t, Payload: payload}, nil
}

// MustEncode is Encode for values that always marshal.
func MustEncode(t Type, v any) Packet {
	p, err := Encode(t, v)
	if err != nil {
		panic(err)
	}
	return p
}

// Decode unmarshals the payload into v.
func (p Packet) Decode(v any) error {
	if err := msgpack.Unmarshal(p.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", p.Type, err)
	}
	return nil
}

// IsControl reports whether t is one of the viewer edit packets.
func (t Type) IsControl() bool {
	switch t {
	case TypeStop, TypeValue, TypePrompt, TypeSteps, TypePlay:
		return true
	}
	return false
}

// EditPackets splits an edit into one control packet per set field.
func EditPackets(e control.Edit) ([]Packet, error) {
	var packets []Packet
	add := func(t Type, v any) error {
		p, err := Encode(t, v)
		if err != nil {
			return err
		}
		packets = append(packets, p)
		return nil
	}

	if e.Prompt != nil {
		if err := add(TypePrompt, *e.Prompt); err != nil {
			return nil, err
		}
	}
	if e.Steps != nil {
		if err := add(TypeSteps, *e.Steps); err != nil {
			return nil, err
		}
	}
	if e.Value != nil {
		if err := add(TypeValue, *e.Value); err != nil {
			return nil, err
		}
	}
	if e.IsPlaying != nil {
		if err := add(TypePlay, *e.IsPlaying); err != nil {
			return nil, err
		}
	}
	// stop goes last so the producer sees the other fields with it
	if e.Stop != nil {
		if err := add(TypeStop, *e.Stop); err != nil {
			return nil, err
		}
	}
	return packets, nil
}

// DecodeEdit converts a control packet into a single-field edit.
func DecodeEdit(p Packet) (control.Edit, error) {
	switch p.Type {
	case TypeStop:
		var v bool
		if err := p.Decode(&v); err != nil {
			return control.Edit{}, err
		}
		return control.SetStop(v), nil
	case TypePlay:
		var v bool
		if err := p.Decode(&v); err != nil {
			return control.Edit{}, err
		}
		return control.SetPlaying(v), nil
	case TypePrompt:
		var v string
		if err := p.Decode(&v); err != nil {
			return control.Edit{}, err
		}
		return control.SetPrompt(v), nil
	case TypeSteps:
		var v int
		if err := p.Decode(&v); err != nil {
			return control.Edit{}, err
		}
		return control.SetSteps(v), nil
	case TypeValue:
		var v float32
		if err := p.Decode(&v); err != nil {
			return control.Edit{}, err
		}
		return control.SetValue(v), nil
	}
	return control.Edit{}, fmt.Errorf("%s is not a control packet", p.Type)
}
