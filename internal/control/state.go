// Package control holds the mutable control state that a viewer edits and the
// producer loop polls.
//
// A Slot is written by transport goroutines (one Apply per viewer edit) and read
// by the producer (Peek, Changed, Consume). Snapshots are returned by value and
// copied under the slot's lock, so a reader never observes a partially applied
// edit. Edits that arrive between two Consume calls coalesce: each field keeps
// the last value written, and the dirty flag only records that at least one edit
// happened.
package control

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidSteps is returned when an edit sets Steps below 1.
var ErrInvalidSteps = errors.New("steps must be at least 1")

// State is an immutable snapshot of the control state.
type State struct {
	Stop      bool    `json:"stop"`
	IsPlaying bool    `json:"is_playing"`
	Prompt    string  `json:"prompt"`
	Steps     int     `json:"steps"`
	Value     float32 `json:"value"`
}

// DefaultState is the state of a freshly created server: playing, 20 steps,
// value 1.0, no prompt.
func DefaultState() State {
	return State{IsPlaying: true, Steps: 20, Value: 1.0}
}

// String formats the state for log lines.
func (s State) String() string {
	return fmt.Sprintf("State(stop=%t, is_playing=%t, prompt=%q, steps=%d, value=%g)",
		s.Stop, s.IsPlaying, s.Prompt, s.Steps, s.Value)
}

// Edit is a partial update from a viewer. Nil fields are left unchanged.
type Edit struct {
	Stop      *bool    `json:"stop,omitempty"`
	IsPlaying *bool    `json:"is_playing,omitempty"`
	Prompt    *string  `json:"prompt,omitempty"`
	Steps     *int     `json:"steps,omitempty"`
	Value     *float32 `json:"value,omitempty"`
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.Stop == nil && e.IsPlaying == nil && e.Prompt == nil && e.Steps == nil && e.Value == nil
}

// Validate checks field ranges.
func (e Edit) Validate() error {
	if e.Steps != nil && *e.Steps < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidSteps, *e.Steps)
	}
	return nil
}

// Merge returns e with every field set in other overwriting e's.
func (e Edit) Merge(other Edit) Edit {
	if other.Stop != nil {
		e.Stop = other.Stop
	}
	if other.IsPlaying != nil {
		e.IsPlaying = other.IsPlaying
	}
	if other.Prompt != nil {
		e.Prompt = other.Prompt
	}
	if other.Steps != nil {
		e.Steps = other.Steps
	}
	if other.Value != nil {
		e.Value = other.Value
	}
	return e
}

func (e Edit) applyTo(s State) State {
	if e.Stop != nil {
		s.Stop = *e.Stop
	}
	if e.IsPlaying != nil {
		s.IsPlaying = *e.IsPlaying
	}
	if e.Prompt != nil {
		s.Prompt = *e.Prompt
	}
	if e.Steps != nil {
		s.Steps = *e.Steps
	}
	if e.Value != nil {
		s.Value = *e.Value
	}
	return s
}

// SetStop and the other Set helpers build single-field edits.
func SetStop(v bool) Edit { return Edit{Stop: &v} }

func SetPlaying(v bool) Edit { return Edit{IsPlaying: &v} }

func SetPrompt(v string) Edit { return Edit{Prompt: &v} }

func SetSteps(v int) Edit { return Edit{Steps: &v} }

func SetValue(v float32) Edit { return Edit{Value: &v} }

// Slot guards the current State and its dirty flag.
type Slot struct {
	mu      sync.Mutex
	state   State
	dirty   bool
	version uint64
}

// NewSlot creates a slot holding initial, not dirty.
func NewSlot(initial State) *Slot {
	return &Slot{state: initial}
}

// Apply merges an edit into the state and marks the slot dirty. It returns the
// resulting snapshot and its version. Empty edits change nothing.
func (s *Slot) Apply(e Edit) (State, uint64, error) {
	if err := e.Validate(); err != nil {
		return s.Peek(), s.Version(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Empty() {
		return s.state, s.version, nil
	}

	s.state = e.applyTo(s.state)
	s.dirty = true
	s.version++
	return s.state, s.version, nil
}

// Peek returns the current state without clearing the dirty flag.
func (s *Slot) Peek() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Changed reports whether an edit was applied since the last Consume.
func (s *Slot) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Consume returns the current state and clears the dirty flag atomically.
func (s *Slot) Consume() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
	return s.state
}

// Version counts applied edits. It never decreases.
func (s *Slot) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
