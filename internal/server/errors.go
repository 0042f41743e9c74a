package server

import (
	"errors"
	"fmt"
)

var (
	// ErrGeometryMismatch is returned when a submitted raster does not match
	// the stream geometry.
	ErrGeometryMismatch = errors.New("frame does not match stream geometry")
	// ErrNotInitialized is returned for frame or progress calls made before
	// InitialiseVideoStream.
	ErrNotInitialized = errors.New("video stream not initialised")
	// ErrAlreadyStopped is returned for calls made after Stop.
	ErrAlreadyStopped = errors.New("server already stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("server already started")
	// ErrBindFailure is matched by every *BindError.
	ErrBindFailure = errors.New("failed to bind listener")
	// ErrInvalidGeometry is returned for non-positive stream dimensions.
	ErrInvalidGeometry = errors.New("invalid stream geometry")
	// ErrInvalidProgress is returned for a negative progress step.
	ErrInvalidProgress = errors.New("invalid progress")
)

// BindError reports a listener that could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrBindFailure) true for any bind error.
func (e *BindError) Is(target error) bool {
	return target == ErrBindFailure
}
