// Package video holds the frame types of the interface server: the caller's
// raster, the fixed stream geometry, the single-slot mailbox that implements
// latest-frame-wins, and the encoders that turn frames into viewer payloads.
//
// Frames travel to viewers as BGR24. A caller that renders RGB asks the server
// to swap channels while it copies the raster; a caller that already renders BGR
// sends its bytes unchanged.
package video

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

// Channels is the number of 8-bit channels per pixel.
const Channels = 3

// PixelFormat is the channel order of frames on the wire.
const PixelFormat = "bgr24"

var (
	// ErrShape is returned when a raster does not match its declared size.
	ErrShape = errors.New("raster shape mismatch")
	// ErrGeometry is returned for non-positive dimensions.
	ErrGeometry = errors.New("invalid geometry")
)

// Geometry is the fixed size of a video stream.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks that both dimensions are positive.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrGeometry, g.Width, g.Height)
	}
	return nil
}

// FrameSize is the byte length of one tightly packed frame.
func (g Geometry) FrameSize() int {
	return g.Width * g.Height * Channels
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Raster is a caller-owned height×width×3 image, rows tightly packed.
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRaster allocates a zeroed raster.
func NewRaster(width, height int) Raster {
	return Raster{Width: width, Height: height, Pix: make([]byte, width*height*Channels)}
}

// Geometry returns the raster's declared size.
func (r Raster) Geometry() Geometry {
	return Geometry{Width: r.Width, Height: r.Height}
}

// Set writes one pixel in the raster's own channel order.
func (r Raster) Set(x, y int, c0, c1, c2 uint8) {
	i := (y*r.Width + x) * Channels
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c0, c1, c2
}

// At returns one pixel in the raster's own channel order.
func (r Raster) At(x, y int) [3]uint8 {
	i := (y*r.Width + x) * Channels
	return [3]uint8{r.Pix[i], r.Pix[i+1], r.Pix[i+2]}
}

// CheckShape verifies the raster matches g and that Pix holds exactly one frame.
func (r Raster) CheckShape(g Geometry) error {
	if r.Width != g.Width || r.Height != g.Height {
		return fmt.Errorf("%w: got %dx%d, stream is %s", ErrShape, r.Width, r.Height, g)
	}
	if len(r.Pix) != g.FrameSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShape, len(r.Pix), g.FrameSize())
	}
	return nil
}

// FromImage converts any image to an RGB raster.
func FromImage(img image.Image) Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			r.Set(x, y, c.R, c.G, c.B)
		}
	}
	return r
}

// Frame is a server-owned copy of a submitted raster in wire channel order.
// Pix is never modified after the frame is published.
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Pix       []byte
	Timestamp time.Time
}

// CopyFrame copies src into a new frame, swapping the first and third channel
// when swap is set. The caller's buffer is not retained.
func CopyFrame(src Raster, swap bool) *Frame {
	pix := make([]byte, len(src.Pix))
	if swap {
		for i := 0; i+2 < len(pix); i += Channels {
			pix[i] = src.Pix[i+2]
			pix[i+1] = src.Pix[i+1]
			pix[i+2] = src.Pix[i]
		}
	} else {
		copy(pix, src.Pix)
	}
	return &Frame{
		Width:     src.Width,
		Height:    src.Height,
		Pix:       pix,
		Timestamp: time.Now(),
	}
}

// Raster exposes the frame's pixels as a BGR raster (shared, read-only).
func (f *Frame) Raster() Raster {
	return Raster{Width: f.Width, Height: f.Height, Pix: f.Pix}
}
