package testutil

import (
	"log"
	"testing"

	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/video"
)

// SolidRaster returns a w×h raster with every pixel set to (c0, c1, c2).
func SolidRaster(w, h int, c0, c1, c2 uint8) video.Raster {
	r := video.NewRaster(w, h)
	for i := 0; i < len(r.Pix); i += video.Channels {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c0, c1, c2
	}
	return r
}

// RasterWithPixel returns a black raster with a single pixel set.
func RasterWithPixel(w, h, x, y int, c0, c1, c2 uint8) video.Raster {
	r := video.NewRaster(w, h)
	r.Set(x, y, c0, c1, c2)
	return r
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// TestLogger returns a debug-level logger whose output is attached to t.
func TestLogger(t *testing.T) *logging.Logger {
	l := logging.New()
	l.SetOutput(log.New(testWriter{t}, "", 0))
	l.SetLevel(logging.LevelDebug)
	return l
}
