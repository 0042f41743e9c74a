package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/remoteui/internal/video"
)

// AssertPixel asserts the channels of one pixel, in the raster's own order.
func AssertPixel(t *testing.T, r video.Raster, x, y int, want [3]uint8) {
	t.Helper()
	require.Less(t, x, r.Width, "x out of range")
	require.Less(t, y, r.Height, "y out of range")
	assert.Equal(t, want, r.At(x, y), "pixel (%d,%d)", x, y)
}
