// Package testutil provides shared test helpers for remoteui.
//
// # Contexts
//
//   - ContextWithTestDeadline(t, fallback) - context bounded by the test deadline
//   - ShortOperationContext(t) - 30 second variant for quick network tests
//
// # Fixtures
//
//   - SolidRaster(w, h, c0, c1, c2) - raster filled with one pixel value
//   - RasterWithPixel(w, h, x, y, c0, c1, c2) - black raster with one marked pixel
//   - TestLogger(t) - logger that writes through t.Log
//
// # Environment
//
//   - FindProjectRoot(t) - directory holding go.mod
//   - WriteTestFile(t, base, path, content) - writes a file under base
//   - MustMarshalJSON / MustUnmarshalJSON
//
// # Assertions and cleanup
//
//   - AssertPixel(t, r, x, y, want) - checks one pixel of a raster
//   - StopOnCleanup(t, s) - stops a server when the test ends
package testutil
