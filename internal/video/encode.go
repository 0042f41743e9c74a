package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// Encoding names, shared with the config and the wire protocol.
const (
	EncodingRaw  = "raw"
	EncodingJPEG = "jpeg"
	EncodingPNG  = "png"
)

// Encoder turns a frame into the payload sent to viewers.
type Encoder interface {
	Name() string
	Encode(f *Frame) ([]byte, error)
}

// NewEncoder returns the encoder for name. jpegQuality is only used by jpeg.
func NewEncoder(name string, jpegQuality int) (Encoder, error) {
	switch name {
	case EncodingRaw, "":
		return rawEncoder{}, nil
	case EncodingJPEG:
		return jpegEncoder{quality: jpegQuality}, nil
	case EncodingPNG:
		return pngEncoder{}, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

type rawEncoder struct{}

func (rawEncoder) Name() string { return EncodingRaw }

// Encode shares the frame's pixels; frames are immutable once published.
func (rawEncoder) Encode(f *Frame) ([]byte, error) {
	return f.Pix, nil
}

type jpegEncoder struct {
	quality int
}

func (jpegEncoder) Name() string { return EncodingJPEG }

func (e jpegEncoder) Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, toRGBA(f), &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

type pngEncoder struct{}

func (pngEncoder) Name() string { return EncodingPNG }

func (pngEncoder) Encode(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, toRGBA(f)); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// toRGBA reinterprets BGR24 pixels as an opaque RGBA image.
func toRGBA(f *Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+Channels, j+4 {
		img.Pix[j] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Decode converts a viewer payload back into a BGR raster.
func Decode(encoding string, width, height int, data []byte) (Raster, error) {
	switch encoding {
	case EncodingRaw, "":
		r := Raster{Width: width, Height: height, Pix: data}
		if err := r.CheckShape(Geometry{Width: width, Height: height}); err != nil {
			return Raster{}, err
		}
		return r, nil
	case EncodingJPEG, EncodingPNG:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return Raster{}, fmt.Errorf("decode %s: %w", encoding, err)
		}
		rgb := FromImage(img)
		return CopyFrame(rgb, true).Raster(), nil
	}
	return Raster{}, fmt.Errorf("unknown encoding %q", encoding)
}

// ToImage converts a BGR raster into an image for snapshots.
func ToImage(r Raster) *image.RGBA {
	return toRGBA(&Frame{Width: r.Width, Height: r.Height, Pix: r.Pix})
}
