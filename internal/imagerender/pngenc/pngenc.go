// Package pngenc holds the PNG helpers used on rendered pages. It has no
// MuPDF dependency, so stage code and tests build without cgo.
package pngenc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Encode encodes img losslessly for upload to a vision model.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions decodes only the PNG header.
func Dimensions(pngBytes []byte) (width, height int, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(pngBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
