// Package imaging converts downloaded images to PNG with libvips.
package imaging

import (
	"fmt"
	"net/http"

	"github.com/h2non/bimg"
)

// Converter turns arbitrary image bytes into PNG.
type Converter interface {
	ToPNG(data []byte) ([]byte, error)
}

type Vips struct{}

func (Vips) ToPNG(data []byte) ([]byte, error) {
	if http.DetectContentType(data) == "image/png" {
		return data, nil
	}
	out, err := bimg.NewImage(data).Convert(bimg.PNG)
	if err != nil {
		return nil, fmt.Errorf("convert to png: %w", err)
	}
	return out, nil
}
