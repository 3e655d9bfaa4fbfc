// Package image sanitizes service images before they are stored.
package image

import (
	"errors"
	"fmt"
	"io"

	"github.com/h2non/bimg"
)

// ErrNotImage is returned when the input cannot be decoded as an image.
var ErrNotImage = errors.New("not a decodable image")

// Config holds configuration for image processing.
type Config struct {
	// Quality for JPEG encoding (1-100)
	Quality int
	// MaxWidth limits image width (0 = no limit)
	MaxWidth int
	// MaxHeight limits image height (0 = no limit)
	MaxHeight int
}

// DefaultConfig returns the settings used for service images.
func DefaultConfig() Config {
	return Config{
		Quality:   85,
		MaxWidth:  1600,
		MaxHeight: 1600,
	}
}

// Processor strips metadata from uploads and re-encodes them as JPEG.
type Processor struct {
	config Config
}

// NewProcessor creates a new image processor with the given config.
func NewProcessor(config Config) *Processor {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}
	return &Processor{config: config}
}

// Sanitize reads an image and returns it as a metadata-free JPEG.
// EXIF orientation is applied before metadata is removed, and images larger
// than the configured bounds are scaled down keeping their aspect ratio.
func (p *Processor) Sanitize(r io.Reader) ([]byte, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input image: %w", err)
	}

	img := bimg.NewImage(input)
	metadata, err := img.Metadata()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	options := bimg.Options{
		Quality:       p.config.Quality,
		StripMetadata: true,
		Type:          bimg.JPEG,
		Background:    bimg.Color{R: 255, G: 255, B: 255},
	}

	width, height := metadata.Size.Width, metadata.Size.Height
	if w, h, ok := fit(width, height, p.config.MaxWidth, p.config.MaxHeight); ok {
		options.Width = w
		options.Height = h
		options.Force = true
	}

	out, err := img.Process(options)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return out, nil
}

// fit scales (w, h) down to fit within (maxW, maxH). ok is false when no scaling is needed.
func fit(w, h, maxW, maxH int) (int, int, bool) {
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return 0, 0, false
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh, true
}

// HasEXIF reports whether identifying EXIF fields are present.
func HasEXIF(data []byte) (bool, error) {
	metadata, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	exif := metadata.EXIF
	return exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != "", nil
}
