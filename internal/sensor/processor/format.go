package processor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/bayer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/buffer"
)

// Format is the output pixel format of a stream.
type Format int

const (
	FormatUnknown Format = iota
	// FormatGray8 passes raw sensor bytes through unchanged.
	FormatGray8
	// FormatRGB24 demosaics raw Bayer bytes into interleaved RGB.
	FormatRGB24
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatGray8:
		return "gray8"
	case FormatRGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BytesPerPixel returns the output bytes per pixel, or 0 if unsupported.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatGray8:
		return 1
	case FormatRGB24:
		return bayer.BytesPerPixel
	default:
		return 0
	}
}

// ParseFormat parses "gray8" or "rgb24".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "gray8", "grayscale8", "raw8":
		return FormatGray8, nil
	case "rgb24", "rgb":
		return FormatRGB24, nil
	}
	return FormatUnknown, errors.Errorf("unknown output format %q", s)
}

// Resolution is the frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Validate rejects non-positive sizes and frames whose raw size would not
// fit a single buffer. It must pass before RawSize or OutputSize is trusted.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 || r.Width > buffer.MaxCapacity/r.Height {
		return errors.Wrapf(ErrInvalidResolution, "%s", r)
	}
	return nil
}

// RawSize is the byte count of one raw frame at one byte per pixel.
func (r Resolution) RawSize() int {
	return r.Width * r.Height
}

// OutputSize is the byte count of one fully converted frame.
func (r Resolution) OutputSize(f Format) int {
	return r.Width * r.Height * f.BytesPerPixel()
}

// String returns "WxH".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Outcome is the verdict on a finished frame.
type Outcome int

const (
	// OutcomeFull means every expected byte arrived.
	OutcomeFull Outcome = iota
	// OutcomePartial means the frame was short; only the committed prefix is valid.
	OutcomePartial
	// OutcomeDropped means the frame was over-length and nothing is valid.
	OutcomeDropped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomePartial:
		return "partial"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}
