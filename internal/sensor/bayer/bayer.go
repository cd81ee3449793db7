// Package bayer demosaics single-byte Bayer mosaics into interleaved RGB24.
package bayer

import (
	"strings"

	"github.com/pkg/errors"
)

// BytesPerPixel is the size of one RGB24 output pixel.
const BytesPerPixel = 3

const (
	red = iota
	green
	blue
)

// Pattern is the color filter layout of the top-left 2x2 cell.
type Pattern int

const (
	// PatternGRBG is the sensor default.
	PatternGRBG Pattern = iota
	PatternRGGB
	PatternBGGR
	PatternGBRG
)

var cells = map[Pattern][4]int{
	PatternGRBG: {green, red, blue, green},
	PatternRGGB: {red, green, green, blue},
	PatternBGGR: {blue, green, green, red},
	PatternGBRG: {green, blue, red, green},
}

// String returns the pattern name.
func (p Pattern) String() string {
	switch p {
	case PatternGRBG:
		return "grbg"
	case PatternRGGB:
		return "rggb"
	case PatternBGGR:
		return "bggr"
	case PatternGBRG:
		return "gbrg"
	default:
		return "unknown"
	}
}

// ParsePattern parses a pattern name such as "grbg".
func ParsePattern(s string) (Pattern, error) {
	for p := range cells {
		if strings.EqualFold(p.String(), s) {
			return p, nil
		}
	}
	return 0, errors.Errorf("unknown bayer pattern %q", s)
}

// ConvertFunc converts a mosaic in src into RGB24 in dst.
//
// It does not check capacities: the caller must ensure that
// len(dst) >= width*height*3 and len(src) >= srcStride*height.
type ConvertFunc func(src, dst []byte, width, height, srcStride int, flip bool)

// Converter returns a ConvertFunc for the given pattern.
func Converter(p Pattern) ConvertFunc {
	cell, ok := cells[p]
	if !ok {
		cell = cells[PatternGRBG]
	}
	return func(src, dst []byte, width, height, srcStride int, flip bool) {
		convert(cell, src, dst, width, height, srcStride, flip)
	}
}

// ToRGB888 converts a GRBG mosaic.
func ToRGB888(src, dst []byte, width, height, srcStride int, flip bool) {
	convert(cells[PatternGRBG], src, dst, width, height, srcStride, flip)
}

// convert is a bilinear demosaic: each missing channel is the mean of the
// same-colored sites in the 3x3 neighborhood that lie inside the image.
func convert(cell [4]int, src, dst []byte, width, height, srcStride int, flip bool) {
	if srcStride == 0 {
		srcStride = width
	}
	for y := 0; y < height; y++ {
		outY := y
		if flip {
			outY = height - 1 - y
		}
		row := dst[outY*width*BytesPerPixel:]
		for x := 0; x < width; x++ {
			var sum, n [3]int
			own := cell[(y&1)<<1|(x&1)]
			for dy := -1; dy <= 1; dy++ {
				sy := y + dy
				if sy < 0 || sy >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					sx := x + dx
					if sx < 0 || sx >= width {
						continue
					}
					c := cell[(sy&1)<<1|(sx&1)]
					if c == own && (dx != 0 || dy != 0) {
						continue
					}
					sum[c] += int(src[sy*srcStride+sx])
					n[c]++
				}
			}
			px := row[x*BytesPerPixel : x*BytesPerPixel+BytesPerPixel]
			for c := red; c <= blue; c++ {
				if n[c] > 0 {
					px[c] = byte((sum[c] + n[c]/2) / n[c])
				} else {
					px[c] = 0
				}
			}
		}
	}
}
