package stream

import (
	"image"
	"time"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/processor"
)

// Frame is one finished frame. Data holds only the committed bytes and is
// never written after publication.
type Frame struct {
	Seq        uint64
	TraceID    string
	Timestamp  time.Time
	Format     processor.Format
	Resolution processor.Resolution
	Outcome    processor.Outcome
	Data       []byte
}

// Size returns the committed byte count.
func (f *Frame) Size() int {
	return len(f.Data)
}

// Image renders the frame. Pixels past the committed prefix stay zero.
func (f *Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Resolution.Width, f.Resolution.Height)

	if f.Format == processor.FormatGray8 {
		img := image.NewGray(rect)
		copy(img.Pix, f.Data)
		return img
	}

	img := image.NewRGBA(rect)
	pixels := len(f.Data) / 3
	if limit := len(img.Pix) / 4; pixels > limit {
		pixels = limit
	}
	for i := 0; i < pixels; i++ {
		img.Pix[i*4+0] = f.Data[i*3+0]
		img.Pix[i*4+1] = f.Data[i*3+1]
		img.Pix[i*4+2] = f.Data[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}
