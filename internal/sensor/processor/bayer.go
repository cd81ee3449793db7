package processor

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/bayer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/buffer"
)

// BayerProcessor stages raw Bayer bytes and demosaics them into RGB24 at
// the end of each frame.
type BayerProcessor struct {
	*base

	staging *buffer.Buffer
	convert bayer.ConvertFunc
	// frameRejected counts bytes of this frame refused by the staging buffer.
	frameRejected int
}

func newBayerProcessor(b *base, opts Options) (*BayerProcessor, error) {
	staging, err := buffer.New(b.cfg.Resolution.RawSize())
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate bayer staging buffer")
	}

	convert := opts.Convert
	if convert == nil {
		convert = bayer.Converter(b.cfg.Pattern)
	}
	return &BayerProcessor{
		base:    b,
		staging: staging,
		convert: convert,
	}, nil
}

// OnStartOfFrame implements Processor.
func (p *BayerProcessor) OnStartOfFrame() {
	defer p.tracer.Start("BayerProcessor.OnStartOfFrame")()

	p.hooks.StartOfFrame()
	p.staging.Reset()
	p.frameRejected = 0
}

// OnChunk implements Processor. Every chunk is checked on its own, so chunks
// that still fit after an overflow are kept.
func (p *BayerProcessor) OnChunk(data []byte) {
	defer p.tracer.Start("BayerProcessor.OnChunk")()

	p.received.Add(uint64(len(data)))
	if err := p.staging.Write(data); err != nil {
		p.frameRejected += len(data)
		p.overflows.Add(1)
		p.rejected.Add(uint64(len(data)))
		p.logger.Warn("Uncompressed buffer overflow", "chunk", len(data), "staged", p.staging.Len(), "error", err)
	}
}

// OnEndOfFrame implements Processor. The committed output size tells
// consumers how much of the frame is valid:
//
//	received <  W*H  -> staged*3 (short frame, prefix valid)
//	received >  W*H  -> 0        (over-length frame, nothing valid)
//	received == W*H  -> W*H*3
//
// where received includes the bytes the staging buffer refused. A short
// frame is converted unflipped with its unfilled rows zeroed, so the
// committed prefix holds only this frame's pixels.
func (p *BayerProcessor) OnEndOfFrame() {
	defer p.tracer.Start("BayerProcessor.OnEndOfFrame")()

	res := p.cfg.Resolution
	expected := res.RawSize()
	received := p.staging.Len() + p.frameRejected

	flip := p.cfg.Flip
	if received < expected {
		clear(p.staging.Data()[p.staging.Len():])
		flip = false
	}

	end := p.tracer.Start("BayerProcessor.Convert")
	p.convert(p.staging.Data(), p.out.Data(), res.Width, res.Height, res.Width, flip)
	end()

	var size int
	var outcome Outcome
	switch {
	case received < expected:
		size = p.staging.Len() * bayer.BytesPerPixel
		outcome = OutcomePartial
	case received > expected:
		size = 0
		outcome = OutcomeDropped
	default:
		size = expected * bayer.BytesPerPixel
		outcome = OutcomeFull
	}

	if err := p.out.SetSize(size); err != nil {
		p.logger.Error("Failed to commit frame size", "size", size, "error", err)
	}
	if outcome != OutcomeFull {
		p.logger.Debug("Corrupted frame", "outcome", outcome, "received", received, "expected", expected)
	}

	p.staging.Reset()
	p.frameRejected = 0

	p.finish(outcome)
}
