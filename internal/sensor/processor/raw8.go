package processor

// Raw8Processor writes chunks straight into the output buffer.
type Raw8Processor struct {
	*base

	frameBytes int
	overflowed bool
}

// OnStartOfFrame implements Processor.
func (p *Raw8Processor) OnStartOfFrame() {
	defer p.tracer.Start("Raw8Processor.OnStartOfFrame")()

	p.hooks.StartOfFrame()
	p.frameBytes = 0
	p.overflowed = false
}

// OnChunk implements Processor. Once a chunk does not fit, the rest of the
// frame is skipped until the next start of frame.
func (p *Raw8Processor) OnChunk(data []byte) {
	defer p.tracer.Start("Raw8Processor.OnChunk")()

	p.frameBytes += len(data)
	p.received.Add(uint64(len(data)))

	if p.overflowed {
		p.rejected.Add(uint64(len(data)))
		return
	}
	if !p.out.Fits(len(data)) {
		p.overflowed = true
		p.overflows.Add(1)
		p.rejected.Add(uint64(len(data)))
		p.logger.Warn("Write buffer overflow, skipping rest of frame",
			"format", p.cfg.Format, "chunk", len(data), "free", p.out.Free())
		return
	}
	// Cannot fail: capacity was checked above.
	_ = p.out.Write(data)
}

// OnEndOfFrame implements Processor. The output already holds the frame.
func (p *Raw8Processor) OnEndOfFrame() {
	defer p.tracer.Start("Raw8Processor.OnEndOfFrame")()

	outcome := OutcomeFull
	if p.overflowed || p.frameBytes != p.cfg.Resolution.RawSize() {
		outcome = OutcomePartial
	}
	p.finish(outcome)
}
