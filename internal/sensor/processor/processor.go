// Package processor reassembles chunked sensor frames into an output buffer,
// converting raw Bayer data to RGB24 when the stream asks for it.
//
// A Processor is driven by three callbacks that arrive strictly in order on
// one goroutine:
//
//	OnStartOfFrame -> OnChunk* -> OnEndOfFrame
//
// It is not safe for concurrent use. Each stream owns its own processor and
// buffers; only Stats may be read from other goroutines.
package processor

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/bayer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/buffer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/trace"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image output format")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrOutputTooSmall    = errors.New("output buffer too small")
)

// Processor handles the frame callbacks of one stream.
type Processor interface {
	OnStartOfFrame()
	OnChunk(data []byte)
	OnEndOfFrame()

	Format() Format
	Stats() Stats
}

// Hooks is the surrounding pipeline stage. StartOfFrame runs before any
// per-frame reset; EndOfFrame runs after the output size is committed.
type Hooks interface {
	StartOfFrame()
	EndOfFrame(outcome Outcome)
}

type nopHooks struct{}

func (nopHooks) StartOfFrame()      {}
func (nopHooks) EndOfFrame(Outcome) {}

// Config is fixed for the lifetime of a stream.
type Config struct {
	Format     Format
	Resolution Resolution
	Pattern    bayer.Pattern
	Flip       bool
}

// Options injects the collaborators. Zero values get defaults.
type Options struct {
	Hooks   Hooks
	Convert bayer.ConvertFunc
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Stats are cumulative over the processor lifetime.
type Stats struct {
	Frames        uint64 `json:"frames"`
	Full          uint64 `json:"full"`
	Partial       uint64 `json:"partial"`
	Dropped       uint64 `json:"dropped"`
	Overflows     uint64 `json:"overflows"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesRejected uint64 `json:"bytes_rejected"`
}

// New creates the processor for cfg.Format, writing frames into out.
// out is owned by the caller and must hold a fully converted frame.
func New(cfg Config, out *buffer.Buffer, opts Options) (Processor, error) {
	if err := cfg.Resolution.Validate(); err != nil {
		return nil, err
	}

	b, err := newBase(cfg, out, opts)
	if err != nil {
		return nil, err
	}

	switch cfg.Format {
	case FormatGray8:
		return &Raw8Processor{base: b}, nil
	case FormatRGB24:
		return newBayerProcessor(b, opts)
	default:
		b.logger.Warn("Unsupported image output format", "format", cfg.Format)
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", cfg.Format)
	}
}

// base carries what every format variant shares.
type base struct {
	cfg    Config
	out    *buffer.Buffer
	hooks  Hooks
	tracer trace.Tracer
	logger *slog.Logger

	frames    atomic.Uint64
	full      atomic.Uint64
	partial   atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64
	received  atomic.Uint64
	rejected  atomic.Uint64
}

func newBase(cfg Config, out *buffer.Buffer, opts Options) (*base, error) {
	b := &base{
		cfg:    cfg,
		out:    out,
		hooks:  opts.Hooks,
		tracer: opts.Tracer,
		logger: opts.Logger,
	}
	if b.hooks == nil {
		b.hooks = nopHooks{}
	}
	if b.tracer == nil {
		b.tracer = trace.Nop
	}
	if b.logger == nil {
		b.logger = util.GetLogger()
	}

	if need := cfg.Resolution.OutputSize(cfg.Format); need > 0 {
		if out == nil {
			return nil, errors.Wrap(ErrOutputTooSmall, "no output buffer")
		}
		if out.Cap() < need {
			return nil, errors.Wrapf(ErrOutputTooSmall, "capacity %d, need %d", out.Cap(), need)
		}
	}
	return b, nil
}

func (b *base) Format() Format {
	return b.cfg.Format
}

func (b *base) Stats() Stats {
	return Stats{
		Frames:        b.frames.Load(),
		Full:          b.full.Load(),
		Partial:       b.partial.Load(),
		Dropped:       b.dropped.Load(),
		Overflows:     b.overflows.Load(),
		BytesReceived: b.received.Load(),
		BytesRejected: b.rejected.Load(),
	}
}

func (b *base) finish(outcome Outcome) {
	b.frames.Add(1)
	switch outcome {
	case OutcomeFull:
		b.full.Add(1)
	case OutcomePartial:
		b.partial.Add(1)
	case OutcomeDropped:
		b.dropped.Add(1)
	}
	b.hooks.EndOfFrame(outcome)
}
