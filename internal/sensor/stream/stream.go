// Package stream ties the packet dispatcher, a frame processor and the
// subscriber fan-out together for one sensor stream.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/bayer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/buffer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/processor"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/protocol"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/trace"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

// Config describes one stream.
type Config struct {
	Name          string
	Format        processor.Format
	Resolution    processor.Resolution
	Pattern       bayer.Pattern
	Flip          bool
	MaxPacketSize int
}

// Observer receives per-frame counters. metrics.Metrics implements it.
type Observer interface {
	ObserveFrame(stream, outcome string, size int)
	AddOverflows(stream string, n uint64)
	AddLostPackets(stream string, n uint64)
}

// Options are optional collaborators.
type Options struct {
	Convert  bayer.ConvertFunc
	Tracer   trace.Tracer
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
	// OnFrame, if set, sees every frame synchronously before subscribers do.
	OnFrame func(*Frame)
}

// Stats is a point-in-time view of a stream.
type Stats struct {
	Name        string                 `json:"name"`
	Format      string                 `json:"format"`
	Resolution  string                 `json:"resolution"`
	Published   uint64                 `json:"published"`
	Subscribers int                    `json:"subscribers"`
	Processor   processor.Stats        `json:"processor"`
	Dispatch    protocol.DispatchStats `json:"dispatch"`
}

// Stream owns the output buffer of one sensor and publishes every finished
// frame to its subscribers.
type Stream struct {
	cfg        Config
	out        *buffer.Buffer
	proc       processor.Processor
	dispatcher *protocol.Dispatcher
	observer   Observer
	onFrame    func(*Frame)
	logger     *slog.Logger
	now        func() time.Time

	// Only touched from the dispatch goroutine.
	seq           uint64
	lastOverflows uint64
	lastLost      uint64

	published atomic.Uint64

	mu     sync.RWMutex
	subs   map[string]chan *Frame
	latest *Frame
	closed bool
}

// New validates cfg and builds the processing chain.
func New(cfg Config, opts Options) (*Stream, error) {
	if err := cfg.Resolution.Validate(); err != nil {
		return nil, err
	}
	if cfg.Format.BytesPerPixel() == 0 {
		return nil, errors.Wrapf(processor.ErrUnsupportedFormat, "%s", cfg.Format)
	}

	logger := opts.Logger
	if logger == nil {
		logger = util.GetLogger()
	}
	logger = logger.With("stream", cfg.Name)

	out, err := buffer.New(cfg.Resolution.OutputSize(cfg.Format))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate output buffer for %s", cfg.Name)
	}

	s := &Stream{
		cfg:      cfg,
		out:      out,
		observer: opts.Observer,
		onFrame:  opts.OnFrame,
		logger:   logger,
		now:      opts.Now,
		subs:     make(map[string]chan *Frame),
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.proc, err = processor.New(processor.Config{
		Format:     cfg.Format,
		Resolution: cfg.Resolution,
		Pattern:    cfg.Pattern,
		Flip:       cfg.Flip,
	}, out, processor.Options{
		Hooks:   s,
		Convert: opts.Convert,
		Tracer:  opts.Tracer,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher = protocol.NewDispatcher(s.proc, logger)
	return s, nil
}

// Name returns the stream name.
func (s *Stream) Name() string {
	return s.cfg.Name
}

// Config returns the stream configuration.
func (s *Stream) Config() Config {
	return s.cfg
}

// Run feeds packets from r into the stream until EOF or ctx is done.
func (s *Stream) Run(ctx context.Context, r io.Reader) error {
	s.logger.Info("Stream started", "format", s.cfg.Format, "resolution", s.cfg.Resolution)
	err := s.dispatcher.Run(ctx, r, s.cfg.MaxPacketSize)
	s.reportLost()
	if err != nil {
		s.logger.Warn("Stream stopped", "error", err)
		return errors.Wrapf(err, "stream %s", s.cfg.Name)
	}
	s.logger.Info("Stream finished", "frames", s.published.Load())
	return nil
}

// StartOfFrame clears the output before the processor sees the first chunk.
func (s *Stream) StartOfFrame() {
	s.out.Reset()
}

// EndOfFrame publishes a copy of the committed output.
func (s *Stream) EndOfFrame(outcome processor.Outcome) {
	s.seq++
	valid := s.out.Bytes()
	frame := &Frame{
		Seq:        s.seq,
		TraceID:    uuid.NewString(),
		Timestamp:  s.now(),
		Format:     s.cfg.Format,
		Resolution: s.cfg.Resolution,
		Outcome:    outcome,
		Data:       append([]byte(nil), valid...),
	}

	if s.observer != nil {
		s.observer.ObserveFrame(s.cfg.Name, outcome.String(), len(frame.Data))
		overflows := s.proc.Stats().Overflows
		s.observer.AddOverflows(s.cfg.Name, overflows-s.lastOverflows)
		s.lastOverflows = overflows
		s.reportLost()
	}

	s.logger.Debug("Frame finished", "seq", frame.Seq, "trace", frame.TraceID,
		"outcome", outcome, "size", len(frame.Data))
	if s.onFrame != nil {
		s.onFrame(frame)
	}
	s.publish(frame)
}

func (s *Stream) reportLost() {
	if s.observer == nil {
		return
	}
	lost := s.dispatcher.Stats().LostPackets
	s.observer.AddLostPackets(s.cfg.Name, lost-s.lastLost)
	s.lastLost = lost
}

func (s *Stream) publish(frame *Frame) {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	s.published.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subs {
		select {
		case ch <- frame:
		default:
			s.logger.Warn("Frame channel full, dropping frame", "subscriber", id, "seq", frame.Seq)
		}
	}
}

// Latest returns the last published frame, or nil.
func (s *Stream) Latest() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// SubscribeFrames adds a subscriber. A closed stream returns a closed channel.
func (s *Stream) SubscribeFrames(id string, bufferSize int) <-chan *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ch := make(chan *Frame)
		close(ch)
		return ch
	}
	if old, exists := s.subs[id]; exists {
		close(old)
	}
	ch := make(chan *Frame, bufferSize)
	s.subs[id] = ch
	s.logger.Debug("Frame subscriber added", "id", id, "total", len(s.subs))
	return ch
}

// UnsubscribeFrames removes a subscriber and closes its channel.
func (s *Stream) UnsubscribeFrames(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, exists := s.subs[id]; exists {
		close(ch)
		delete(s.subs, id)
		s.logger.Info("Frame subscriber removed", "id", id, "total", len(s.subs))
	}
}

// Close closes every subscriber channel. Further subscriptions get a
// closed channel.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.logger.Debug("Stream closed")
}

// Stats returns the stream counters.
func (s *Stream) Stats() Stats {
	s.mu.RLock()
	subs := len(s.subs)
	s.mu.RUnlock()

	return Stats{
		Name:        s.cfg.Name,
		Format:      s.cfg.Format.String(),
		Resolution:  s.cfg.Resolution.String(),
		Published:   s.published.Load(),
		Subscribers: subs,
		Processor:   s.proc.Stats(),
		Dispatch:    s.dispatcher.Stats(),
	}
}
