package server

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
)

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ingest.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Ingest accept failed", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer conn.Close()

			stop := context.AfterFunc(s.ctx, func() { conn.Close() })
			defer stop()

			name := conn.RemoteAddr().String()
			if err := s.Ingest(s.ctx, name, conn); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("Ingest connection ended with error", "stream", name, "error", err)
			}
		}()
	}
}

// Ingest runs one stream named name over r. The stream is visible in the
// registry until r is exhausted.
func (s *Server) Ingest(ctx context.Context, name string, r io.Reader) error {
	cfg := s.StreamConfig()
	cfg.Name = name

	st, err := stream.New(cfg, stream.Options{
		Tracer:   s.opts.Tracer,
		Logger:   s.logger,
		Observer: s.metrics,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create stream %s", name)
	}

	id, err := s.registry.Register(st)
	if err != nil {
		return err
	}
	s.logger.Info("Stream connected", "stream", name, "id", id)

	defer func() {
		if _, err := s.registry.Remove(id); err != nil {
			s.logger.Warn("Failed to unregister stream", "id", id, "error", err)
		}
		st.Close()
		s.metrics.Forget(name)
		s.logger.Info("Stream disconnected", "stream", name, "id", id)
	}()

	return st.Run(ctx, r)
}
