package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/trace"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

type ServeOptions struct {
	HTTPPort   int
	IngestPort int
	Host       string
	Open       bool
	Trace      bool
}

func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept sensor streams and serve frames",
		Long: `Accept raw sensor streams over TCP and serve the reassembled frames.

Each TCP connection to the ingest port is one stream. Frames are available as
PNG snapshots and over WebSocket, with a live viewer at the HTTP root and
Prometheus metrics at /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyStreamFlags(cmd)
			return ExecuteServe(cmd, opts)
		},
		Example: `  # Serve with the configured ports
  sensorframe serve

  # Gray8 frames at 320x240, open the viewer
  sensorframe serve --format gray8 --width 320 --height 240 --open`,
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.HTTPPort, "http-port", "p", 0, "HTTP port (default: server.http_port)")
	flags.IntVar(&opts.IngestPort, "ingest-port", 0, "Ingest TCP port (default: server.ingest_port)")
	flags.StringVar(&opts.Host, "host", "localhost", "Address to bind")
	flags.BoolVar(&opts.Open, "open", false, "Open the viewer in a browser")
	flags.BoolVar(&opts.Trace, "trace", false, "Record per-stage timings and log them on shutdown")
	addStreamFlags(cmd)

	return cmd
}

func ExecuteServe(cmd *cobra.Command, opts *ServeOptions) error {
	logger := util.GetLogger()

	streamCfg, err := config.GetStreamConfig()
	if err != nil {
		return err
	}
	httpPort := opts.HTTPPort
	if httpPort == 0 {
		httpPort = config.GetHTTPPort()
	}
	ingestPort := opts.IngestPort
	if ingestPort == 0 {
		ingestPort = config.GetIngestPort()
	}

	var recorder *trace.Recorder
	var tracer trace.Tracer
	if opts.Trace {
		recorder = trace.NewRecorder()
		tracer = recorder
	}

	srv := server.NewServer(server.Options{
		HTTPAddr:         fmt.Sprintf("%s:%d", opts.Host, httpPort),
		IngestAddr:       fmt.Sprintf("%s:%d", opts.Host, ingestPort),
		Stream:           streamCfg,
		SubscriberBuffer: config.GetSubscriberBuffer(),
		Tracer:           tracer,
		Logger:           logger,
	})
	if err := srv.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	config.WatchConfig(func() {
		cfg, err := config.GetStreamConfig()
		if err != nil {
			logger.Warn("Ignoring invalid stream config", "error", err)
			return
		}
		srv.SetStreamConfig(cfg)
		logger.Info("Stream config reloaded", "format", cfg.Format, "resolution", cfg.Resolution)
	})

	url := fmt.Sprintf("http://%s", srv.HTTPAddr())
	out := cmd.OutOrStdout()
	printVersionLine(out)
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("Viewer"), color.CyanString("➜"), color.BlueString(url))
	fmt.Fprintf(out, "%s %s %s\n", color.GreenString("Ingest"), color.CyanString("➜"), color.BlueString("tcp://%s", srv.IngestAddr()))
	fmt.Fprintln(out, color.CyanString("Press Ctrl+C to stop..."))

	if opts.Open {
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("Failed to open browser", "url", url, "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		srv.Stop()
		return errors.Wrap(err, "server stopped unexpectedly")
	case <-sigChan:
	case <-cmd.Context().Done():
	}

	logger.Info("Shutting down server...")
	if err := srv.Stop(); err != nil {
		logger.Warn("Error stopping server", "error", err)
	}
	if err := <-errChan; err != nil {
		logger.Warn("Server exited with error", "error", err)
	}
	if recorder != nil {
		for name, s := range recorder.Snapshot() {
			logger.Info("Section timing", "section", name, "calls", s.Calls, "mean_ms", s.MeanMS, "p95_ms", s.P95MS, "max_ms", s.MaxMS)
		}
	}
	return nil
}
