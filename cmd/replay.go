package cmd

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/capture"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/trace"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

type ReplayOptions struct {
	Input  string
	OutDir string
	Every  int
	Trace  bool
}

func NewReplayCommand() *cobra.Command {
	opts := &ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay [flags] <capture>",
		Short: "Feed a capture file through a stream",
		Long:  "Feed a capture file through a stream, optionally writing frames as PNG, and print a summary of frame outcomes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			applyStreamFlags(cmd)
			return ExecuteReplay(cmd, opts)
		},
		Example: `  # Summarize a capture
  sensorframe replay capture.sfc.zst

  # Write every 10th frame as PNG and show per-stage timings
  sensorframe replay capture.sfc --out frames/ --every 10 --trace`,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.OutDir, "out", "o", "", "Directory to write PNG frames to")
	flags.IntVar(&opts.Every, "every", 1, "Write every n-th frame")
	flags.BoolVar(&opts.Trace, "trace", false, "Print per-stage timings")
	addStreamFlags(cmd)

	return cmd
}

func ExecuteReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	cfg, err := config.GetStreamConfig()
	if err != nil {
		return err
	}
	cfg.Name = filepath.Base(opts.Input)
	if opts.Every < 1 {
		opts.Every = 1
	}

	r, err := capture.Open(opts.Input)
	if err != nil {
		return err
	}
	defer r.Close()

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", opts.OutDir)
		}
	}

	var (
		recorder = trace.NewRecorder()
		written  int
		writeErr error
	)
	st, err := stream.New(cfg, stream.Options{
		Tracer: recorder,
		OnFrame: func(f *stream.Frame) {
			if opts.OutDir == "" || writeErr != nil || (f.Seq-1)%uint64(opts.Every) != 0 {
				return
			}
			writeErr = writeFramePNG(opts.OutDir, f)
			if writeErr == nil {
				written++
			}
		},
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Run(cmd.Context(), r); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	out := cmd.OutOrStdout()
	printReplaySummary(out, st.Stats())
	if opts.OutDir != "" {
		fmt.Fprintf(out, "  wrote %d PNG files to %s\n", written, color.CyanString(opts.OutDir))
	}
	if opts.Trace {
		fmt.Fprintln(out)
		printTraceTable(out, recorder.Snapshot())
	}
	return nil
}

func writeFramePNG(dir string, f *stream.Frame) error {
	path := filepath.Join(dir, fmt.Sprintf("frame-%06d-%s.png", f.Seq, f.Outcome))
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := png.Encode(file, f.Image()); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return file.Close()
}

func printReplaySummary(w io.Writer, stats stream.Stats) {
	p, d := stats.Processor, stats.Dispatch

	fmt.Fprintf(w, "Replayed %s: %d frames (%s %s)\n", color.CyanString(stats.Name), p.Frames, stats.Format, stats.Resolution)
	fmt.Fprintf(w, "  %s %d\n", color.GreenString("%-9s", "full"), p.Full)
	fmt.Fprintf(w, "  %s %d\n", color.YellowString("%-9s", "partial"), p.Partial)
	fmt.Fprintf(w, "  %s %d\n", color.RedString("%-9s", "dropped"), p.Dropped)
	fmt.Fprintf(w, "  overflows %d, rejected bytes %d of %d\n", p.Overflows, p.BytesRejected, p.BytesReceived)
	fmt.Fprintf(w, "  packets %d, lost %d, stale %d, orphan chunks %d, unterminated frames %d\n",
		d.Packets, d.LostPackets, d.StalePackets, d.OrphanChunks, d.UnterminatedFrames)
}

func printTraceTable(w io.Writer, sections map[string]trace.SectionStats) {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		s := sections[name]
		rows = append(rows, map[string]interface{}{
			"section": name,
			"calls":   s.Calls,
			"mean":    fmt.Sprintf("%.3f", s.MeanMS),
			"p95":     fmt.Sprintf("%.3f", s.P95MS),
			"max":     fmt.Sprintf("%.3f", s.MaxMS),
		})
	}
	util.RenderTable(w, []util.TableColumn{
		{Header: "SECTION", Key: "section"},
		{Header: "CALLS", Key: "calls"},
		{Header: "MEAN MS", Key: "mean"},
		{Header: "P95 MS", Key: "p95"},
		{Header: "MAX MS", Key: "max"},
	}, rows)
}
