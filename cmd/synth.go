package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/capture"
)

type SynthOptions struct {
	Output     string
	Frames     int
	Width      int
	Height     int
	ChunkSize  int
	ShortEvery int
	LongEvery  int
}

func NewSynthCommand() *cobra.Command {
	opts := &SynthOptions{}

	cmd := &cobra.Command{
		Use:   "synth [flags] <output>",
		Short: "Write a synthetic capture file",
		Long:  "Write a capture file of test-pattern frames split into packets. Files ending in .zst are zstd-compressed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Output = args[0]
			return ExecuteSynth(cmd, opts)
		},
		Example: `  # 100 frames at the configured resolution
  sensorframe synth capture.sfc

  # Compressed, with every 10th frame short and every 25th frame over-length
  sensorframe synth capture.sfc.zst --frames 200 --short-every 10 --long-every 25`,
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Frames, "frames", "n", 100, "Number of frames")
	flags.IntVar(&opts.Width, "width", 0, "Frame width (default: stream.width)")
	flags.IntVar(&opts.Height, "height", 0, "Frame height (default: stream.height)")
	flags.IntVar(&opts.ChunkSize, "chunk-size", 4096, "Packet payload size")
	flags.IntVar(&opts.ShortEvery, "short-every", 0, "Make every k-th frame short")
	flags.IntVar(&opts.LongEvery, "long-every", 0, "Make every k-th frame over-length")

	return cmd
}

func ExecuteSynth(cmd *cobra.Command, opts *SynthOptions) error {
	streamCfg, err := config.GetStreamConfig()
	if err != nil {
		return err
	}
	res := streamCfg.Resolution
	if opts.Width > 0 {
		res.Width = opts.Width
	}
	if opts.Height > 0 {
		res.Height = opts.Height
	}

	w, err := capture.Create(opts.Output)
	if err != nil {
		return err
	}
	stats, err := capture.Synthesize(w, capture.SynthOptions{
		Frames:     opts.Frames,
		Resolution: res,
		ChunkSize:  opts.ChunkSize,
		ShortEvery: opts.ShortEvery,
		LongEvery:  opts.LongEvery,
	})
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s: %d frames at %s, %d packets, %d bytes\n",
		color.CyanString(opts.Output), stats.Frames, res, stats.Packets, stats.Bytes)
	if stats.Short > 0 || stats.Long > 0 {
		fmt.Fprintf(out, "  %s short, %s over-length\n",
			color.YellowString("%d", stats.Short), color.RedString("%d", stats.Long))
	}
	return nil
}
