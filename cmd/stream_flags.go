package cmd

import (
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
)

// streamFlagKeys maps stream flags onto their config keys.
var streamFlagKeys = map[string]string{
	"format":  "stream.format",
	"width":   "stream.width",
	"height":  "stream.height",
	"pattern": "stream.bayer_pattern",
	"flip":    "stream.flip",
}

func addStreamFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("format", "", "Output format: gray8 or rgb24 (default: stream.format)")
	flags.Int("width", 0, "Frame width (default: stream.width)")
	flags.Int("height", 0, "Frame height (default: stream.height)")
	flags.String("pattern", "", "Bayer pattern: grbg, rggb, bggr or gbrg (default: stream.bayer_pattern)")
	flags.Bool("flip", false, "Flip frames vertically (default: stream.flip)")

	cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"gray8", "rgb24"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("pattern", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"grbg", "rggb", "bggr", "gbrg"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// applyStreamFlags copies explicitly set stream flags into the config.
func applyStreamFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	for name, key := range streamFlagKeys {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		config.Set(key, flag.Value.String())
	}
}
