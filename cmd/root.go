package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/version"
)

var (
	verbose    bool
	logJSON    bool
	configFile string

	rootCmd = &cobra.Command{
		Use:   "sensorframe",
		Short: "Sensor frame reassembly tool",
		Long:  `sensorframe reassembles chunked raw sensor frames into Gray8 or RGB24 images. It can synthesize and replay capture files, and serve live streams over HTTP and WebSocket.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(os.Stderr, verbose, logJSON)
			if configFile != "" {
				if err := config.Load(configFile); err != nil {
					return err
				}
			}
			if verbose {
				util.GetLogger().Debug("Effective configuration", "file", config.ConfigFileUsed())
				config.Dump(os.Stderr)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.ClientInfo()
				fmt.Printf("sensorframe version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&verbose, "verbose", false, "Enable debug logging and dump the effective configuration")
	flags.BoolVar(&logJSON, "log-json", false, "Write logs as JSON lines")
	flags.StringVar(&configFile, "config", "", "Config file (default: ./config.yaml, $HOME/.sensorframe/config.yaml)")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSynthCommand())
	rootCmd.AddCommand(NewReplayCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStreamsCommand())

	// Enable custom help output ordering
	setupHelpCommand(rootCmd)
}
