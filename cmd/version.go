package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/version"
)

func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.ClientInfo()
			out := cmd.OutOrStdout()

			if outputFormat == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			rows := []map[string]interface{}{}
			for _, key := range []string{"Version", "GitCommit", "FormattedTime", "GoVersion", "OS", "Arch"} {
				rows = append(rows, map[string]interface{}{"field": key, "value": info[key]})
			}
			util.RenderTable(out, []util.TableColumn{
				{Header: "FIELD", Key: "field"},
				{Header: "VALUE", Key: "value"},
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "", "text", "Output format: text or json")
	cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func printVersionLine(w io.Writer) {
	info := version.ClientInfo()
	fmt.Fprintf(w, "sensorframe %s (%s)\n", info["Version"], info["GitCommit"])
}
