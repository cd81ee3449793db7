package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

type StreamsOptions struct {
	Host         string
	Port         int
	OutputFormat string
}

type streamListResponse struct {
	Streams []handlers.StreamInfo `json:"streams"`
	Count   int                   `json:"count"`
}

func NewStreamsCommand() *cobra.Command {
	opts := &StreamsOptions{}

	cmd := &cobra.Command{
		Use:     "streams",
		Aliases: []string{"ls"},
		Short:   "List streams of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteStreams(cmd, opts)
		},
		Example: `  sensorframe streams
  sensorframe streams --format json`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "localhost", "Server host")
	flags.IntVarP(&opts.Port, "port", "p", 0, "Server HTTP port (default: server.http_port)")
	flags.StringVarP(&opts.OutputFormat, "format", "", "text", "Output format: text or json")
	cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func ExecuteStreams(cmd *cobra.Command, opts *StreamsOptions) error {
	port := opts.Port
	if port == 0 {
		port = config.GetHTTPPort()
	}
	url := fmt.Sprintf("http://%s:%d/api/streams", opts.Host, port)

	list, err := fetchStreams(url)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.OutputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	renderStreams(out, list.Streams)
	return nil
}

func fetchStreams(url string) (*streamListResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, errors.Wrap(err, "server is not reachable, start it with 'sensorframe serve'")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var list streamListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.Wrap(err, "failed to decode stream list")
	}
	return &list, nil
}

func renderStreams(w io.Writer, streams []handlers.StreamInfo) {
	rows := make([]map[string]interface{}, 0, len(streams))
	for _, s := range streams {
		p := s.Processor
		rows = append(rows, map[string]interface{}{
			"id":          s.ID,
			"name":        s.Name,
			"format":      s.Format,
			"resolution":  s.Resolution,
			"full":        color.GreenString("%d", p.Full),
			"partial":     color.YellowString("%d", p.Partial),
			"dropped":     color.RedString("%d", p.Dropped),
			"lost":        s.Dispatch.LostPackets,
			"subscribers": s.Subscribers,
		})
	}
	util.RenderTable(w, []util.TableColumn{
		{Header: "ID", Key: "id"},
		{Header: "NAME", Key: "name"},
		{Header: "FORMAT", Key: "format"},
		{Header: "RESOLUTION", Key: "resolution"},
		{Header: "FULL", Key: "full"},
		{Header: "PARTIAL", Key: "partial"},
		{Header: "DROPPED", Key: "dropped"},
		{Header: "LOST", Key: "lost"},
		{Header: "SUBSCRIBERS", Key: "subscribers"},
	}, rows)
}
