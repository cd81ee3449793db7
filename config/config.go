package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/bayer"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/processor"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/protocol"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

const envPrefix = "SENSORFRAME"

var v *viper.Viper

func init() {
	v = newViper()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

func newViper() *viper.Viper {
	nv := viper.New()

	nv.SetDefault("stream.name", "sensor")
	nv.SetDefault("stream.format", "rgb24")
	nv.SetDefault("stream.width", 640)
	nv.SetDefault("stream.height", 480)
	nv.SetDefault("stream.bayer_pattern", "grbg")
	nv.SetDefault("stream.flip", false)
	nv.SetDefault("stream.max_packet_size", protocol.DefaultMaxPayload)
	nv.SetDefault("stream.subscriber_buffer", 8)

	nv.SetDefault("server.http_port", 29080)
	nv.SetDefault("server.ingest_port", 29081)

	nv.SetDefault("sensorframe.home", filepath.Join(xdg.Home, ".sensorframe"))

	// Environment variables, e.g. SENSORFRAME_STREAM_WIDTH
	nv.SetEnvPrefix(envPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	nv.BindEnv("sensorframe.home", "SENSORFRAME_HOME")

	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.sensorframe", "/etc/sensorframe"} {
		nv.AddConfigPath(os.ExpandEnv(path))
	}
	return nv
}

// Load reads an explicit config file, replacing the one found at startup.
func Load(path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

// ConfigFileUsed returns the config file in effect, or "".
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// WatchConfig calls onChange after the config file is modified. It does
// nothing when no config file is in use.
func WatchConfig(onChange func()) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		util.GetLogger().Info("Config file changed", "file", e.Name, "op", e.Op.String())
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}

// Dump pretty-prints every effective setting.
func Dump(w io.Writer) {
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
	cfg.Fdump(w, v.AllSettings())
}

// GetHome returns the sensorframe home directory
func GetHome() string {
	return v.GetString("sensorframe.home")
}

// GetHTTPPort returns the viewer HTTP port
func GetHTTPPort() int {
	return v.GetInt("server.http_port")
}

// GetIngestPort returns the TCP ingest port
func GetIngestPort() int {
	return v.GetInt("server.ingest_port")
}

// GetSubscriberBuffer returns the per-subscriber frame queue length
func GetSubscriberBuffer() int {
	return v.GetInt("stream.subscriber_buffer")
}

// GetStreamConfig returns the configured stream template.
func GetStreamConfig() (stream.Config, error) {
	format, err := processor.ParseFormat(v.GetString("stream.format"))
	if err != nil {
		return stream.Config{}, errors.Wrap(err, "stream.format")
	}
	pattern, err := bayer.ParsePattern(v.GetString("stream.bayer_pattern"))
	if err != nil {
		return stream.Config{}, errors.Wrap(err, "stream.bayer_pattern")
	}
	res := processor.Resolution{
		Width:  v.GetInt("stream.width"),
		Height: v.GetInt("stream.height"),
	}
	if res.Width <= 0 || res.Height <= 0 {
		return stream.Config{}, errors.Wrapf(processor.ErrInvalidResolution, "stream.width/height %s", res)
	}

	return stream.Config{
		Name:          v.GetString("stream.name"),
		Format:        format,
		Resolution:    res,
		Pattern:       pattern,
		Flip:          v.GetBool("stream.flip"),
		MaxPacketSize: v.GetInt("stream.max_packet_size"),
	}, nil
}

// Set overrides a setting, typically from a command-line flag.
func Set(key string, value interface{}) {
	v.Set(key, value)
}
