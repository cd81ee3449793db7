package handlers

import (
	"net/http"
	"time"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
)

// ServerService defines the interface for server operations that handlers need
type ServerService interface {
	// Status and info
	IsRunning() bool
	GetUptime() time.Duration
	GetBuildID() string
	GetVersion() string

	// Streams
	ListStreams() []StreamInfo
	GetStream(key string) (*stream.Stream, string, bool)
	SubscriberBuffer() int

	MetricsHandler() http.Handler
}

// StreamInfo is one entry of the stream list.
type StreamInfo struct {
	ID string `json:"id"`
	stream.Stats
}
