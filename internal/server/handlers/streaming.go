package handlers

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"net/http"
	"strconv"

	"github.com/dchest/uniuri"
	"github.com/gorilla/websocket"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

// FrameHeaderSize prefixes every binary WebSocket message:
//
//	seq(8) outcome(1) format(1) reserved(2) size(4)
//
// followed by size bytes of frame data. All fields are big-endian.
const FrameHeaderSize = 16

var frameUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// StreamHello is the first (text) message on a frame WebSocket.
type StreamHello struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// StreamingHandlers serves frames of live streams.
type StreamingHandlers struct {
	serverService ServerService
}

// NewStreamingHandlers creates a new streaming handlers instance
func NewStreamingHandlers(serverSvc ServerService) *StreamingHandlers {
	return &StreamingHandlers{serverService: serverSvc}
}

// EncodeFrameMessage builds the binary WebSocket message for f.
func EncodeFrameMessage(f *stream.Frame) []byte {
	msg := make([]byte, FrameHeaderSize+len(f.Data))
	binary.BigEndian.PutUint64(msg[0:8], f.Seq)
	msg[8] = byte(f.Outcome)
	msg[9] = byte(f.Format)
	binary.BigEndian.PutUint32(msg[12:16], uint32(len(f.Data)))
	copy(msg[FrameHeaderSize:], f.Data)
	return msg
}

// HandleFramePNG handles GET /api/streams/{id}/frame.png
func (h *StreamingHandlers) HandleFramePNG(w http.ResponseWriter, req *http.Request, key string) {
	s, _, ok := h.serverService.GetStream(key)
	if !ok {
		RespondError(w, http.StatusNotFound, "stream not found")
		return
	}
	frame := s.Latest()
	if frame == nil {
		RespondError(w, http.StatusNotFound, "no frame yet")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image()); err != nil {
		util.GetLogger().Error("Failed to encode frame", "stream", key, "seq", frame.Seq, "error", err)
		RespondError(w, http.StatusInternalServerError, "failed to encode frame")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Header().Set("X-Frame-Outcome", frame.Outcome.String())
	w.Header().Set("X-Trace-Id", frame.TraceID)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// HandleFrameWebSocket handles GET /api/streams/{id}/ws
func (h *StreamingHandlers) HandleFrameWebSocket(w http.ResponseWriter, req *http.Request, key string) {
	logger := util.GetLogger()

	s, id, ok := h.serverService.GetStream(key)
	if !ok {
		RespondError(w, http.StatusNotFound, "stream not found")
		return
	}

	conn, err := frameUpgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", "stream", id, "error", err)
		return
	}
	defer conn.Close()

	subscriber := "ws-" + uniuri.NewLen(8)
	frames := s.SubscribeFrames(subscriber, h.serverService.SubscriberBuffer())
	defer s.UnsubscribeFrames(subscriber)
	logger.Info("Frame WebSocket connected", "stream", id, "subscriber", subscriber)

	cfg := s.Config()
	if err := conn.WriteJSON(StreamHello{
		ID:     id,
		Name:   cfg.Name,
		Format: cfg.Format.String(),
		Width:  cfg.Resolution.Width,
		Height: cfg.Resolution.Height,
	}); err != nil {
		logger.Error("Failed to write stream info", "stream", id, "error", err)
		return
	}

	// Reader detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logger.Debug("Frame WebSocket read error", "stream", id, "error", err)
				return
			}
		}
	}()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-closed:
			return
		case frame, ok := <-frames:
			if !ok {
				logger.Info("Frame channel closed", "stream", id, "subscriber", subscriber)
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrameMessage(frame)); err != nil {
				logger.Error("Failed to write frame", "stream", id, "seq", frame.Seq, "error", err)
				return
			}
		}
	}
}
