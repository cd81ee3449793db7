package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/capture"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/processor"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/protocol"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testStream = stream.Config{
	Format:     processor.FormatRGB24,
	Resolution: processor.Resolution{Width: 4, Height: 2},
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Options{
		HTTPAddr:   "127.0.0.1:0",
		IngestAddr: "127.0.0.1:0",
		Stream:     testStream,
		Logger:     quietLogger,
	})
}

func newStream(t *testing.T, name string) *stream.Stream {
	t.Helper()
	cfg := testStream
	cfg.Name = name
	s, err := stream.New(cfg, stream.Options{Logger: quietLogger})
	require.NoError(t, err)
	return s
}

func writeFrame(t *testing.T, w io.Writer, id *uint32, sizes ...int) {
	t.Helper()
	for i, n := range sizes {
		typ := protocol.PacketData
		if i == 0 {
			typ = protocol.PacketStart
		}
		require.NoError(t, protocol.WritePacket(w, &protocol.Packet{Type: typ, ID: *id, Payload: make([]byte, n)}))
		*id++
	}
	require.NoError(t, protocol.WritePacket(w, &protocol.Packet{Type: protocol.PacketEnd, ID: *id}))
	*id++
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	idB, err := r.Register(newStream(t, "b"))
	require.NoError(t, err)
	idA, err := r.Register(newStream(t, "a"))
	require.NoError(t, err)
	assert.Len(t, idA, streamIDLength)
	assert.NotEqual(t, idA, idB)

	_, err = r.Register(newStream(t, "a"))
	assert.True(t, errors.Is(err, ErrStreamExists))

	s, id, ok := r.Get(idA)
	require.True(t, ok)
	assert.Equal(t, "a", s.Name())
	assert.Equal(t, idA, id)

	s, id, ok = r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.Name())
	assert.Equal(t, idB, id)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, idA, list[0].ID)
	assert.Equal(t, "b", list[1].Name)

	removed, err := r.Remove(idA)
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Name())
	_, err = r.Remove(idA)
	assert.True(t, errors.Is(err, ErrStreamNotFound))
	_, _, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	// The name is free again.
	_, err = r.Register(newStream(t, "a"))
	assert.NoError(t, err)
}

func TestIngestAndHTTP(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- s.Ingest(context.Background(), "cam", pr) }()

	var id uint32
	writeFrame(t, pw, &id, 8)
	require.Eventually(t, func() bool {
		st, _, ok := s.GetStream("cam")
		return ok && st.Latest() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Stream list
	resp, err := http.Get(ts.URL + "/api/streams")
	require.NoError(t, err)
	var list struct {
		Streams []handlers.StreamInfo `json:"streams"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Equal(t, 1, list.Count)
	streamID := list.Streams[0].ID
	assert.Equal(t, "cam", list.Streams[0].Name)
	assert.Equal(t, uint64(1), list.Streams[0].Processor.Full)

	// Latest frame as PNG
	resp, err = http.Get(ts.URL + "/api/streams/" + streamID + "/frame.png")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "full", resp.Header.Get("X-Frame-Outcome"))
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	resp, err = http.Get(ts.URL + "/api/streams/nope/frame.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// WebSocket, addressed by name
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/streams/cam/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello handlers.StreamHello
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, streamID, hello.ID)
	assert.Equal(t, "rgb24", hello.Format)
	assert.Equal(t, 4, hello.Width)

	writeFrame(t, pw, &id, 4) // short frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	require.Len(t, msg, handlers.FrameHeaderSize+12)
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(msg[0:8]))
	assert.Equal(t, byte(processor.OutcomePartial), msg[8])
	assert.Equal(t, byte(processor.FormatRGB24), msg[9])
	assert.Equal(t, uint32(12), binary.BigEndian.Uint32(msg[12:16]))

	// Metrics
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `sensorframe_frames_total{outcome="full",stream="cam"} 1`)
	assert.Contains(t, string(body), `sensorframe_frames_total{outcome="partial",stream="cam"} 1`)

	// End of input unregisters the stream and ends the socket.
	pw.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not return")
	}
	assert.Equal(t, 0, s.Registry().Len())

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestStatusAndPages(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, false, status["running"])
	assert.Equal(t, float64(0), status["streams"])

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/api/streams")

	resp, err = http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeOverTCP(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Listen())

	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	conn, err := net.Dial("tcp", s.IngestAddr().String())
	require.NoError(t, err)
	_, err = capture.Synthesize(conn, capture.SynthOptions{
		Frames:     5,
		Resolution: testStream.Resolution,
		ChunkSize:  3,
		LongEvery:  5,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		list := s.ListStreams()
		return len(list) == 1 && list[0].Published == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.IsRunning())

	info := s.ListStreams()[0]
	assert.Equal(t, uint64(4), info.Processor.Full)
	assert.Equal(t, uint64(1), info.Processor.Dropped)

	resp, err := http.Get("http://" + s.HTTPAddr().String() + "/api/streams")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Stop drops the still-open ingest connection.
	require.NoError(t, s.Stop())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, 0, s.Registry().Len())
	assert.False(t, s.IsRunning())
	conn.Close()
}
