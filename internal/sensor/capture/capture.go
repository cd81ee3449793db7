// Package capture reads and writes packet capture files and synthesizes
// test captures.
package capture

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/processor"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/protocol"
)

// CompressedExt marks zstd-compressed capture files.
const CompressedExt = ".zst"

// IsCompressed reports whether path names a compressed capture.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

type decompressingReader struct {
	*zstd.Decoder
	file *os.File
}

func (r *decompressingReader) Close() error {
	r.Decoder.Close()
	return r.file.Close()
}

type compressingWriter struct {
	*zstd.Encoder
	file *os.File
}

func (w *compressingWriter) Close() error {
	if err := w.Encoder.Close(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "failed to finish zstd stream")
	}
	return w.file.Close()
}

// Open opens a capture file for reading.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open capture %s", path)
	}
	if !IsCompressed(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to open zstd stream in %s", path)
	}
	return &decompressingReader{Decoder: dec, file: f}, nil
}

// Create creates or truncates a capture file.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create capture %s", path)
	}
	if !IsCompressed(path) {
		return f, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to start zstd stream in %s", path)
	}
	return &compressingWriter{Encoder: enc, file: f}, nil
}

// SynthOptions controls Synthesize.
type SynthOptions struct {
	Frames     int
	Resolution processor.Resolution
	// ChunkSize is the payload size of each packet.
	ChunkSize int
	// ShortEvery makes every k-th frame half length. Zero disables it.
	ShortEvery int
	// LongEvery makes every k-th frame one chunk too long. Zero disables it.
	LongEvery int
	// FirstID is the id of the first packet.
	FirstID uint32
}

// SynthStats describes what Synthesize wrote.
type SynthStats struct {
	Frames  int
	Short   int
	Long    int
	Packets int
	Bytes   int64
}

// Synthesize writes opts.Frames raw frames of a moving gradient as packets.
func Synthesize(w io.Writer, opts SynthOptions) (SynthStats, error) {
	var stats SynthStats

	if err := opts.Resolution.Validate(); err != nil {
		return stats, err
	}
	raw := opts.Resolution.RawSize()
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 || chunkSize > protocol.DefaultMaxPayload {
		chunkSize = min(raw, protocol.DefaultMaxPayload)
	}

	bw := bufio.NewWriter(w)
	id := opts.FirstID
	frame := make([]byte, raw+chunkSize)

	for i := 0; i < opts.Frames; i++ {
		n := raw
		switch {
		case opts.ShortEvery > 0 && (i+1)%opts.ShortEvery == 0:
			n = raw / 2
			stats.Short++
		case opts.LongEvery > 0 && (i+1)%opts.LongEvery == 0:
			n = raw + chunkSize
			stats.Long++
		}
		fillGradient(frame[:n], opts.Resolution.Width, i)

		packets, err := writeFrame(bw, frame[:n], chunkSize, &id)
		if err != nil {
			return stats, errors.Wrapf(err, "failed to write frame %d", i)
		}
		stats.Frames++
		stats.Packets += packets
		stats.Bytes += int64(n)
	}

	if err := bw.Flush(); err != nil {
		return stats, errors.Wrap(err, "failed to flush capture")
	}
	return stats, nil
}

func fillGradient(dst []byte, width, frame int) {
	for i := range dst {
		x, y := i%width, i/width
		dst[i] = byte(x*4 + y*2 + frame)
	}
}

func writeFrame(w io.Writer, data []byte, chunkSize int, id *uint32) (int, error) {
	packets := 0
	send := func(typ protocol.PacketType, payload []byte) error {
		err := protocol.WritePacket(w, &protocol.Packet{Type: typ, ID: *id, Payload: payload})
		*id++
		packets++
		return err
	}

	first := min(chunkSize, len(data))
	if err := send(protocol.PacketStart, data[:first]); err != nil {
		return packets, err
	}
	rest := data[first:]
	for len(rest) > chunkSize {
		if err := send(protocol.PacketData, rest[:chunkSize]); err != nil {
			return packets, err
		}
		rest = rest[chunkSize:]
	}
	return packets, send(protocol.PacketEnd, rest)
}
