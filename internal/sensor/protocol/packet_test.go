package protocol

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestReadPacketWireFormat(t *testing.T) {
	raw := []byte{
		0x53, 0x46, // magic
		0x00, 0x02, // data
		0x00, 0x00, 0x01, 0x02, // id
		0x00, 0x00, 0x00, 0x03, // size
		0xaa, 0xbb, 0xcc,
	}
	p, err := ReadPacket(bytes.NewReader(raw), 0)
	require.NoError(t, err)
	assert.Equal(t, PacketData, p.Type)
	assert.Equal(t, uint32(0x102), p.ID)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, p.Payload)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, p))
	assert.Equal(t, raw, buf.Bytes())
}

func TestReadPacketErrors(t *testing.T) {
	header := func(magic, typ uint16, size uint32) []byte {
		var buf bytes.Buffer
		buf.Write([]byte{byte(magic >> 8), byte(magic), byte(typ >> 8), byte(typ)})
		buf.Write([]byte{0, 0, 0, 1})
		buf.Write([]byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)})
		return buf.Bytes()
	}

	_, err := ReadPacket(bytes.NewReader(nil), 0)
	assert.Equal(t, io.EOF, err)

	_, err = ReadPacket(bytes.NewReader(header(Magic, 1, 0)[:5]), 0)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)

	_, err = ReadPacket(bytes.NewReader(header(0xdead, 1, 0)), 0)
	assert.True(t, errors.Is(err, ErrBadMagic))

	_, err = ReadPacket(bytes.NewReader(header(Magic, 9, 0)), 0)
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = ReadPacket(bytes.NewReader(header(Magic, 2, 65)), 64)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	_, err = ReadPacket(bytes.NewReader(append(header(Magic, 2, 4), 1, 2)), 0)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

type recorder struct {
	events []string
}

func (r *recorder) OnStartOfFrame()     { r.events = append(r.events, "sof") }
func (r *recorder) OnChunk(data []byte) { r.events = append(r.events, "chunk:"+string(data)) }
func (r *recorder) OnEndOfFrame()       { r.events = append(r.events, "eof") }

func TestDispatcherOrdersCallbacks(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, quietLogger)

	d.Dispatch(&Packet{Type: PacketStart, ID: 1, Payload: []byte("ab")})
	d.Dispatch(&Packet{Type: PacketData, ID: 2, Payload: []byte("cd")})
	d.Dispatch(&Packet{Type: PacketData, ID: 3})
	d.Dispatch(&Packet{Type: PacketEnd, ID: 4, Payload: []byte("e")})
	d.Dispatch(&Packet{Type: PacketStart, ID: 5})
	d.Dispatch(&Packet{Type: PacketEnd, ID: 6})

	assert.Equal(t, []string{"sof", "chunk:ab", "chunk:cd", "chunk:e", "eof", "sof", "eof"}, rec.events)
	assert.Equal(t, DispatchStats{Packets: 6}, d.Stats())
}

func TestDispatcherRecovery(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, quietLogger)

	// Orphan data and end before any start.
	d.Dispatch(&Packet{Type: PacketData, ID: 1, Payload: []byte("x")})
	d.Dispatch(&Packet{Type: PacketEnd, ID: 2})
	// A start while open closes the previous frame; ids 4 and 5 never arrive.
	d.Dispatch(&Packet{Type: PacketStart, ID: 3, Payload: []byte("a")})
	d.Dispatch(&Packet{Type: PacketStart, ID: 6, Payload: []byte("b")})
	d.Flush()

	assert.Equal(t, []string{"sof", "chunk:a", "eof", "sof", "chunk:b", "eof"}, rec.events)
	assert.Equal(t, DispatchStats{
		Packets:            4,
		LostPackets:        2,
		OrphanChunks:       2,
		UnterminatedFrames: 2,
	}, d.Stats())
}

func TestDispatcherStaleIDs(t *testing.T) {
	tests := []struct {
		name  string
		ids   []uint32
		lost  uint64
		stale uint64
	}{
		{"repeated id", []uint32{5, 5, 6}, 0, 1},
		{"backward id", []uint32{5, 6, 3, 7}, 0, 1},
		{"repeat then gap", []uint32{5, 5, 3, 9}, 3, 2},
		{"wrap around", []uint32{math.MaxUint32 - 1, math.MaxUint32, 0, 2}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(&recorder{}, quietLogger)
			for i, id := range tt.ids {
				typ := PacketData
				if i == 0 {
					typ = PacketStart
				}
				d.Dispatch(&Packet{Type: typ, ID: id, Payload: []byte("x")})
			}
			stats := d.Stats()
			assert.Equal(t, tt.lost, stats.LostPackets)
			assert.Equal(t, tt.stale, stats.StalePackets)
			assert.Equal(t, uint64(len(tt.ids)), stats.Packets)
		})
	}
}

func TestDispatcherStalePayloadStillDelivered(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, quietLogger)

	d.Dispatch(&Packet{Type: PacketStart, ID: 5, Payload: []byte("a")})
	d.Dispatch(&Packet{Type: PacketData, ID: 5, Payload: []byte("b")})
	d.Dispatch(&Packet{Type: PacketEnd, ID: 3, Payload: []byte("c")})

	assert.Equal(t, []string{"sof", "chunk:a", "chunk:b", "chunk:c", "eof"}, rec.events)
	assert.Equal(t, DispatchStats{Packets: 3, StalePackets: 2}, d.Stats())
}

func TestDispatcherRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, &Packet{Type: PacketStart, ID: 0, Payload: []byte("12")}))
	require.NoError(t, WritePacket(&buf, &Packet{Type: PacketEnd, ID: 1, Payload: []byte("34")}))
	require.NoError(t, WritePacket(&buf, &Packet{Type: PacketStart, ID: 2, Payload: []byte("5")}))

	rec := &recorder{}
	d := NewDispatcher(rec, quietLogger)
	require.NoError(t, d.Run(context.Background(), &buf, 0))

	assert.Equal(t, []string{"sof", "chunk:12", "chunk:34", "eof", "sof", "chunk:5", "eof"}, rec.events)
	assert.Equal(t, uint64(1), d.Stats().UnterminatedFrames)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(&recorder{}, quietLogger)
	err := d.Run(ctx, bytes.NewReader(nil), 0)
	assert.Equal(t, context.Canceled, err)
}
