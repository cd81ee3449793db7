package protocol

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

// Handler receives frame callbacks. processor.Processor satisfies it.
type Handler interface {
	OnStartOfFrame()
	OnChunk(data []byte)
	OnEndOfFrame()
}

// DispatchStats are cumulative packet counters.
type DispatchStats struct {
	Packets            uint64 `json:"packets"`
	LostPackets        uint64 `json:"lost_packets"`
	StalePackets       uint64 `json:"stale_packets"`
	OrphanChunks       uint64 `json:"orphan_chunks"`
	UnterminatedFrames uint64 `json:"unterminated_frames"`
}

// Dispatcher turns packets into ordered frame callbacks for one stream.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger

	inFrame bool
	haveID  bool
	lastID  uint32

	packets      atomic.Uint64
	lost         atomic.Uint64
	stale        atomic.Uint64
	orphans      atomic.Uint64
	unterminated atomic.Uint64
}

// NewDispatcher creates a dispatcher. A nil logger uses the global one.
func NewDispatcher(handler Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Dispatcher{handler: handler, logger: logger}
}

// Dispatch routes one packet. Empty payloads are never forwarded as chunks.
func (d *Dispatcher) Dispatch(p *Packet) {
	d.packets.Add(1)
	d.trackID(p.ID)

	switch p.Type {
	case PacketStart:
		if d.inFrame {
			d.logger.Warn("Start of frame while a frame is open, closing it", "packet", p.ID)
			d.unterminated.Add(1)
			d.handler.OnEndOfFrame()
		}
		d.inFrame = true
		d.handler.OnStartOfFrame()
		d.chunk(p)
	case PacketData:
		if !d.inFrame {
			d.orphans.Add(1)
			d.logger.Warn("Dropping chunk outside of a frame", "packet", p.ID, "size", len(p.Payload))
			return
		}
		d.chunk(p)
	case PacketEnd:
		if !d.inFrame {
			d.orphans.Add(1)
			d.logger.Warn("Dropping end of frame outside of a frame", "packet", p.ID)
			return
		}
		d.chunk(p)
		d.inFrame = false
		d.handler.OnEndOfFrame()
	}
}

// trackID counts skipped ids as lost. Ids compare in serial number order so
// the counter survives wrap-around; a repeated or older id is stale and
// leaves lastID where it was.
func (d *Dispatcher) trackID(id uint32) {
	if !d.haveID {
		d.haveID = true
		d.lastID = id
		return
	}
	delta := int32(id - d.lastID)
	switch {
	case delta == 1:
	case delta > 1:
		gap := uint64(delta - 1)
		d.lost.Add(gap)
		d.logger.Warn("Packet id gap", "expected", d.lastID+1, "got", id, "lost", gap)
	default:
		d.stale.Add(1)
		d.logger.Warn("Stale packet id", "last", d.lastID, "got", id)
		return
	}
	d.lastID = id
}

func (d *Dispatcher) chunk(p *Packet) {
	if len(p.Payload) > 0 {
		d.handler.OnChunk(p.Payload)
	}
}

// Flush closes a frame left open by a truncated stream.
func (d *Dispatcher) Flush() {
	if d.inFrame {
		d.unterminated.Add(1)
		d.inFrame = false
		d.handler.OnEndOfFrame()
	}
}

// Run reads packets from r until EOF, a read error, or ctx is done. A clean
// EOF returns nil; any open frame is flushed either way.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, maxPayload int) error {
	defer d.Flush()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := ReadPacket(r, maxPayload)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		d.Dispatch(p)
	}
}

// Stats returns the packet counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Packets:            d.packets.Load(),
		LostPackets:        d.lost.Load(),
		StalePackets:       d.stale.Load(),
		OrphanChunks:       d.orphans.Load(),
		UnterminatedFrames: d.unterminated.Load(),
	}
}
