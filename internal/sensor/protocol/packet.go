package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Packet header size
const HeaderSize = 12

// Magic marks the start of every packet header ("SF").
const Magic = uint16(0x5346)

// DefaultMaxPayload bounds a single packet payload.
const DefaultMaxPayload = 1 * 1024 * 1024

// PacketType tells where a packet sits within a frame.
type PacketType uint16

const (
	// PacketStart opens a frame; its payload is the first chunk.
	PacketStart PacketType = 1
	// PacketData carries a middle chunk.
	PacketData PacketType = 2
	// PacketEnd carries the last chunk and closes the frame.
	PacketEnd PacketType = 3
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketStart:
		return "start"
	case PacketData:
		return "data"
	case PacketEnd:
		return "end"
	default:
		return "unknown"
	}
}

var (
	ErrBadMagic        = errors.New("bad packet magic")
	ErrUnknownType     = errors.New("unknown packet type")
	ErrPayloadTooLarge = errors.New("packet payload too large")
)

// Packet is one framed chunk on the wire.
//
// Header layout, big-endian:
//
//	magic(2) type(2) id(4) size(4)
type Packet struct {
	Type    PacketType
	ID      uint32
	Payload []byte
}

// ReadPacket reads one packet. It returns io.EOF only when the stream ends
// cleanly on a packet boundary.
func ReadPacket(reader io.Reader, maxPayload int) (*Packet, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(reader, header)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read header")
	}

	if magic := binary.BigEndian.Uint16(header[0:2]); magic != Magic {
		return nil, errors.Wrapf(ErrBadMagic, "0x%04x", magic)
	}
	typ := PacketType(binary.BigEndian.Uint16(header[2:4]))
	switch typ {
	case PacketStart, PacketData, PacketEnd:
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%d", typ)
	}
	id := binary.BigEndian.Uint32(header[4:8])
	size := binary.BigEndian.Uint32(header[8:12])

	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if uint64(size) > uint64(maxPayload) {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d > %d", size, maxPayload)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read packet payload")
	}

	return &Packet{Type: typ, ID: id, Payload: payload}, nil
}

// WritePacket writes one packet.
func WritePacket(w io.Writer, p *Packet) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[4:8], p.ID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(p.Payload)))
	buf = append(buf, p.Payload...)

	if _, err := w.Write(buf); err != nil {
		return errors.Wrapf(err, "failed to write %s packet %d", p.Type, p.ID)
	}
	return nil
}
