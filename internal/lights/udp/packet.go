// SPDX-License-Identifier: MIT

/*
Package udp carries light batches to a hardware node as binary datagrams.

Packet Structure (BigEndian):

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Opcode            | uint8          | 1            | 1 = set, 2 = all off    |
| Color             | [4]uint8       | 4            | R, G, B, W              |
| Intensity         | uint8          | 1            | 0-100                   |
| Channel Count     | uint16         | 2            | Number of indices (N)   |
| Channels          | []uint16       | N * 2        | Channel indices         |
+-----------------------------------------------------------------------------+

An "all off" packet carries a zero color and no channels.
*/
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Opcode selects what a packet does on the node.
type Opcode uint8

const (
	OpSet Opcode = 1
	OpOff Opcode = 2
)

// HeaderSize is the size of a packet without channel indices.
const HeaderSize = 4 + 8 + 1 + 4 + 1 + 2

var ErrShortPacket = errors.New("packet too short")

// Packet is one decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Op        Opcode
	Color     [4]uint8
	Intensity uint8
	Channels  []uint16
}

// Encoder packs packets into a reusable buffer. It is not safe for
// concurrent use.
type Encoder struct {
	buf bytes.Buffer
}

// Encode returns the wire form of p. The slice is valid until the next call.
func (e *Encoder) Encode(p Packet) ([]byte, error) {
	if len(p.Channels) > math.MaxUint16 {
		return nil, fmt.Errorf("too many channels in one packet: %d", len(p.Channels))
	}
	e.buf.Reset()
	e.buf.Grow(HeaderSize + 2*len(p.Channels))

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], p.Sequence)
	binary.BigEndian.PutUint64(hdr[4:], uint64(p.Timestamp))
	hdr[12] = byte(p.Op)
	copy(hdr[13:17], p.Color[:])
	hdr[17] = p.Intensity
	binary.BigEndian.PutUint16(hdr[18:], uint16(len(p.Channels)))
	e.buf.Write(hdr[:])

	if len(p.Channels) > 0 {
		if err := binary.Write(&e.buf, binary.BigEndian, p.Channels); err != nil {
			return nil, fmt.Errorf("failed to pack channels: %w", err)
		}
	}
	return e.buf.Bytes(), nil
}

// Decode parses a datagram produced by Encode.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:])),
		Op:        Opcode(data[12]),
		Intensity: data[17],
	}
	copy(p.Color[:], data[13:17])

	n := int(binary.BigEndian.Uint16(data[18:]))
	body := data[HeaderSize:]
	if len(body) < 2*n {
		return Packet{}, fmt.Errorf("%w: want %d channels, have %d bytes", ErrShortPacket, n, len(body))
	}
	p.Channels = make([]uint16, n)
	for i := range p.Channels {
		p.Channels[i] = binary.BigEndian.Uint16(body[2*i:])
	}
	return p, nil
}
