// SPDX-License-Identifier: MIT
package lights

import (
	"fmt"
	"math"
	"sync"
	"time"

	"visualizer/internal/lights/udp"
)

// UDPDriver sends each batch as one packet to a light node.
type UDPDriver struct {
	mu      sync.Mutex
	sender  *udp.Sender
	enc     udp.Encoder
	seq     uint32
	scratch []uint16
	now     func() time.Time
}

// NewUDPDriver dials target ("host:port").
func NewUDPDriver(target string) (*UDPDriver, error) {
	sender, err := udp.NewSender(target)
	if err != nil {
		return nil, &DriverError{Driver: "udp", Op: "dial", Err: err}
	}
	return &UDPDriver{sender: sender, now: time.Now}, nil
}

func (d *UDPDriver) SetChannels(indices []int, color Color, intensity int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scratch = d.scratch[:0]
	for _, i := range indices {
		if i < 0 || i > math.MaxUint16 {
			return &DriverError{Driver: "udp", Op: "set", Err: fmt.Errorf("%w: %d", ErrOutOfRange, i)}
		}
		d.scratch = append(d.scratch, uint16(i))
	}
	return d.sendLocked("set", udp.Packet{
		Op:        udp.OpSet,
		Color:     [4]uint8{color.R, color.G, color.B, color.W},
		Intensity: uint8(min(max(intensity, 0), 100)),
		Channels:  d.scratch,
	})
}

func (d *UDPDriver) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendLocked("off", udp.Packet{Op: udp.OpOff})
}

func (d *UDPDriver) sendLocked(op string, p udp.Packet) error {
	d.seq++
	p.Sequence = d.seq
	p.Timestamp = d.now().UnixNano()

	data, err := d.enc.Encode(p)
	if err == nil {
		err = d.sender.Send(data)
	}
	if err != nil {
		return &DriverError{Driver: "udp", Op: op, Err: err}
	}
	logger.Debugf("udp packet %d (%d bytes)", p.Sequence, len(data))
	return nil
}

func (d *UDPDriver) Close() error {
	if err := d.sender.Close(); err != nil {
		return &DriverError{Driver: "udp", Op: "close", Err: err}
	}
	return nil
}

var _ Driver = (*UDPDriver)(nil)
