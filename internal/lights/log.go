// SPDX-License-Identifier: MIT
package lights

import "sync/atomic"

// LogDriver writes batches to the debug log and keeps the resulting state.
// It never fails to "send".
type LogDriver struct {
	state  *State
	writes atomic.Int64
	offs   atomic.Int64
}

// NewLogDriver creates a log driver for an array of the given size.
func NewLogDriver(channels int) *LogDriver {
	logger.Infof("using log driver (%d channels)", channels)
	return &LogDriver{state: NewState(channels)}
}

func (d *LogDriver) SetChannels(indices []int, color Color, intensity int) error {
	if err := d.state.Set(indices, color, intensity); err != nil {
		return &DriverError{Driver: "log", Op: "set", Err: err}
	}
	d.writes.Add(1)
	logger.Debugf("set %v -> %s @%d", indices, color, intensity)
	return nil
}

func (d *LogDriver) TurnOff() error {
	d.state.Clear()
	d.offs.Add(1)
	logger.Debugf("all channels off")
	return nil
}

func (d *LogDriver) Close() error {
	logger.Debugf("log driver closed after %d writes", d.writes.Load())
	return nil
}

// State exposes the mirrored array.
func (d *LogDriver) State() *State { return d.state }

// Writes returns the number of successful SetChannels calls.
func (d *LogDriver) Writes() int64 { return d.writes.Load() }

// TurnOffs returns the number of TurnOff calls.
func (d *LogDriver) TurnOffs() int64 { return d.offs.Load() }

var _ Driver = (*LogDriver)(nil)
