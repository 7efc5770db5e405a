// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"visualizer/internal/config"
	"visualizer/internal/lights"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const columnWidth = 6

var (
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// column is one bar of the array, bottom channel first.
type column struct {
	name    string
	indices []int
}

func columnsFromConfig(bars []config.BarConfig) []column {
	cols := make([]column, 0, len(bars))
	for _, b := range bars {
		cols = append(cols, column{name: b.Name, indices: b.Channels.Indices()})
	}
	return cols
}

// frameMsg carries a snapshot of the array to the UI.
type frameMsg struct {
	channels []lights.Channel
}

// ArrayModel renders the light array as vertical columns.
type ArrayModel struct {
	columns  []column
	channels []lights.Channel
	height   int
}

func newArrayModel(cols []column, channels int) ArrayModel {
	h := 0
	for _, c := range cols {
		h = max(h, len(c.indices))
	}
	return ArrayModel{columns: cols, channels: make([]lights.Channel, channels), height: h}
}

func (m ArrayModel) Init() tea.Cmd { return nil }

func (m ArrayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.channels = msg.channels
	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ArrayModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Light Array"))
	sb.WriteString("\n\n")

	for row := m.height - 1; row >= 0; row-- {
		for _, c := range m.columns {
			sb.WriteString(m.cell(c, row))
		}
		sb.WriteString("\n")
	}
	for _, c := range m.columns {
		name := c.name
		if len(name) > columnWidth-1 {
			name = name[:columnWidth-1]
		}
		sb.WriteString(footerStyle.Render(fmt.Sprintf("%-*s", columnWidth, name)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(fmt.Sprintf("%d/%d lit • q: Quit", m.lit(), len(m.channels))))
	return sb.String()
}

func (m ArrayModel) cell(c column, row int) string {
	pad := strings.Repeat(" ", columnWidth-4)
	if row >= len(c.indices) {
		return strings.Repeat(" ", columnWidth)
	}
	i := c.indices[row]
	if i >= len(m.channels) || !m.channels[i].Lit() {
		return offStyle.Render(" ·· ") + pad
	}
	return lipgloss.NewStyle().Foreground(displayColor(m.channels[i].Color)).Render(" ██ ") + pad
}

func (m ArrayModel) lit() int {
	n := 0
	for _, ch := range m.channels {
		if ch.Lit() {
			n++
		}
	}
	return n
}

// displayColor maps RGBW onto a terminal color. Pure white channels show as
// their white level.
func displayColor(c lights.Color) lipgloss.Color {
	r, g, b := c.R, c.G, c.B
	if r == 0 && g == 0 && b == 0 {
		r, g, b = c.W, c.W, c.W
	}
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}

// TerminalDriver is a lights.Driver that draws the array with Bubble Tea.
// Writes only update the shared state; a pump goroutine forwards at most one
// pending frame to the UI so the sync loop never waits on rendering.
type TerminalDriver struct {
	program *tea.Program
	state   *lights.State
	dirty   chan struct{}
	done    chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	err       error
}

// NewTerminalDriver creates a driver for the bars in cfg. Call Start to
// show the UI.
func NewTerminalDriver(cfg config.LightsConfig, opts ...tea.ProgramOption) *TerminalDriver {
	channels := lights.ChannelCount(cfg.Bars)
	model := newArrayModel(columnsFromConfig(cfg.Bars), channels)
	return &TerminalDriver{
		program: tea.NewProgram(model, opts...),
		state:   lights.NewState(channels),
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the UI in the background.
func (d *TerminalDriver) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(d.done)
		if _, err := d.program.Run(); err != nil {
			d.err = err
		}
	}()
	go d.pump()
}

func (d *TerminalDriver) pump() {
	for {
		select {
		case <-d.done:
			return
		case <-d.dirty:
			d.program.Send(frameMsg{channels: d.state.Snapshot()})
		}
	}
}

// Done is closed when the UI exits, including when the user quits.
func (d *TerminalDriver) Done() <-chan struct{} { return d.done }

// Err returns the error the UI exited with, once Done is closed.
func (d *TerminalDriver) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// State exposes the mirrored array.
func (d *TerminalDriver) State() *lights.State { return d.state }

func (d *TerminalDriver) notify() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

func (d *TerminalDriver) SetChannels(indices []int, color lights.Color, intensity int) error {
	if d.closed.Load() {
		return &lights.DriverError{Driver: config.DriverTerminal, Op: "set", Err: lights.ErrClosed}
	}
	if err := d.state.Set(indices, color, intensity); err != nil {
		return &lights.DriverError{Driver: config.DriverTerminal, Op: "set", Err: err}
	}
	d.notify()
	return nil
}

func (d *TerminalDriver) TurnOff() error {
	if d.closed.Load() {
		return &lights.DriverError{Driver: config.DriverTerminal, Op: "off", Err: lights.ErrClosed}
	}
	d.state.Clear()
	d.notify()
	return nil
}

// Close stops the UI and waits for it to restore the terminal.
func (d *TerminalDriver) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.started.Load() {
			d.program.Quit()
			<-d.done
		}
	})
	return nil
}

var _ lights.Driver = (*TerminalDriver)(nil)
