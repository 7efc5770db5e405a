package tui

import (
	"errors"
	"strings"
	"testing"

	"visualizer/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
)

func testDeviceModel(devices []audio.Device, err error) DeviceListModel {
	m := NewDeviceListModel()
	m.fetch = func() ([]audio.Device, error) { return devices, err }
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	return next.(DeviceListModel)
}

func sendKey(m DeviceListModel, k tea.KeyMsg) (DeviceListModel, tea.Cmd) {
	next, cmd := m.Update(k)
	return next.(DeviceListModel), cmd
}

var (
	keyMsgDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyMsgEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyMsgEsc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func TestDeviceListSelect(t *testing.T) {
	devices := []audio.Device{
		{ID: 1, Name: "Speakers", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 48000, IsDefaultOutput: true},
		{ID: 4, Name: "Interface", HostAPI: "Core Audio", MaxInputChannels: 2, MaxOutputChannels: 8, DefaultSampleRate: 44100},
	}
	m := testDeviceModel(devices, nil)

	msg := m.Init()()
	next, _ := m.Update(msg)
	m = next.(DeviceListModel)

	view := m.View()
	if !strings.Contains(view, "Speakers") || !strings.Contains(view, "[default]") {
		t.Errorf("list view missing devices: %q", view)
	}

	m, _ = sendKey(m, keyMsgDown)
	m, _ = sendKey(m, keyMsgDown)
	if m.selectedIndex != 1 {
		t.Fatalf("selectedIndex = %d, want 1", m.selectedIndex)
	}

	m, _ = sendKey(m, keyMsgEnter)
	if m.activeScreen != DetailScreen {
		t.Fatal("enter should open the detail screen")
	}
	if view := m.View(); !strings.Contains(view, "output_device: 4") {
		t.Errorf("detail view: %q", view)
	}

	m, _ = sendKey(m, keyMsgEsc)
	if m.activeScreen != ListScreen {
		t.Fatal("esc should return to the list")
	}

	m, _ = sendKey(m, keyMsgEnter)
	m, cmd := sendKey(m, keyMsgEnter)
	if m.Chosen() != 4 {
		t.Errorf("Chosen = %d, want 4", m.Chosen())
	}
	if cmd == nil {
		t.Fatal("confirming should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("confirming should return tea.Quit")
	}
}

func TestDeviceListEmptyAndError(t *testing.T) {
	m := testDeviceModel(nil, nil)
	m, _ = sendKey(m, keyMsgEnter)
	if m.activeScreen != ListScreen {
		t.Error("enter on an empty list should stay on the list")
	}
	if !strings.Contains(m.View(), "No output devices") {
		t.Errorf("empty view: %q", m.View())
	}
	if m.Chosen() != -1 {
		t.Errorf("Chosen = %d, want -1", m.Chosen())
	}

	m = testDeviceModel(nil, errors.New("portaudio down"))
	next, _ := m.Update(m.Init()())
	if view := next.(DeviceListModel).View(); !strings.Contains(view, "portaudio down") {
		t.Errorf("error view: %q", view)
	}
}
