package audio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Fatalf("Failed to terminate PortAudio: %v", err)
		}
	})
}

// fakeDevices swaps the PortAudio device table for a fixed one.
func fakeDevices(t *testing.T, infos []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) {
	t.Helper()
	origDevices, origDefault := paDevicesFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paDevicesFunc = origDevices
		paLibDefaultOutputDeviceFunc = origDefault
	})
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if def == nil {
			return nil, fmt.Errorf("no default")
		}
		return def, nil
	}
}

func sampleDeviceTable() []*portaudio.DeviceInfo {
	api := &portaudio.HostApiInfo{Name: "ALSA"}
	return []*portaudio.DeviceInfo{
		{Name: "mic", HostApi: api, MaxInputChannels: 2, DefaultSampleRate: 48000},
		{Name: "speakers", HostApi: api, MaxOutputChannels: 2, DefaultSampleRate: 44100,
			DefaultLowOutputLatency: 5 * time.Millisecond, DefaultHighOutputLatency: 40 * time.Millisecond},
		{Name: "interface", HostApi: api, MaxInputChannels: 8, MaxOutputChannels: 8, DefaultSampleRate: 96000},
	}
}

func TestHostDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("No audio devices found on system")
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name == "" {
			t.Errorf("Device %d has empty name", i)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("Device %d has invalid sample rate: %f", i, d.DefaultSampleRate)
		}
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestHostDevices_Fake(t *testing.T) {
	table := sampleDeviceTable()
	fakeDevices(t, table, table[1])

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}
	if !devices[1].IsDefaultOutput {
		t.Error("speakers should be marked as default output")
	}
	if devices[0].IsDefaultOutput || devices[2].IsDefaultOutput {
		t.Error("only the default output should be marked")
	}
	if got := devices[1].HostAPI; got != "ALSA" {
		t.Errorf("HostAPI = %q, want ALSA", got)
	}
	if got := devices[1].HighLatency; got != 40*time.Millisecond {
		t.Errorf("HighLatency = %v, want 40ms", got)
	}
}

func TestDeviceKind(t *testing.T) {
	tests := []struct {
		in, out int
		want    string
	}{
		{2, 0, "Input"},
		{0, 2, "Output"},
		{2, 2, "Input/Output"},
		{0, 0, "Unavailable"},
	}
	for _, tt := range tests {
		d := Device{MaxInputChannels: tt.in, MaxOutputChannels: tt.out}
		if got := d.Kind(); got != tt.want {
			t.Errorf("Kind(in=%d,out=%d) = %q, want %q", tt.in, tt.out, got, tt.want)
		}
		if got := d.CanPlay(); got != (tt.out > 0) {
			t.Errorf("CanPlay(out=%d) = %v", tt.out, got)
		}
	}
}

func TestOutputDevices(t *testing.T) {
	fakeDevices(t, sampleDeviceTable(), nil)

	devices, err := OutputDevices()
	if err != nil {
		t.Fatalf("OutputDevices error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d output devices, want 2", len(devices))
	}
	if devices[0].ID != 1 || devices[1].ID != 2 {
		t.Errorf("output IDs = %d,%d, want 1,2", devices[0].ID, devices[1].ID)
	}
}

func TestOutputDevice(t *testing.T) {
	table := sampleDeviceTable()
	fakeDevices(t, table, table[1])

	dev, err := OutputDevice(-1)
	if err != nil {
		t.Fatalf("OutputDevice(-1) error: %v", err)
	}
	if dev.Name != "speakers" {
		t.Errorf("default output = %q, want speakers", dev.Name)
	}

	if dev, err := OutputDevice(2); err != nil || dev.Name != "interface" {
		t.Errorf("OutputDevice(2) = %v, %v", dev, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", len(table) + 10, "invalid device ID"},
		{"Input-only device", 0, "has no output channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputDevice(tt.id)
			if err == nil {
				t.Errorf("Expected error for ID %d", tt.id)
			} else if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
		})
	}
}

func TestOutputDevice_paDefaultOutputDeviceError(t *testing.T) {
	orig := paLibDefaultOutputDeviceFunc
	defer func() { paLibDefaultOutputDeviceFunc = orig }()
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock default output error")
	}

	_, err := OutputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "mock default output error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	fakeDevices(t, nil, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
	if len(devices) != 0 {
		t.Errorf("expected length 0, got %d", len(devices))
	}
}

func TestListDevices(t *testing.T) {
	table := sampleDeviceTable()
	fakeDevices(t, table, table[1])

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "mic") {
		t.Error("input-only device should not be listed")
	}
	if !strings.Contains(out, "[1] speakers (Output) [default]") {
		t.Errorf("missing default speakers line in:\n%s", out)
	}
	if !strings.Contains(out, "[2] interface (Input/Output)") {
		t.Errorf("missing interface line in:\n%s", out)
	}
}
