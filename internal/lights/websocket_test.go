package lights

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialViewer(t *testing.T, d *WebSocketDriver) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON error: %v", err)
	}
	return msg
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	for range 1000 {
		if msg := readMessage(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("no matching frame")
	return Message{}
}

func waitForViewers(t *testing.T, d *WebSocketDriver, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.Clients() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Clients() < n {
		t.Fatalf("viewers = %d, want %d", d.Clients(), n)
	}
}

func litChannels(state []Channel) int {
	n := 0
	for _, c := range state {
		if c.Lit() {
			n++
		}
	}
	return n
}

func TestWebSocketDriver(t *testing.T) {
	d := NewWebSocketDriver("", 8)
	defer d.Close()

	if err := d.SetChannels([]int{0}, Color{R: 9}, 50); err != nil {
		t.Fatal(err)
	}

	conn := dialViewer(t, d)
	snap := readMessage(t, conn)
	if snap.Type != MessageSnapshot || len(snap.State) != 8 {
		t.Fatalf("first message = %+v, want 8-channel snapshot", snap)
	}
	if snap.State[0].Color.R != 9 || snap.State[0].Intensity != 50 {
		t.Errorf("snapshot channel 0 = %+v", snap.State[0])
	}
	waitForViewers(t, d, 1)

	indices := []int{3, 2, 1}
	if err := d.SetChannels(indices, Color{W: 255}, 100); err != nil {
		t.Fatal(err)
	}
	indices[0] = 7 // The driver must not retain the caller's slice.

	set := readUntil(t, conn, func(m Message) bool {
		return m.Type == MessageSnapshot && litChannels(m.State) == 4
	})
	if set.State[3].Color.W != 255 || set.State[3].Intensity != 100 || set.State[7].Lit() {
		t.Errorf("snapshot after set = %+v", set.State)
	}

	if err := d.TurnOff(); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(m Message) bool { return m.Type == MessageOff })
	if after := readMessage(t, conn); after.Type != MessageSnapshot || litChannels(after.State) != 0 {
		t.Errorf("frame after off = %+v, want a dark snapshot", after)
	}
}

func TestWebSocketDriverCoalescesWrites(t *testing.T) {
	d := NewWebSocketDriver("", 12)
	defer d.Close()
	conn := dialViewer(t, d)
	readMessage(t, conn)
	waitForViewers(t, d, 1)

	// Far more writes than any queue would hold, at loop rate.
	prefix := []int{0, 1, 2, 3, 4, 5}
	for i := range 20000 {
		if err := d.SetChannels(prefix[:1+i%len(prefix)], Color{W: 255}, 100); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := d.TurnOff(); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}

	readUntil(t, conn, func(m Message) bool { return m.Type == MessageOff })
	last := readUntil(t, conn, func(m Message) bool { return m.Type == MessageSnapshot })
	if n := litChannels(last.State); n != 0 {
		t.Errorf("viewer left with %d lit channels", n)
	}
	if d.Clients() != 1 {
		t.Errorf("viewer dropped under load")
	}
}

func TestWebSocketDriverFlushesOnClose(t *testing.T) {
	d := NewWebSocketDriver("", 4)
	conn := dialViewer(t, d)
	readMessage(t, conn)
	waitForViewers(t, d, 1)

	if err := d.SetChannels([]int{0, 1}, Color{W: 255}, 100); err != nil {
		t.Fatal(err)
	}
	if err := d.TurnOff(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	readUntil(t, conn, func(m Message) bool { return m.Type == MessageOff })
}

func TestWebSocketDriverErrors(t *testing.T) {
	d := NewWebSocketDriver("", 4)

	var de *DriverError
	if err := d.SetChannels([]int{4}, Color{W: 1}, 100); !errors.As(err, &de) || !errors.Is(err, ErrOutOfRange) {
		t.Errorf("out of range: err = %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.TurnOff(); !errors.Is(err, ErrClosed) {
		t.Errorf("TurnOff after Close: err = %v, want ErrClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWebSocketDriverStartError(t *testing.T) {
	d := NewWebSocketDriver("256.0.0.1:bad", 4)
	defer d.Close()
	var de *DriverError
	if err := d.Start(); !errors.As(err, &de) || de.Op != "listen" {
		t.Errorf("Start err = %v, want listen DriverError", err)
	}
}
