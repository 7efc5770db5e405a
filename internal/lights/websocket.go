// SPDX-License-Identifier: MIT
package lights

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Message types sent to viewers.
const (
	MessageSnapshot = "snapshot"
	MessageOff      = "off"
)

// Message is the JSON frame broadcast to simulation viewers. Every frame is
// a full snapshot of the array; an off frame precedes the snapshot that
// follows a TurnOff.
type Message struct {
	Type  string    `json:"type"`
	State []Channel `json:"state,omitempty"`
}

// WebSocketDriver serves the light array to browser viewers over /ws.
//
// Thread Safety:
// - Writes to a connection happen under clientsMu only, so each connection
//   has a single writer
// - SetChannels and TurnOff only update the state and raise a one-slot
//   dirty signal; the broadcaster sends the latest snapshot, so writes
//   between two broadcasts are coalesced and never dropped
type WebSocketDriver struct {
	addr       string
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientsMu  sync.Mutex
	dirty      chan struct{}
	offPending atomic.Bool
	server     *http.Server
	state      *State
	done       chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewWebSocketDriver creates the driver and its broadcast loop. Call Start to
// listen on addr, or mount Handler on an existing server.
func NewWebSocketDriver(addr string, channels int) *WebSocketDriver {
	d := &WebSocketDriver{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Viewers are served from anywhere on the LAN
			},
		},
		clients: make(map[*websocket.Conn]bool),
		dirty:   make(chan struct{}, 1),
		state:   NewState(channels),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.handleBroadcasts()
	return d
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (d *WebSocketDriver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves viewers in the background.
func (d *WebSocketDriver) Start() error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return &DriverError{Driver: "websocket", Op: "listen", Err: err}
	}

	d.server = &http.Server{Handler: d.Handler()}
	go func() {
		logger.Infof("websocket viewer endpoint on %s/ws", ln.Addr())
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("websocket server error: %v", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades HTTP connections and sends the current snapshot.
func (d *WebSocketDriver) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade error: %v", err)
		return
	}

	d.clientsMu.Lock()
	if err := conn.WriteJSON(Message{Type: MessageSnapshot, State: d.state.Snapshot()}); err != nil {
		d.clientsMu.Unlock()
		conn.Close()
		return
	}
	d.clients[conn] = true
	total := len(d.clients)
	d.clientsMu.Unlock()
	logger.Infof("viewer connected, total: %d", total)

	// Viewers never send; a read error means the connection is gone.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				d.dropClient(conn)
				return
			}
		}
	}()
}

func (d *WebSocketDriver) dropClient(conn *websocket.Conn) {
	d.clientsMu.Lock()
	_, ok := d.clients[conn]
	delete(d.clients, conn)
	total := len(d.clients)
	d.clientsMu.Unlock()
	if ok {
		conn.Close()
		logger.Infof("viewer disconnected, total: %d", total)
	}
}

// handleBroadcasts sends the latest state to all connected viewers whenever
// it changed. A pending update is flushed on Close so the final TurnOff
// reaches the viewers.
func (d *WebSocketDriver) handleBroadcasts() {
	defer d.wg.Done()
	for {
		select {
		case <-d.dirty:
			d.sendState()
		case <-d.done:
			select {
			case <-d.dirty:
				d.sendState()
			default:
			}
			return
		}
	}
}

func (d *WebSocketDriver) sendState() {
	var frames []Message
	if d.offPending.Swap(false) {
		frames = append(frames, Message{Type: MessageOff})
	}
	frames = append(frames, Message{Type: MessageSnapshot, State: d.state.Snapshot()})

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for client := range d.clients {
		for _, msg := range frames {
			if err := client.WriteJSON(msg); err != nil {
				logger.Warnf("error sending to viewer: %v", err)
				client.Close()
				delete(d.clients, client)
				break
			}
		}
	}
}

func (d *WebSocketDriver) notify() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

func (d *WebSocketDriver) SetChannels(indices []int, color Color, intensity int) error {
	if d.closed.Load() {
		return &DriverError{Driver: "websocket", Op: "set", Err: ErrClosed}
	}
	if err := d.state.Set(indices, color, intensity); err != nil {
		return &DriverError{Driver: "websocket", Op: "set", Err: err}
	}
	d.notify()
	return nil
}

func (d *WebSocketDriver) TurnOff() error {
	if d.closed.Load() {
		return &DriverError{Driver: "websocket", Op: "off", Err: ErrClosed}
	}
	d.state.Clear()
	d.offPending.Store(true)
	d.notify()
	return nil
}

// Clients returns the number of connected viewers.
func (d *WebSocketDriver) Clients() int {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	return len(d.clients)
}

// Close disconnects every viewer and shuts the server down.
func (d *WebSocketDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()

		d.clientsMu.Lock()
		for client := range d.clients {
			client.Close()
		}
		d.clients = make(map[*websocket.Conn]bool)
		d.clientsMu.Unlock()

		if d.server != nil {
			if cerr := d.server.Close(); cerr != nil {
				err = fmt.Errorf("failed to close websocket server: %w", cerr)
			}
		}
	})
	return err
}

var _ Driver = (*WebSocketDriver)(nil)
