package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
)

const maxClientsPerUser = 50

// Flusher is the slice of http.ResponseWriter an SSE connection needs.
// httptest.ResponseRecorder satisfies it too.
type Flusher interface {
	Write(p []byte) (int, error)
	Flush()
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	userID string
	conn   Flusher
	errCh  chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	userID string
	conn   Flusher
	// receives the detached writer (nil if the connection was unknown) so
	// the caller can join it outside the hub goroutine
	replyCh chan *clientWriter
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	userID string
	data   []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdGetClientCount struct {
	userID  string
	replyCh chan int
}

func (cmdGetClientCount) hubCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn    Flusher
	sendCh  chan []byte
	done    chan struct{}
	stopped chan struct{}
}

func newClientWriter(conn Flusher) *clientWriter {
	cw := &clientWriter{
		conn:    conn,
		sendCh:  make(chan []byte, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer close(cw.stopped)
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(cw.conn, "data: %s\n\n", msg); err != nil {
				return
			}
			cw.conn.Flush()
		case <-cw.done:
			return
		}
	}
}

// stop signals the writer goroutine to exit. It does not wait; a writer
// stuck in a slow Write must never stall the hub goroutine.
func (cw *clientWriter) stop() {
	close(cw.done)
}

// join blocks until the writer goroutine has exited, after which no more
// writes to the connection can happen.
func (cw *clientWriter) join() {
	<-cw.stopped
}

// --- Hub ---

// Hub fans out update messages to every overlay connection a user has open.
// All state lives in a single goroutine that consumes cmdCh, so no locks.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[string]map[Flusher]*clientWriter
	// writers evicted mid-broadcast, kept so the owning handler's
	// Unregister can still join them
	detached map[Flusher]*clientWriter
}

func NewHub() *Hub {
	hub := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		clients:  make(map[string]map[Flusher]*clientWriter),
		detached: make(map[Flusher]*clientWriter),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			c.replyCh <- h.handleUnregister(c.userID, c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdGetClientCount:
			c.replyCh <- len(h.clients[c.userID])
		case cmdStop:
			h.handleStop()
			close(c.doneCh)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	clients, exists := h.clients[c.userID]
	if !exists {
		clients = make(map[Flusher]*clientWriter)
		h.clients[c.userID] = clients
		metrics.SSEActiveUsers.Inc()
	}

	if len(clients) >= maxClientsPerUser {
		c.errCh <- fmt.Errorf("max connections per user (%d) reached", maxClientsPerUser)
		return
	}

	clients[c.conn] = newClientWriter(c.conn)
	metrics.SSEConnectionsCurrent.Inc()
	metrics.SSEConnectionsTotal.Inc()
	slog.Debug("SSE client registered", "user_id", c.userID, "total_clients", len(clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(userID string, conn Flusher) *clientWriter {
	if cw, evicted := h.detached[conn]; evicted {
		delete(h.detached, conn)
		return cw
	}

	clients, exists := h.clients[userID]
	if !exists {
		return nil
	}

	cw, exists := clients[conn]
	if !exists {
		return nil
	}

	cw.stop()
	delete(clients, conn)
	metrics.SSEConnectionsCurrent.Dec()

	if len(clients) == 0 {
		delete(h.clients, userID)
		metrics.SSEActiveUsers.Dec()
		slog.Debug("Last SSE client disconnected", "user_id", userID)
	}
	return cw
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	clients, exists := h.clients[c.userID]
	if !exists {
		return
	}

	var slow []Flusher
	for conn, cw := range clients {
		select {
		case cw.sendCh <- c.data:
			metrics.SSEBroadcastsTotal.Inc()
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow SSE client", "user_id", c.userID)
		metrics.SSESlowClientsEvicted.Inc()
		if cw := h.handleUnregister(c.userID, conn); cw != nil {
			h.detached[conn] = cw
		}
	}
}

func (h *Hub) handleStop() {
	for userID, clients := range h.clients {
		for conn, cw := range clients {
			cw.stop()
			metrics.SSEConnectionsCurrent.Dec()
			delete(clients, conn)
		}
		delete(h.clients, userID)
		metrics.SSEActiveUsers.Dec()
	}
	clear(h.detached)
}

// --- Public API ---

// Register adds a connection to the user's fan-out set. The connection
// receives broadcasts until Unregister or Stop.
func (h *Hub) Register(userID string, conn Flusher) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{userID: userID, conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection and returns once the writer goroutine
// has exited, so the caller can safely finish the HTTP response. The join
// happens on the caller's goroutine; the hub itself never waits on a write.
func (h *Hub) Unregister(userID string, conn Flusher) {
	replyCh := make(chan *clientWriter, 1)
	h.cmdCh <- cmdUnregister{userID: userID, conn: conn, replyCh: replyCh}
	if cw := <-replyCh; cw != nil {
		cw.join()
	}
}

// Broadcast sends msg to all of the user's connections. Marshal failures
// are logged and dropped.
func (h *Hub) Broadcast(userID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "user_id", userID, "error", err)
		return
	}
	h.cmdCh <- cmdBroadcast{userID: userID, data: data}
}

func (h *Hub) GetClientCount(userID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdGetClientCount{userID: userID, replyCh: replyCh}
	return <-replyCh
}

// Stop tears down every connection and returns once the hub goroutine
// has exited.
func (h *Hub) Stop() {
	doneCh := make(chan struct{})
	h.cmdCh <- cmdStop{doneCh: doneCh}
	<-doneCh
}
