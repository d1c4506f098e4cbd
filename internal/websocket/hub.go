// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"sensor-dashboard/internal/metrics"
	"sensor-dashboard/internal/settings"
)

// ErrClosed is returned once the hub's Run loop has exited.
var ErrClosed = errors.New("hub closed")

// ErrReadOnly is reported to clients that commit without credentials.
var ErrReadOnly = errors.New("authentication required to change settings")

// Envelope is the frame format sent to browsers.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// CommitHandler applies a settings commit received from a browser.
type CommitHandler func(ev settings.CommitEvent) error

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opBroadcast
	opDirect
)

// hubOp is one queued request. All requests share a single queue so they are
// applied in the order they were made.
type hubOp struct {
	kind    opKind
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients map[*Client]bool
	queue   chan hubOp
	done    chan struct{}
	mu      sync.RWMutex

	onCommit CommitHandler
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		queue:   make(chan hubOp, 64),
		done:    make(chan struct{}),
		clients: make(map[*Client]bool),
		logger:  logger,
		metrics: m,
	}
}

// OnCommit sets the handler for commit frames. Call before Run.
func (h *Hub) OnCommit(fn CommitHandler) {
	h.onCommit = fn
}

// Run serves queued requests until ctx is done, then closes every client's
// send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.Send)
			delete(h.clients, client)
			h.metrics.ClientDisconnected()
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case op := <-h.queue:
			h.apply(op)
		}
	}
}

func (h *Hub) apply(op hubOp) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch op.kind {
	case opRegister:
		h.clients[op.client] = true
		h.metrics.ClientConnected()
		h.logger.Info("WebSocket client registered",
			zap.String("client_id", op.client.ID),
			zap.String("remote", op.client.remoteAddr()),
			zap.Bool("can_commit", op.client.CanCommit),
		)
		if op.message != nil {
			h.deliver(op.client, op.message)
		}

	case opUnregister:
		if _, ok := h.clients[op.client]; ok {
			h.drop(op.client)
			h.logger.Info("WebSocket client unregistered", zap.String("client_id", op.client.ID))
		}

	case opDirect:
		if _, ok := h.clients[op.client]; ok {
			h.deliver(op.client, op.message)
		}

	case opBroadcast:
		for client := range h.clients {
			h.deliver(client, op.message)
		}
	}
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		h.logger.Warn("WebSocket client send buffer full, removing",
			zap.String("client_id", client.ID),
		)
		h.drop(client)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(client *Client) {
	close(client.Send)
	delete(h.clients, client)
	h.metrics.ClientDisconnected()
}

// RegisterClient adds a client to the hub.
func (h *Hub) RegisterClient(client *Client) error {
	return h.enqueue(hubOp{kind: opRegister, client: client})
}

// RegisterWithGreeting adds a client and makes the greeting its first frame.
// Broadcasts queued before this call never reach the client; those queued
// after it arrive after the greeting. Callers that build the greeting from
// state which is also broadcast should hold that state's lock across the
// call.
func (h *Hub) RegisterWithGreeting(client *Client, msgType string, payload interface{}) error {
	message, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	return h.enqueue(hubOp{kind: opRegister, client: client, message: message})
}

func (h *Hub) unregisterClient(client *Client) {
	_ = h.enqueue(hubOp{kind: opUnregister, client: client})
}

// Broadcast wraps payload in an Envelope and queues it for every client.
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	message, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	return h.enqueue(hubOp{kind: opBroadcast, message: message})
}

// SendTo queues a message for one client. It is dropped if the client has
// already gone.
func (h *Hub) SendTo(client *Client, msgType string, payload interface{}) error {
	message, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	return h.enqueue(hubOp{kind: opDirect, client: client, message: message})
}

func (h *Hub) enqueue(op hubOp) error {
	if h.closed() {
		return ErrClosed
	}
	select {
	case h.queue <- op:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleCommit(client *Client, ev settings.CommitEvent) {
	if h.onCommit == nil {
		return
	}
	err := ErrReadOnly
	if client.CanCommit {
		err = h.onCommit(ev)
	}
	if err != nil {
		h.logger.Info("Commit rejected",
			zap.String("client_id", client.ID),
			zap.String("control", ev.Control),
			zap.Error(err),
		)
		_ = h.SendTo(client, "error", map[string]string{
			"control": ev.Control,
			"message": err.Error(),
		})
	}
}
