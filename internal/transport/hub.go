package transport

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mrz1836/dappbridge/internal/bridge"
	"github.com/mrz1836/dappbridge/internal/message"
)

// Hub tracks live page sessions and the attached wallet UI.
type Hub struct {
	logger       bridge.Logger
	writeTimeout time.Duration

	mu        sync.Mutex
	sessions  map[string]*bridge.Bridge
	extension *websocket.Conn
}

// NewHub creates an empty hub.
func NewHub(logger bridge.Logger, writeTimeout time.Duration) *Hub {
	return &Hub{
		logger:       logger,
		writeTimeout: writeTimeout,
		sessions:     make(map[string]*bridge.Bridge),
	}
}

// SessionCount returns the number of live page sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// HasExtension reports whether a wallet UI is attached.
func (h *Hub) HasExtension() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.extension != nil
}

// SendExtension writes m to the wallet UI. It fails with bridge.ErrNoWalletUI
// when none is attached.
func (h *Hub) SendExtension(ctx context.Context, m message.Message) error {
	h.mu.Lock()
	conn := h.extension
	h.mu.Unlock()
	if conn == nil {
		return bridge.ErrNoWalletUI
	}
	return h.write(ctx, conn, m)
}

// Close stops every bridge and drops the wallet UI.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := slices.Collect(maps.Values(h.sessions))
	h.sessions = make(map[string]*bridge.Bridge)
	ext := h.extension
	h.extension = nil
	h.mu.Unlock()

	for _, b := range sessions {
		b.Stop()
	}
	if ext != nil {
		_ = ext.Close(websocket.StatusGoingAway, "shutting down")
	}
}

func (h *Hub) writer(conn *websocket.Conn) bridge.Sink {
	return bridge.SinkFunc(func(ctx context.Context, m message.Message) error {
		return h.write(ctx, conn, m)
	})
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) addSession(b *bridge.Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[b.SessionID()] = b
}

func (h *Hub) removeSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Hub) snapshot() []*bridge.Bridge {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Collect(maps.Values(h.sessions))
}

// attachExtension makes conn the wallet UI, closing any previous one.
func (h *Hub) attachExtension(conn *websocket.Conn) *websocket.Conn {
	h.mu.Lock()
	prev := h.extension
	h.extension = conn
	h.mu.Unlock()

	if prev != nil {
		_ = prev.Close(websocket.StatusPolicyViolation, "replaced by a newer wallet UI connection")
	}
	return conn
}

func (h *Hub) detachExtension(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.extension == conn {
		h.extension = nil
	}
}

// replayPending re-sends every open interaction to a newly attached wallet UI.
func (h *Hub) replayPending(ctx context.Context) {
	for _, b := range h.snapshot() {
		req, ok, err := b.PendingInteraction(ctx)
		if err != nil || !ok {
			continue
		}
		m := message.InteractionRequest{SessionID: b.SessionID(), Request: req}
		if err := h.SendExtension(ctx, m); err != nil {
			h.logger.Error("transport: replaying interaction %s: %v", req.ID, err)
		}
	}
}

// route delivers a wallet UI message. Interaction answers go to their
// session; account and storage changes go to every session.
func (h *Hub) route(ctx context.Context, m message.Message) {
	if resp, ok := m.(message.InteractionResponse); ok {
		h.mu.Lock()
		b := h.sessions[resp.SessionID]
		h.mu.Unlock()
		if b == nil {
			h.logger.Info("transport: answer for unknown session %s", resp.SessionID)
			return
		}
		if err := b.HandleExtension(ctx, m); err != nil {
			h.logger.Error("transport: session %s: %v", resp.SessionID, err)
		}
		return
	}

	for _, b := range h.snapshot() {
		if err := b.HandleExtension(ctx, m); err != nil {
			h.logger.Error("transport: session %s: %v", b.SessionID(), err)
		}
	}
}
