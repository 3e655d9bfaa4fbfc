package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// sendBuffer is how many messages may queue for one subscriber before it is
	// treated as stalled and disconnected.
	sendBuffer = 16
)

// subscriber owns the writes to one connection. Messages queue on send and a
// single writer goroutine delivers them, so a slow client never blocks Broadcast.
type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	s := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("failed to send message to websocket client", "error", err)
				s.disconnect()
				return
			}
		}
	}
}

// enqueue queues data without blocking. A full queue disconnects the client;
// the handler's read loop then unsubscribes it and the client reloads history.
func (s *subscriber) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		s.disconnect()
		return false
	}
}

// disconnect closes the connection, which fails the handler's pending read.
func (s *subscriber) disconnect() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// stop ends the writer goroutine.
func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Hub fans new messages out to websocket subscribers of a conversation.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*websocket.Conn]*subscriber // conversationID -> connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[int64]map[*websocket.Conn]*subscriber),
	}
}

// Subscribe registers a connection for a conversation.
func (h *Hub) Subscribe(conversationID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conversationID] == nil {
		h.connections[conversationID] = make(map[*websocket.Conn]*subscriber)
	}
	if old, ok := h.connections[conversationID][conn]; ok {
		old.stop()
	}
	h.connections[conversationID][conn] = newSubscriber(conn)
}

// Unsubscribe removes a connection from every conversation.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conns := range h.connections {
		if s, ok := conns[conn]; ok {
			s.stop()
			delete(conns, conn)
		}
		if len(conns) == 0 {
			delete(h.connections, id)
		}
	}
}

// Broadcast queues msg for every subscriber of its conversation. It never waits
// on a client.
func (h *Hub) Broadcast(msg *Message) {
	if h == nil {
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.connections[msg.ConversationID]))
	for _, s := range h.connections[msg.ConversationID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal chat message", "error", err)
		return
	}

	for _, s := range subs {
		if !s.enqueue(data) {
			slog.Warn("dropped websocket client that is not keeping up",
				"conversation_id", msg.ConversationID,
			)
		}
	}
}

// ConnectionCount returns the number of subscribers of a conversation.
func (h *Hub) ConnectionCount(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[conversationID])
}
