package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/session"
	"github.com/gorilla/websocket"
)

const MsgSnapshot = "snapshot"

// WSMessage is the envelope of every stream message.
type WSMessage struct {
	Type    string           `json:"type"`
	Payload session.Snapshot `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans session snapshots out to websocket clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*client]bool)}
}

// AddClient registers conn and queues initial as its first message.
func (b *Broadcaster) AddClient(conn *websocket.Conn, initial session.Snapshot) *client {
	c := newClient(conn)
	data, err := encode(initial)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = true
	if err != nil {
		logger.Error("Failed to encode snapshot", err)
		return c
	}
	c.send <- data
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run broadcasts every snapshot from updates until ctx is done or updates
// is closed, then disconnects all clients.
func (b *Broadcaster) Run(ctx context.Context, updates <-chan session.Snapshot) {
	defer b.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			b.broadcast(snap)
		}
	}
}

func (b *Broadcaster) broadcast(snap session.Snapshot) {
	data, err := encode(snap)
	if err != nil {
		logger.Error("Failed to encode snapshot", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			logger.Warn("Stream client too slow, disconnecting")
			delete(b.clients, c)
			c.close()
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func encode(snap session.Snapshot) ([]byte, error) {
	return json.Marshal(WSMessage{Type: MsgSnapshot, Payload: snap})
}
