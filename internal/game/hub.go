package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
)

// clientQueueSize bounds the per-client send queue; a slow reader
// drops events instead of stalling the hub.
const clientQueueSize = 32

// Client is one connected websocket subscriber. All writes to the
// connection go through a single writer goroutine draining queue, so
// events arrive in the order they were enqueued.
type Client struct {
	conn      *websocket.Conn
	accountID string
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Hub fans settlement and placement events out to every connected
// client. Events are fire-and-forget: the core never waits on a
// subscriber.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logrus.WithField("account", client.accountID).
				Info("[HUB] client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				logrus.WithField("account", client.accountID).
					Info("[HUB] client disconnected")
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				logrus.WithError(err).Warn("[HUB] marshal error")
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(payload)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event without blocking; if the channel is full
// the event is dropped.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		logrus.Warn("[HUB] broadcast channel full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue hands a payload to the client's writer without blocking; a
// full queue drops the payload.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.queue <- payload:
	default:
		logrus.WithField("account", c.accountID).
			Warn("[HUB] client queue full, dropping event")
	}
}

// writeLoop is the single writer for one connection.
func (c *Client) writeLoop() {
	for {
		select {
		case payload := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.WithError(err).WithField("account", c.accountID).
					Warn("[HUB] write error")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// SendEvent delivers one event to a single client, used for the
// initial round snapshot on connect. It shares the broadcast queue so
// snapshots and broadcasts stay ordered.
func (c *Client) SendEvent(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Warn("[HUB] marshal error")
		return
	}
	c.enqueue(payload)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, accountID string) *Client {
	client := &Client{
		conn:      conn,
		accountID: accountID,
		queue:     make(chan []byte, clientQueueSize),
		done:      make(chan struct{}),
	}
	go client.writeLoop()
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			h.unregister <- client
			return
		}
	}
	h.mu.RUnlock()
}
