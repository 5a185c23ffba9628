package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"go.uber.org/zap"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events a client may fall behind before it is dropped
	sendBuffer = 64
)

type wsClient struct {
	conn   *websocket.Conn
	userID int // 0 for anonymous clients, which only see book updates
	send   chan []byte
}

// Hub keeps the connected websocket clients. Book updates go to every client,
// trade events only to the connections of the user involved. Events are queued
// per client and written by that client's own goroutine.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced by the router
			},
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := h.register(conn, userID)
	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) register(conn *websocket.Conn, userID int) *wsClient {
	client := &wsClient{conn: conn, userID: userID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

// readPump discards inbound frames until the connection fails
func (h *Hub) readPump(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

// writePump drains the client's queue until remove closes it
func (h *Hub) writePump(client *wsClient) {
	for data := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping websocket client", zap.Int("user_id", client.userID), zap.Error(err))
			h.remove(client)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) OrderBookChanged(ctx context.Context, symbol string) error {
	data, err := encodeOrderBook(symbol)
	if err != nil {
		return err
	}
	h.broadcast(data, func(*wsClient) bool { return true })
	return nil
}

func (h *Hub) TradeOccurred(ctx context.Context, ev exchange.TradeEvent) error {
	data, err := encodeTrade(ev)
	if err != nil {
		return err
	}
	h.broadcast(data, func(c *wsClient) bool { return c.userID != 0 && c.userID == ev.UserID })
	return nil
}

// broadcast queues data without blocking. Clients whose queue is full are
// disconnected.
func (h *Hub) broadcast(data []byte, match func(*wsClient) bool) {
	var lagging []*wsClient

	h.mu.RLock()
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- data:
		default:
			lagging = append(lagging, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range lagging {
		h.logger.Warn("websocket client too slow, disconnecting", zap.Int("user_id", client.userID))
		h.remove(client)
	}
}

// remove unregisters client, stops its writer and closes the connection.
// send is closed under the write lock.
func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if ok {
		client.conn.Close()
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	for client := range clients {
		close(client.send)
	}
	h.mu.Unlock()

	for client := range clients {
		client.conn.Close()
	}
}
