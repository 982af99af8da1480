package marketdata

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is the envelope every push to a websocket client is wrapped in.
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data,omitempty"`
}

// WSHub fans L1 quotes, L2 depth and trade reports out to websocket clients.
// One client may subscribe to any number of "book:<symbol>" or
// "trades:<symbol>" channels. Channel names are matched exactly; there is
// no subscription that covers every symbol.
type WSHub struct {
	mu       sync.RWMutex
	channels map[string]map[*wsClient]bool

	unregister chan *wsClient
	subscribe  chan wsSubRequest
}

type wsSubRequest struct {
	client  *wsClient
	channel string
	remove  bool
}

// NewWSHub creates a websocket hub. Call Run in its own goroutine.
func NewWSHub() *WSHub {
	return &WSHub{
		channels:   make(map[string]map[*wsClient]bool),
		unregister: make(chan *wsClient),
		subscribe:  make(chan wsSubRequest, 256),
	}
}

// Run processes subscription changes and disconnects for the lifetime of
// the process; callers start it in its own goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.unregister:
			h.mu.Lock()
			for channel, clients := range h.channels {
				delete(clients, c)
				if len(clients) == 0 {
					delete(h.channels, channel)
				}
			}
			h.mu.Unlock()
			close(c.send)
		case req := <-h.subscribe:
			h.mu.Lock()
			if req.remove {
				if clients, ok := h.channels[req.channel]; ok {
					delete(clients, req.client)
				}
			} else {
				if h.channels[req.channel] == nil {
					h.channels[req.channel] = make(map[*wsClient]bool)
				}
				h.channels[req.channel][req.client] = true
			}
			h.mu.Unlock()
		}
	}
}

// broadcast pushes msg to every client subscribed to channel.
func (h *WSHub) broadcast(channel string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("channel", channel).Msg("websocket client buffer full, dropping message")
		}
	}
}

// BroadcastL1 pushes a top-of-book quote to book:<symbol> subscribers.
func (h *WSHub) BroadcastL1(quote L1Quote) {
	h.broadcast("book:"+quote.Symbol, WSMessage{Type: "l1", Channel: "book:" + quote.Symbol, Data: quote})
}

// BroadcastL2 pushes a depth snapshot to book:<symbol> subscribers.
func (h *WSHub) BroadcastL2(depth L2Depth) {
	h.broadcast("book:"+depth.Symbol, WSMessage{Type: "l2", Channel: "book:" + depth.Symbol, Data: depth})
}

// BroadcastTrade pushes a trade report to trades:<symbol> subscribers.
func (h *WSHub) BroadcastTrade(trade TradeReport) {
	h.broadcast("trades:"+trade.Symbol, WSMessage{Type: "trade", Channel: "trades:" + trade.Symbol, Data: trade})
}

// ServeWS upgrades an HTTP connection and registers the resulting client.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	go c.writePump()
	go c.readPump()
}

type wsClientMessage struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// wsClient wraps a single websocket connection and its subscriptions.
type wsClient struct {
	hub  *WSHub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.hub.subscribe <- wsSubRequest{client: c, channel: msg.Channel}
		case "unsubscribe":
			c.hub.subscribe <- wsSubRequest{client: c, channel: msg.Channel, remove: true}
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
