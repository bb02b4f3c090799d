package feed

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// nil means every symbol
	filterMu sync.RWMutex
	symbols  map[string]bool
}

// subscribeMsg replaces the client's symbol filter. An empty list clears it.
type subscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(conn *websocket.Conn, h *Hub, symbols map[string]bool) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: symbols,
	}
}

func (c *Client) wants(symbol string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.symbols == nil || c.symbols[symbol]
}

func (c *Client) setSymbols(list []string) {
	var m map[string]bool
	if len(list) > 0 {
		m = make(map[string]bool, len(list))
		for _, s := range list {
			m[s] = true
		}
	}
	c.filterMu.Lock()
	c.symbols = m
	c.filterMu.Unlock()
}

// reply queues a direct response. The hub lock guards against a concurrent
// RemoveClient closing send.
func (c *Client) reply(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.clients[c] {
		c.queue(msg)
	}
}

// queue is a non-blocking send; the message is dropped if the client is behind.
// Caller holds the hub lock.
func (c *Client) queue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce whatever is already queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[feed] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg subscribeMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch {
		case msg.Type == "SUBSCRIBE":
			c.setSymbols(msg.Symbols)
			ack, _ := json.Marshal(map[string]any{"type": "subscribed", "symbols": msg.Symbols})
			c.reply(ack)
		case msg.Ping > 0:
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.reply(pong)
		}
	}
}
