// Package feed pushes finished backtest reports to WebSocket subscribers.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalperf/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

type latestEntry struct {
	Symbol string
	Seq    int64
	Data   []byte // run record JSON
}

// Hub fans finished run records out to connected WebSocket clients.
//
// Every record becomes an envelope
//
//	{"channel":"report:{symbol}:{tf}s:{rule}","data":{run record},"ts":"...","seq":N}
//
// with a hub-wide monotonic seq. Clients may filter by symbol and resume
// with ?last_seq=N after a reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // by cache key
	seq     int64
	replay  *ReplayBuffer

	// Callbacks (optional, for metrics)
	OnClients func(n int) // called with the client count after connect/disconnect
	OnDrop    func()      // called when a slow client misses a message
}

// NewHub creates a hub keeping replaySize envelopes for backfill.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(replaySize),
	}
}

// Publish broadcasts a run record. Safe for concurrent use.
func (h *Hub) Publish(rec *model.RunRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[feed] marshal %s: %v", rec.CacheKey(), err)
		return
	}
	channel := rec.CacheKey()

	// Held for the fan-out so clients see seq in order.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	buf := envelope(channel, data, time.Now().UTC(), h.seq, false)
	h.latest[channel] = latestEntry{Symbol: rec.Symbol, Seq: h.seq, Data: data}
	h.replay.Push(h.seq, buf)

	for client := range h.clients {
		if !client.wants(rec.Symbol) {
			continue
		}
		client.queue(buf)
	}
}

// envelope hand-builds the JSON wrapper around an already-encoded payload.
func envelope(channel string, data []byte, now time.Time, seq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request and registers the client.
//
//	?symbols=EURUSD,GBPUSD   only these symbols (default: all)
//	?last_seq=N              replay envelopes after N instead of the latest snapshot
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed] ws upgrade error: %v", err)
		return
	}

	client := newClient(conn, h, splitSymbols(r.URL.Query().Get("symbols")))
	lastSeq, hasLast := int64(0), false
	if v := r.URL.Query().Get("last_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastSeq, hasLast = n, true
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.sendInitialState(client, lastSeq, hasLast)
	h.mu.Unlock()

	log.Printf("[feed] ws client connected (%d total)", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	go client.readPump()
}

// sendInitialState queues the backlog for a new client. Caller holds h.mu.
func (h *Hub) sendInitialState(c *Client, lastSeq int64, hasLast bool) {
	if hasLast {
		if backlog, ok := h.replay.Since(lastSeq); ok {
			for _, env := range backlog {
				c.queue(env)
			}
			return
		}
		log.Printf("[feed] client last_seq=%d is older than the replay window, sending snapshot", lastSeq)
	}
	now := time.Now().UTC()
	for channel, entry := range h.latest {
		if !c.wants(entry.Symbol) {
			continue
		}
		c.queue(envelope(channel, entry.Data, now, entry.Seq, true))
	}
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the last published sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

func splitSymbols(s string) map[string]bool {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}
