package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fundex/internal/domain"
	"fundex/internal/events"
	"fundex/internal/observability"
)

// broadcastWriteTimeout bounds how long one slow subscriber can hold up the
// commit path before it is evicted.
const broadcastWriteTimeout = 2 * time.Second

// wireEvent is the websocket and journal-query rendering of an event.
// The payload keeps the field names of the domain payload structs, same as
// the journal encoding.
type wireEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Unix    int64  `json:"unix"`
	Account string `json:"account,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Broadcaster fans committed engine events out to websocket subscribers.
// It implements events.Sink; Publish runs in the engine's commit path, so
// writes carry a deadline and failing connections are dropped immediately.
type Broadcaster struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

var _ events.Sink = (*Broadcaster)(nil)

// NewBroadcaster builds a broadcaster with no subscribers. A nil logger
// discards log output.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Publish sends every event in the batch to every subscriber.
func (b *Broadcaster) Publish(batch []*domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return
	}
	for _, ev := range batch {
		if ev == nil {
			continue
		}
		msg, err := json.Marshal(wireEvent{
			ID:      ev.ID,
			Type:    ev.Type.String(),
			Unix:    ev.Unix,
			Account: ev.Account,
			Payload: ev.Payload,
		})
		if err != nil {
			b.log.Error("encode event", zap.String("event_type", ev.Type.String()), zap.Error(err))
			continue
		}
		for c := range b.clients {
			c.SetWriteDeadline(time.Now().Add(broadcastWriteTimeout))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.log.Warn("drop subscriber", zap.Error(err))
				c.Close()
				delete(b.clients, c)
			}
		}
	}
	observability.SetWSClients(len(b.clients))
}

// Handler accepts websocket subscriptions. Subscribers only receive;
// inbound messages are read and discarded to detect the close.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade", zap.Error(err))
			return
		}
		b.add(conn)
		go func() {
			defer b.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.Close()
		delete(b.clients, c)
	}
	observability.SetWSClients(0)
}

func (b *Broadcaster) add(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = struct{}{}
	observability.SetWSClients(len(b.clients))
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	conn.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
	observability.SetWSClients(len(b.clients))
}
