package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/internal/surface"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// MessageType names a websocket message.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageOp       MessageType = "op"
	MessageAnnounce MessageType = "announce"
	MessageNotice   MessageType = "notice"
)

// Message is pushed to every websocket client. A snapshot carries the
// board Version it reflects; clients drop ops whose Seq is not greater.
type Message struct {
	Type    MessageType      `json:"type"`
	Version uint64           `json:"version,omitempty"`
	Op      *surface.Op      `json:"op,omitempty"`
	Markers []surface.Placed `json:"markers,omitempty"`
	Text    string           `json:"text,omitempty"`
	Notice  *NoticeView      `json:"notice,omitempty"`
}

// NoticeView is the JSON form of an overlay.Notice.
type NoticeView struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	Classification string  `json:"classification"`
	DistanceMiles  float64 `json:"distance_mi"`
	Bearing        string  `json:"bearing"`
	Heading        string  `json:"heading"`
	TimeToReachSec float64 `json:"time_to_reach_sec"`
}

func newNoticeView(n overlay.Notice) *NoticeView {
	return &NoticeView{
		ID:             n.ID,
		Label:          n.Label,
		Classification: n.Classification.String(),
		DistanceMiles:  n.DistanceMiles,
		Bearing:        n.Bearing.String(),
		Heading:        n.Heading.String(),
		TimeToReachSec: n.TimeToReach.Seconds(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans board changes, announcements and notices out to websocket
// clients. Broadcasts never block: a client whose buffer is full is
// disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// OnOp is a surface.Board change hook.
func (h *Hub) OnOp(op surface.Op) {
	h.Broadcast(Message{Type: MessageOp, Op: &op})
}

// Announce implements overlay.Announcer.
func (h *Hub) Announce(text string) {
	h.Broadcast(Message{Type: MessageAnnounce, Text: text})
}

// Notify implements overlay.Notifier.
func (h *Hub) Notify(n overlay.Notice) {
	h.Broadcast(Message{Type: MessageNotice, Notice: newNoticeView(n)})
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Websocket client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// serve registers conn, sends the snapshot first and pumps messages until
// the connection or ctx ends. The snapshot is taken under the hub lock so
// no broadcast falls between it and registration.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, snapshot func() Message) {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	data, err := json.Marshal(snapshot())
	if err != nil {
		h.mu.Unlock()
		log.Error().Err(err).Msg("Failed to encode snapshot")
		conn.Close()
		return
	}
	c.send <- data
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Websocket client connected")

	go h.readPump(c)
	h.writePump(ctx, c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
		c.conn.Close()
		log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("Websocket client disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
