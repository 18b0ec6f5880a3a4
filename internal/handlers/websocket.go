package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs stay well below this.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client is one participant connection. It is the registry's occupant.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues a frame without blocking. Frames for a closed connection or a
// full buffer are dropped.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// HandleSignaling upgrades the request and runs the participant's pumps.
func (h *Handler) HandleSignaling(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "err", err)
		return
	}

	client := newClient(conn)
	h.logger.Info("participant connected", "occupant", client.id, "remote", conn.RemoteAddr().String())

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		// An abrupt disconnect is a leave.
		h.registry.Leave(c)
		c.close()
		c.conn.Close()
		h.logger.Info("participant disconnected", "occupant", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "occupant", c.id, "err", err)
			}
			return
		}

		msg, err := models.Decode(frame)
		if err != nil {
			h.logger.Debug("dropping malformed frame", "occupant", c.id, "err", err)
			h.sendError(c, "malformed frame")
			continue
		}
		h.dispatch(c, msg)
	}
}

func (h *Handler) dispatch(c *Client, msg *models.Message) {
	switch msg.Event {
	case models.EventJoin:
		if _, err := h.registry.Join(msg.RoomID, c); err != nil {
			if errors.Is(err, registry.ErrInvalidRoomID) {
				h.sendError(c, "invalid room id")
				return
			}
			h.logger.Error("join failed", "occupant", c.id, "err", err)
		}

	case models.EventSignal:
		roomID := msg.RoomID
		if roomID == "" {
			roomID, _ = h.registry.RoomOf(c.id)
		}
		if len(msg.Data) == 0 || roomID == "" {
			return
		}
		h.registry.Relay(c, roomID, msg.Data)

	case models.EventLeave:
		h.registry.Leave(c)

	default:
		h.logger.Debug("unknown event", "occupant", c.id, "event", msg.Event)
		h.sendError(c, "unknown event")
	}
}

func (h *Handler) sendError(c *Client, text string) {
	frame, err := models.Encode(&models.Message{Event: models.EventError, Error: text})
	if err != nil {
		return
	}
	c.Send(frame)
}

func (h *Handler) writePump(c *Client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("failed to write frame", "occupant", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
