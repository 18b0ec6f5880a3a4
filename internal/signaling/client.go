// Package signaling is the participant side of the signaling connection.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/peercall/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	incoming chan *models.Message
	outgoing chan []byte
	done     chan struct{}
	dead     chan struct{}
	once     sync.Once
}

// Dial connects to the signaling server and starts the pumps.
func Dial(ctx context.Context, serverURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		logger:   logger.With("component", "signaling"),
		incoming: make(chan *models.Message, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
		dead:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump decodes server frames onto the incoming channel. Frames that do
// not decode are logged and skipped.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("signaling connection lost", "err", err)
			}
			return
		}

		msg, err := models.Decode(frame)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "err", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		close(c.dead)
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(msg *models.Message) error {
	frame, err := models.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.dead:
		return ErrClosed
	}
}

func (c *Client) Join(roomID string) error {
	return c.Send(&models.Message{Event: models.EventJoin, RoomID: roomID})
}

func (c *Client) Leave() error {
	return c.Send(&models.Message{Event: models.EventLeave})
}

// Signal relays an envelope to the other occupant of roomID.
func (c *Client) Signal(roomID string, env *models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Send(&models.Message{Event: models.EventSignal, RoomID: roomID, Data: data})
}

// Incoming returns the channel of server messages. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *models.Message {
	return c.incoming
}

// Close ends the connection with a normal close frame.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
