// Package ws adapts websocket connections to registry clients: an outbound
// pump fed by a bounded buffer, an inbound pump feeding the service, and
// per-connection rate limiting on what clients send.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kwonkwonn/chatting-sever/internal/metrics"
	"github.com/kwonkwonn/chatting-sever/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20 // 1MB
	sendBuffer     = 256

	inboundRate  = 10 // messages per second per connection
	inboundBurst = 20
)

var (
	// ErrClientClosed reports a Send to a connection that is gone.
	ErrClientClosed = errors.New("ws: client closed")

	// ErrSendBufferFull reports a Send dropped because the client reads too
	// slowly. The broadcast moves on; this client misses the payload.
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// Upgrader is shared by all websocket endpoints.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inbound is the client-to-server frame shape.
type inbound struct {
	Message string `json:"message"`
}

// Client is a websocket-backed registry client.
type Client struct {
	id      string
	roomID  uuid.UUID
	userID  string
	conn    *websocket.Conn
	svc     *service.Service
	logger  zerolog.Logger
	limiter *rate.Limiter

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection. Run starts the pumps and blocks
// until the connection dies.
func NewClient(conn *websocket.Conn, svc *service.Service, roomID uuid.UUID, userID string, logger zerolog.Logger) *Client {
	return &Client{
		id:      uuid.NewString(),
		roomID:  roomID,
		userID:  userID,
		conn:    conn,
		svc:     svc,
		logger:  logger,
		limiter: rate.NewLimiter(inboundRate, inboundBurst),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// ID implements registry.Client.
func (c *Client) ID() string { return c.id }

// UserID returns the participant id presented at connect time.
func (c *Client) UserID() string { return c.userID }

// Send implements registry.Client without ever blocking a broadcast: the
// payload is queued for the write pump, and a full queue or dead connection
// reports an error instead of waiting.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Run registers the client with its room and services the connection until
// it closes.
func (c *Client) Run(ctx context.Context) error {
	if err := c.svc.Connect(c.roomID, c); err != nil {
		_ = c.conn.Close()
		return err
	}
	defer c.svc.Disconnect(c.roomID, c)

	go c.writePump()
	c.readPump(ctx)
	return nil
}

// close marks the client dead for Send and wakes the write pump. The send
// channel is never closed so concurrent broadcasts cannot panic.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Str("client", c.id).Msg("websocket closed unexpectedly")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.InboundRateLimited.Inc()
			continue
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Message == "" {
			continue
		}

		if _, err := c.svc.PostMessage(ctx, c.roomID, c.userID, in.Message); err != nil {
			c.logger.Warn().Err(err).Str("room", c.roomID.String()).Msg("message delivered live but not logged durably")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
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
