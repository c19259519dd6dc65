package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 16

	// Rate limiting: 20 messages per second with a burst of 30
	messagesPerSecond = 20
	burstLimit        = 30
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

func NewClient(hub *Hub, conn *websocket.Conn, identity *models.Identity, handler MessageHandler, log logging.Logger) *Client {
	return &Client{
		hub:                 hub,
		conn:                conn,
		identity:            identity,
		handler:             handler,
		log:                 log,
		subscribedResources: make(map[string]struct{}),
		Send:                make(chan []byte, 128),
		limiter:             rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity *models.Identity // nil for anonymous viewers
	handler  MessageHandler
	log      logging.Logger
	limiter  *rate.Limiter
	Send     chan []byte // Buffered channel of outbound messages.

	// owned by the hub goroutine
	subscribedResources map[string]struct{}
	rejected            bool
	closed              bool
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info(context.Background(), "ws close error", "error", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.log.Warn(context.Background(), "closing connection: message rate limit exceeded")
			break
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Info(context.Background(), "ws send error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			return
		}
	}
}

// trySend queues a direct reply without blocking the read loop.
func (c *Client) trySend(message []byte) {
	select {
	case c.Send <- message:
	default:
		c.log.Warn(context.Background(), "dropping reply for slow client")
	}
}

// kick closes the connection with a close frame; both pumps then exit.
func (c *Client) kick(code int, reason string) {
	if c.conn == nil {
		return
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.conn.Close()
}
