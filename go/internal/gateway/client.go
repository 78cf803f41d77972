package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

// EventHandler receives inbound events and the terminal disconnect. The
// session implements it. Events arrive in the order the service sent them.
type EventHandler interface {
	HandleEvent(ev protocol.ServerEvent) error
	HandleDisconnect(err error)
}

// Config holds configuration for the game service socket.
type Config struct {
	URL             string // ws:// or wss:// endpoint
	GameID          string
	PlayerID        string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	HandshakeHeader http.Header
}

// DefaultConfig returns default socket configuration for one game.
func DefaultConfig(rawURL, gameID, playerID string) Config {
	return Config{
		URL:            rawURL,
		GameID:         gameID,
		PlayerID:       playerID,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Client is the persistent bidirectional socket to the game service for
// one session. Outbound messages are fire-and-forget; inbound events are
// delivered to the handler in send order on a single goroutine.
type Client struct {
	config  Config
	handler EventHandler

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the game service and starts the read and write pumps.
func Dial(ctx context.Context, config Config, handler EventHandler) (*Client, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("game_id", config.GameID)
	if config.PlayerID != "" {
		q.Set("player_id", config.PlayerID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), config.HandshakeHeader)
	if err != nil {
		return nil, fmt.Errorf("dial game service: %w", err)
	}

	c := &Client{
		config:  config,
		handler: handler,
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("game_id", config.GameID).
		Str("url", u.Redacted()).
		Msg("connected to game service")
	return c, nil
}

// Send queues one outbound message. Fire-and-forget: a full send buffer is
// an error rather than a block, because every caller runs on the event or
// UI path.
func (c *Client) Send(msg protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal client message: %w", err)
	}
	select {
	case <-c.done:
		return fmt.Errorf("gateway closed")
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("gateway send buffer full")
	}
}

// Close shuts the socket down. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Msg("failed to write message to game service")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump delivers inbound events to the handler until the connection
// drops, then surfaces the drop exactly once.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected WebSocket close")
			}
			c.handler.HandleDisconnect(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		var ev protocol.ServerEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Warn().Err(err).Msg("malformed event from game service, skipping")
			continue
		}
		if err := c.handler.HandleEvent(ev); err != nil {
			log.Warn().
				Err(err).
				Str("type", string(ev.Type)).
				Msg("event handler error")
		}
	}
}
