// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sensor-dashboard/internal/settings"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	sendBuffer     = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn // The websocket connection.
	Send chan []byte     // Buffered channel of outbound messages.
	// CanCommit is false for clients that connected without credentials
	// while auth is enabled. Their commit frames are answered with an error.
	CanCommit bool
}

func NewClient(hub *Hub, conn *websocket.Conn, canCommit bool) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		CanCommit: canCommit,
	}
}

type clientFrame struct {
	Type string `json:"type"`
	settings.CommitEvent
}

func (c *Client) remoteAddr() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump reads commit frames from the browser until the connection drops.
func (c *Client) ReadPump() {
	logger := c.Hub.logger.With(zap.String("client_id", c.ID))
	defer func() {
		c.Hub.unregisterClient(c)
		c.Conn.Close()
		logger.Debug("WebSocket readPump finished")
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Info("Ignoring undecodable client frame", zap.Error(err))
			continue
		}
		switch frame.Type {
		case "commit":
			c.Hub.handleCommit(c, frame.CommitEvent)
		default:
			logger.Debug("Ignoring client frame", zap.String("type", frame.Type))
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	logger := c.Hub.logger.With(zap.String("client_id", c.ID))
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		logger.Debug("WebSocket writePump finished")
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame; the page parses each frame as JSON.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("WebSocket ping error", zap.Error(err))
				return
			}
		}
	}
}
