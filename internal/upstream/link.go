// Package upstream holds the WebSocket link to the sensor board.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

// Subprotocol is the protocol name the board's WebSocket server registers.
const Subprotocol = "graph-update"

const writeWait = 5 * time.Second

var ErrLinkClosed = errors.New("sensor link closed")

type Config struct {
	URL              string
	Subprotocol      string
	Origin           string
	HandshakeTimeout time.Duration
	// IdleTimeout closes the link when the board stays silent this long.
	// Zero disables it.
	IdleTimeout time.Duration
}

// Link is one connection to the board. There is no reconnect: when the board
// goes away Run returns and the link is done.
type Link struct {
	conn        *websocket.Conn
	idleTimeout time.Duration
	logger      *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Link, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Subprotocol == "" {
		cfg.Subprotocol = Subprotocol
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     []string{cfg.Subprotocol},
	}
	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial sensor board %s: %w", cfg.URL, err)
	}
	if got := conn.Subprotocol(); got != cfg.Subprotocol {
		logger.Warn("Sensor board did not confirm subprotocol",
			zap.String("want", cfg.Subprotocol),
			zap.String("got", got),
		)
	}
	logger.Info("Connected to sensor board", zap.String("url", cfg.URL))

	return &Link{
		conn:        conn,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		closed:      make(chan struct{}),
	}, nil
}

// Run hands every frame from the board to handle until the link closes or
// ctx is cancelled. A handler error drops that frame only.
func (l *Link) Run(ctx context.Context, handle func(raw []byte) error) error {
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.closed:
		}
	}()

	for {
		if l.idleTimeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(l.idleTimeout))
		}
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			l.Close()
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Info("Sensor link closed")
				return nil
			}
			return fmt.Errorf("read from sensor board: %w", err)
		}
		if err := handle(message); err != nil {
			l.logger.Warn("Dropping sensor frame",
				zap.ByteString("payload", message),
				zap.Error(err),
			)
		}
	}
}

// Send writes one LED command frame. Safe for concurrent use.
func (l *Link) Send(cmd data.LEDCommand) error {
	frame, err := data.EncodeLEDCommand(cmd)
	if err != nil {
		return err
	}
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write led command: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Idempotent.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

// Done is closed once the link has been closed.
func (l *Link) Done() <-chan struct{} {
	return l.closed
}
