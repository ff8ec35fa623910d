package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
)

// ConnectionOptions tunes a WebSocketConnection.
type ConnectionOptions struct {
	SendQueueSize   int
	MaxMessageBytes int64 // 0 disables the read limit
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	// ForceText writes every frame as a text frame.
	ForceText bool
	Metrics   *metrics.RelayMetrics
}

func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		SendQueueSize:   256,
		MaxMessageBytes: 1 << 20,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    54 * time.Second,
	}
}

// WebSocketConnection implements Connection over a gorilla WebSocket.
// All writes go through writePump; reads are handed to the MessageHandler
// from readPump.
type WebSocketConnection struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// closedMu also guards sends on the send channel against its close.
	closed   bool
	closedMu sync.RWMutex

	send      chan Frame
	onMessage MessageHandler
	opts      ConnectionOptions
	logger    logger.Logger
}

// NewWebSocketConnection wraps conn and starts its read and write pumps.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	opts ConnectionOptions,
	onMessage MessageHandler,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	wsConn := &WebSocketConnection{
		id:          id,
		conn:        conn,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan Frame, opts.SendQueueSize),
		onMessage:   onMessage,
		opts:        opts,
		logger:      logger.WithField("connection_id", id),
	}

	wsConn.setupWebSocket()

	go wsConn.writePump()
	go wsConn.readPump()

	return wsConn
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

func (c *WebSocketConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketConnection) ConnectedAt() time.Time {
	return c.connectedAt
}

// Send queues a frame. It fails with ErrConnectionClosed after Close and
// with ErrSendQueueFull when the peer is not keeping up.
func (c *WebSocketConnection) Send(frame Frame) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close marks the connection closed. writePump flushes a close frame and
// releases the socket.
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.closedMu.Unlock()

	c.cancel()
	c.logger.Debug("WebSocket connection closed")
	return nil
}

// IsClosed returns true if connection is closed
func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) setupWebSocket() {
	if c.opts.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))

			if !ok {
				c.conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			messageType := int(frame.Type)
			if c.opts.ForceText {
				messageType = websocket.TextMessage
			}

			if err := c.conn.WriteMessage(messageType, frame.Payload); err != nil {
				c.logger.Debugf("Failed to write frame: %v", err)
				if c.opts.Metrics != nil {
					c.opts.Metrics.SendFailures.WithLabelValues(metrics.ReasonWrite).Inc()
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("Failed to send ping: %v", err)
				return
			}
		}
	}
}

func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		frame, ok := frameFromMessage(messageType, data)
		if !ok {
			continue
		}

		if c.onMessage != nil {
			c.onMessage(c, frame)
		}
	}
}
