package hub

import (
	"context"
	"time"
)

// Connection is one client's live session as seen by the hub.
type Connection interface {
	ID() string
	RemoteAddr() string
	ConnectedAt() time.Time
	// Send queues a frame for delivery without blocking.
	Send(frame Frame) error
	Close() error
	IsClosed() bool
	// Context is cancelled once the connection has ended.
	Context() context.Context
}

// MessageHandler receives every frame read from a connection.
type MessageHandler func(from Connection, frame Frame)
