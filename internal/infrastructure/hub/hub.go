package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
)

const defaultCleanupInterval = 30 * time.Second

// Hub owns the set of open connections and fans frames out across it.
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.RelayMetrics

	cleanupInterval time.Duration

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Hub instance. m may be nil.
func New(logger logger.Logger, m *metrics.RelayMetrics) *Hub {
	return &Hub{
		connections:     make(map[string]Connection),
		logger:          logger.WithField("component", "hub"),
		metrics:         m,
		cleanupInterval: defaultCleanupInterval,
	}
}

// Start starts the hub and its cleanup loop.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	go h.run(h.ctx)

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop closes every open connection and stops accepting registrations.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()
	h.running = false

	h.connectionsMu.Lock()
	open := h.connections
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	if h.metrics != nil {
		h.metrics.ActiveConnections.Sub(float64(len(open)))
	}

	// Close never blocks, so every connection is closed even past the deadline.
	for _, conn := range open {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		h.logger.Warnf("Hub stopped after shutdown deadline: %v", err)
	}

	h.logger.Infof("Hub stopped successfully, closed %d connections", len(open))
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// RegisterConnection adds conn to the open set. The connection is removed
// again as soon as its context ends.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	h.connectionsMu.Lock()
	h.connections[conn.ID()] = conn
	count := len(h.connections)
	h.connectionsMu.Unlock()

	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
		h.metrics.ConnectionsTotal.Inc()
	}

	h.logger.Infof("Connection %s registered from %s (open: %d)", conn.ID(), conn.RemoteAddr(), count)

	go h.watch(h.ctx, conn)
	return nil
}

func (h *Hub) watch(ctx context.Context, conn Connection) {
	select {
	case <-conn.Context().Done():
		h.UnregisterConnection(conn.ID())
	case <-ctx.Done():
	}
}

// UnregisterConnection removes and closes a connection. It reports whether
// the connection was still registered.
func (h *Hub) UnregisterConnection(connID string) bool {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists {
		delete(h.connections, connID)
	}
	h.connectionsMu.Unlock()

	if !exists {
		return false
	}

	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	if err := conn.Close(); err != nil {
		h.logger.Debugf("Closing connection %s: %v", connID, err)
	}

	h.logger.Infof("Connection %s unregistered", connID)
	return true
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

// GetConnections returns a snapshot of the open set.
func (h *Hub) GetConnections() []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// ConnectionCount returns the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Relay queues frame for every open connection except from and returns
// how many peers accepted it. A failing peer never affects the others.
func (h *Hub) Relay(from Connection, frame Frame) int {
	if h.metrics != nil {
		h.metrics.MessagesReceived.WithLabelValues(frame.Type.String()).Inc()
	}

	delivered := 0
	for _, peer := range h.GetConnections() {
		if peer.ID() == from.ID() || peer.IsClosed() {
			continue
		}

		if err := peer.Send(frame); err != nil {
			h.logger.Debugf("Dropped %s frame for connection %s: %v", frame.Type, peer.ID(), err)
			h.recordSendFailure(err)
			continue
		}
		delivered++
	}

	if h.metrics != nil {
		h.metrics.MessagesRelayed.Add(float64(delivered))
	}

	h.logger.Debugf("Relayed %d-byte %s frame from %s to %d peers", len(frame.Payload), frame.Type, from.ID(), delivered)
	return delivered
}

func (h *Hub) recordSendFailure(err error) {
	if h.metrics == nil {
		return
	}

	reason := metrics.ReasonWrite
	switch {
	case errors.Is(err, ErrConnectionClosed):
		reason = metrics.ReasonClosed
	case errors.Is(err, ErrSendQueueFull):
		reason = metrics.ReasonQueueFull
	}
	h.metrics.SendFailures.WithLabelValues(reason).Inc()
}

// run sweeps closed connections that were not unregistered through their context.
func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

func (h *Hub) cleanupClosedConnections() int {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	removed := 0
	for id, conn := range h.connections {
		if conn.IsClosed() {
			delete(h.connections, id)
			removed++
			h.logger.Infof("Cleaned up closed connection %s", id)
		}
	}

	if h.metrics != nil && removed > 0 {
		h.metrics.ActiveConnections.Sub(float64(removed))
	}
	return removed
}
