package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
)

func newTestHub(t *testing.T) (*Hub, *metrics.RelayMetrics) {
	t.Helper()

	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	h := New(&mockLogger{}, m)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h, m
}

func TestHub_StartStop(t *testing.T) {
	hub := New(&mockLogger{}, nil)
	ctx := context.Background()

	require.NoError(t, hub.Start(ctx))
	assert.True(t, hub.IsRunning())
	assert.ErrorIs(t, hub.Start(ctx), ErrHubAlreadyRunning)

	require.NoError(t, hub.Stop(ctx))
	assert.False(t, hub.IsRunning())
	assert.NoError(t, hub.Stop(ctx))
}

func TestHub_RegisterRequiresRunning(t *testing.T) {
	hub := New(&mockLogger{}, nil)

	err := hub.RegisterConnection(newMockConnection("c1"))
	assert.ErrorIs(t, err, ErrHubNotRunning)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_ConnectionManagement(t *testing.T) {
	hub, m := newTestHub(t)

	conn := newMockConnection("test-conn-1")
	require.NoError(t, hub.RegisterConnection(conn))

	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))

	got, exists := hub.GetConnection("test-conn-1")
	require.True(t, exists)
	assert.Equal(t, "test-conn-1", got.ID())

	assert.True(t, hub.UnregisterConnection("test-conn-1"))
	assert.False(t, hub.UnregisterConnection("test-conn-1"))

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsTotal))
}

func TestHub_UnregistersWhenConnectionEnds(t *testing.T) {
	hub, _ := newTestHub(t)

	conn := newMockConnection("c1")
	require.NoError(t, hub.RegisterConnection(conn))

	conn.cancel()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RelaySkipsSender(t *testing.T) {
	hub, m := newTestHub(t)

	a, b, c := newMockConnection("a"), newMockConnection("b"), newMockConnection("c")
	for _, conn := range []*mockConnection{a, b, c} {
		require.NoError(t, hub.RegisterConnection(conn))
	}

	delivered := hub.Relay(a, TextFrame("hello"))

	assert.Equal(t, 2, delivered)
	assert.Empty(t, a.frames())
	assert.Equal(t, []Frame{TextFrame("hello")}, b.frames())
	assert.Equal(t, []Frame{TextFrame("hello")}, c.frames())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("text")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRelayed))
}

func TestHub_RelayWithoutPeers(t *testing.T) {
	hub, _ := newTestHub(t)

	solo := newMockConnection("solo")
	require.NoError(t, hub.RegisterConnection(solo))

	assert.Equal(t, 0, hub.Relay(solo, TextFrame("solo")))
	assert.Empty(t, solo.frames())
}

func TestHub_RelaySkipsClosedConnections(t *testing.T) {
	hub, _ := newTestHub(t)

	a, b, c := newMockConnection("a"), newMockConnection("b"), newMockConnection("c")
	for _, conn := range []*mockConnection{a, b, c} {
		require.NoError(t, hub.RegisterConnection(conn))
	}

	// b is closed but the watcher has not removed it yet
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	assert.Equal(t, 1, hub.Relay(a, TextFrame("x")))
	assert.Empty(t, b.frames())
	assert.Equal(t, []Frame{TextFrame("x")}, c.frames())
}

func TestHub_RelayIsolatesFailingPeer(t *testing.T) {
	hub, m := newTestHub(t)

	a, b, c, d := newMockConnection("a"), newMockConnection("b"), newMockConnection("c"), newMockConnection("d")
	b.sendErr = ErrSendQueueFull
	c.sendErr = errors.New("broken pipe")
	for _, conn := range []*mockConnection{a, b, c, d} {
		require.NoError(t, hub.RegisterConnection(conn))
	}

	frame := BinaryFrame([]byte{0x00, 0xff, 0x10})
	assert.Equal(t, 1, hub.Relay(a, frame))
	assert.Equal(t, []Frame{frame}, d.frames())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures.WithLabelValues(metrics.ReasonQueueFull)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures.WithLabelValues(metrics.ReasonWrite)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("binary")))
}

func TestHub_RelayDuringConcurrentChurn(t *testing.T) {
	hub, _ := newTestHub(t)

	sender, stable := newMockConnection("sender"), newMockConnection("stable")
	require.NoError(t, hub.RegisterConnection(sender))
	require.NoError(t, hub.RegisterConnection(stable))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			conn := newMockConnection(fmt.Sprintf("churn-%d", i))
			if err := hub.RegisterConnection(conn); err == nil {
				hub.UnregisterConnection(conn.ID())
			}
		}
	}()

	for i := 0; i < 200; i++ {
		hub.Relay(sender, TextFrame("tick"))
	}
	wg.Wait()

	assert.Len(t, stable.frames(), 200)
	assert.Empty(t, sender.frames())
}

func TestHub_StopClosesConnections(t *testing.T) {
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	hub := New(&mockLogger{}, m)
	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))

	a, b := newMockConnection("a"), newMockConnection("b")
	require.NoError(t, hub.RegisterConnection(a))
	require.NoError(t, hub.RegisterConnection(b))

	require.NoError(t, hub.Stop(ctx))

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
	assert.ErrorIs(t, hub.RegisterConnection(newMockConnection("late")), ErrHubNotRunning)
}

func TestHub_StopPastDeadlineClosesConnections(t *testing.T) {
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	hub := New(&mockLogger{}, m)
	require.NoError(t, hub.Start(context.Background()))

	a, b := newMockConnection("a"), newMockConnection("b")
	require.NoError(t, hub.RegisterConnection(a))
	require.NoError(t, hub.RegisterConnection(b))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	require.NoError(t, hub.Stop(ctx))

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestHub_RestartKeepsSingleSweeper(t *testing.T) {
	hub := New(&mockLogger{}, nil)
	hub.cleanupInterval = time.Millisecond
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, hub.Start(ctx))
		require.NoError(t, hub.Stop(ctx))
	}

	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	stale := newMockConnection("stale")
	require.NoError(t, hub.RegisterConnection(stale))
	stale.mu.Lock()
	stale.closed = true
	stale.mu.Unlock()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_CleanupClosedConnections(t *testing.T) {
	hub, m := newTestHub(t)

	open, stale := newMockConnection("open"), newMockConnection("stale")
	require.NoError(t, hub.RegisterConnection(open))
	require.NoError(t, hub.RegisterConnection(stale))

	stale.mu.Lock()
	stale.closed = true
	stale.mu.Unlock()

	assert.Equal(t, 1, hub.cleanupClosedConnections())
	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

// Mock implementations for testing

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}
func (m *mockLogger) Writer() io.WriteCloser                        { return nopWriteCloser{io.Discard} }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type mockConnection struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	sendErr error

	mu       sync.Mutex
	closed   bool
	received []Frame
}

func newMockConnection(id string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{id: id, ctx: ctx, cancel: cancel}
}

func (m *mockConnection) ID() string             { return m.id }
func (m *mockConnection) RemoteAddr() string     { return "192.0.2.1:50000" }
func (m *mockConnection) ConnectedAt() time.Time { return time.Time{} }
func (m *mockConnection) Send(frame Frame) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, frame)
	return nil
}
func (m *mockConnection) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	return nil
}
func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.received...)
}
