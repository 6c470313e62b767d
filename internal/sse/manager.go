// ABOUTME: Tracks every live SSE connection, enforces the connection cap,
// ABOUTME: and drives the shared heartbeat ticker.

package sse

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrConnectionLimit indicates the connection cap has been reached.
// New connections are refused; existing ones are never evicted to make
// room.
var ErrConnectionLimit = errors.New("connection limit reached")

// ErrConnNotFound indicates the specified connection was not found.
var ErrConnNotFound = errors.New("connection not found")

// Manager coordinates all live SSE connections.
type Manager struct {
	conns map[string]*Conn
	mu    sync.RWMutex

	maxConns   int
	queueSize  int
	interval   time.Duration
	staleAfter time.Duration

	clock     clockwork.Clock
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a Manager and starts its heartbeat loop.
func NewManager(maxConns, queueSize int, heartbeatInterval time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		conns:      make(map[string]*Conn),
		maxConns:   maxConns,
		queueSize:  queueSize,
		interval:   heartbeatInterval,
		staleAfter: 4 * heartbeatInterval,
		clock:      clockwork.NewRealClock(),
		logger:     logger.With("component", "sse"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.heartbeatLoop()
	return m
}

// Open registers a new connection, refusing when the cap is reached.
func (m *Manager) Open(remoteAddr, principal string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conns) >= m.maxConns {
		m.logger.Warn("refusing connection, limit reached", "limit", m.maxConns, "addr", remoteAddr)
		return nil, ErrConnectionLimit
	}

	conn := newConn(uuid.NewString(), remoteAddr, principal, m.queueSize, m.clock.Now(), m.logger)
	m.conns[conn.ID] = conn
	m.logger.Info("connection opened",
		"conn_id", conn.ID,
		"addr", remoteAddr,
		"total", len(m.conns),
	)
	return conn, nil
}

// Get returns the connection with the given ID.
func (m *Manager) Get(id string) (*Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	if !ok {
		return nil, ErrConnNotFound
	}
	return conn, nil
}

// Remove closes and forgets a connection. Removing an unknown ID is a
// no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	total := len(m.conns)
	m.mu.Unlock()

	if !ok {
		return
	}
	conn.Close()
	m.logger.Info("connection removed", "conn_id", id, "total", total)
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ConnInfo is a point-in-time description of one connection.
type ConnInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	Principal     string    `json:"principal,omitempty"`
	State         string    `json:"state"`
	OpenedAt      time.Time `json:"opened_at"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	QueueLen      int       `json:"queue_len"`
}

// Snapshot reports every live connection for the diagnostics endpoint.
func (m *Manager) Snapshot() []ConnInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ConnInfo, 0, len(m.conns))
	for _, conn := range m.conns {
		infos = append(infos, ConnInfo{
			ID:            conn.ID,
			RemoteAddr:    conn.RemoteAddr,
			Principal:     conn.Principal,
			State:         conn.State().String(),
			OpenedAt:      conn.OpenedAt,
			LastHeartbeat: conn.LastHeartbeat(),
			QueueLen:      len(conn.queue),
		})
	}
	return infos
}

// heartbeatLoop queues a heartbeat on every live connection at the
// configured interval until Close.
func (m *Manager) heartbeatLoop() {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.Chan():
			now := m.clock.Now()
			m.mu.RLock()
			conns := make([]*Conn, 0, len(m.conns))
			for _, c := range m.conns {
				conns = append(conns, c)
			}
			m.mu.RUnlock()
			for _, c := range conns {
				c.heartbeat(now)
				// A queue too full to take heartbeats for several
				// intervals marks a stuck client.
				if m.staleAfter > 0 && now.Sub(c.idleSince()) > m.staleAfter {
					m.logger.Warn("closing stale connection", "conn_id", c.ID, "addr", c.RemoteAddr)
					m.Remove(c.ID)
				}
			}
		}
	}
}

// Close stops the heartbeat loop and closes every connection.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		for id, conn := range m.conns {
			conn.Close()
			delete(m.conns, id)
		}
		m.mu.Unlock()
	})
}
