// ABOUTME: Fixed-window rate limiter keyed by client identity.
// ABOUTME: Per-key locking with a background sweep of idle entries.

package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Window is the rate-limit accounting window.
const Window = time.Minute

// idleFactor controls when the sweeper drops an entry: an entry
// untouched for idleFactor windows is evicted.
const idleFactor = 5

// entry tracks one client's window. Each entry has its own mutex so
// unrelated clients never serialize on a shared lock.
type entry struct {
	mu           sync.Mutex
	windowStart  time.Time
	count        int
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter admits or blocks requests per client key using a fixed
// 60-second window. Once a client exceeds the limit it is blocked for
// the remainder of the window without further counter growth.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry

	max     int
	enabled bool
	clock   clockwork.Clock
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock substitutes the wall clock, used by tests to step time.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New creates a Limiter admitting up to maxPerWindow requests per key
// per window. A disabled limiter admits everything and allocates no
// per-client state.
func New(maxPerWindow int, enabled bool, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		max:     maxPerWindow,
		enabled: enabled,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.enabled {
		go l.sweep()
	}
	return l
}

// Admit reports whether a request for the given client key may proceed.
// When blocked, retryAfter is the time remaining until the block lifts,
// always positive.
func (l *Limiter) Admit(key string) (admitted bool, retryAfter time.Duration) {
	if !l.enabled {
		return true, 0
	}

	e := l.entry(key)
	now := l.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen = now

	// A blocked client is refused without touching the counter, so an
	// abusive client cannot grow state without bound.
	if now.Before(e.blockedUntil) {
		return false, positive(e.blockedUntil.Sub(now))
	}

	// A request arriving exactly at windowStart+Window starts a fresh
	// window; the boundary belongs to the new window, not the old one.
	if e.windowStart.IsZero() || now.Sub(e.windowStart) >= Window {
		e.windowStart = now
		e.count = 0
		e.blockedUntil = time.Time{}
	}

	if e.count >= l.max {
		e.blockedUntil = e.windowStart.Add(Window)
		l.logger.Warn("rate limit exceeded", "client", key, "limit", l.max)
		return false, positive(e.blockedUntil.Sub(now))
	}

	e.count++
	return true, 0
}

// entry returns the tracking entry for key, creating it lazily.
func (l *Limiter) entry(key string) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	e = &entry{}
	l.entries[key] = e
	return e
}

// sweep runs in a background goroutine, periodically evicting entries
// that have been idle long enough to be uninteresting.
func (l *Limiter) sweep() {
	ticker := l.clock.NewTicker(Window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			l.runSweep()
		case <-l.done:
			return
		}
	}
}

// runSweep removes entries idle for more than idleFactor windows.
func (l *Limiter) runSweep() {
	cutoff := l.clock.Now().Add(-idleFactor * Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close stops the background sweeper. Safe to call multiple times.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// positive clamps d to at least one second so a blocked response never
// reports a zero or negative retry hint.
func positive(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
