// ABOUTME: Represents a single SSE client connection with a bounded event queue.
// ABOUTME: Events are drained to the client strictly in enqueue order.

package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State is the lifecycle phase of a connection.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one server-sent event. Data must already be valid JSON.
type Event struct {
	Kind string
	Data json.RawMessage
}

// Event kinds emitted by the server.
const (
	KindConnected = "connected"
	KindProgress  = "progress"
	KindResult    = "result"
	KindError     = "error"
	KindHeartbeat = "heartbeat"
)

// ErrQueueFull reports a consumer too slow to keep up with its queue.
var ErrQueueFull = errors.New("event queue full")

// ErrConnClosed reports an enqueue on a connection already shut down.
var ErrConnClosed = errors.New("connection closed")

// Conn is one SSE client connection. Producers enqueue events; a single
// Serve call drains them to the HTTP response in FIFO order.
type Conn struct {
	ID         string
	RemoteAddr string
	Principal  string
	OpenedAt   time.Time

	queue     chan Event
	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	mu            sync.Mutex
	state         State
	lastHeartbeat time.Time
}

func newConn(id, remoteAddr, principal string, queueSize int, now time.Time, logger *slog.Logger) *Conn {
	return &Conn{
		ID:         id,
		RemoteAddr: remoteAddr,
		Principal:  principal,
		OpenedAt:   now,
		queue:      make(chan Event, queueSize),
		closed:     make(chan struct{}),
		state:      StateOpening,
		logger:     logger,
	}
}

// State returns the current lifecycle phase.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// LastHeartbeat returns when the most recent heartbeat was queued for
// this connection, or the zero time if none has been.
func (c *Conn) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Enqueue appends an event for delivery. It fails rather than blocks
// when the queue is full so that one slow client cannot stall a tool
// invocation.
func (c *Conn) Enqueue(ev Event) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- ev:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

// EnqueueWait appends an event, waiting for queue space. Tool events
// use this path so a slow consumer delays the producing call instead
// of losing frames; the wait ends when the event is queued, the
// connection closes, or ctx is done.
func (c *Conn) EnqueueWait(ctx context.Context, ev Event) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- ev:
		return nil
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// heartbeat queues a heartbeat event, dropping it when the queue is
// full. A missed heartbeat on a backed-up queue carries no information
// the pending events don't.
func (c *Conn) heartbeat(now time.Time) {
	payload, _ := json.Marshal(map[string]string{"time": now.UTC().Format(time.RFC3339)})
	if err := c.Enqueue(Event{Kind: KindHeartbeat, Data: payload}); err != nil {
		return
	}
	c.mu.Lock()
	c.lastHeartbeat = now
	c.mu.Unlock()
}

// idleSince returns the last time this connection accepted a
// heartbeat, or its open time if it never has.
func (c *Conn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastHeartbeat.IsZero() {
		return c.OpenedAt
	}
	return c.lastHeartbeat
}

// Close transitions the connection to Closed and wakes Serve.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)
	})
}

// Serve writes queued events to w as SSE frames until ctx is canceled,
// the connection is closed, or a write fails. Pending events are
// discarded on any failure.
func (c *Conn) Serve(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c.setState(StateActive)
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			// Flush whatever was queued before the close.
			for {
				select {
				case ev := <-c.queue:
					if err := writeEvent(w, ev); err != nil {
						return err
					}
					flusher.Flush()
				default:
					return nil
				}
			}
		case ev := <-c.queue:
			if err := writeEvent(w, ev); err != nil {
				c.setState(StateClosing)
				c.logger.Debug("dropping connection after write failure", "conn_id", c.ID, "error", err)
				return err
			}
			flusher.Flush()
		}
	}
}

// writeEvent emits one SSE frame: an event line, a data line, and a
// blank separator.
func writeEvent(w io.Writer, ev Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, ev.Data)
	return err
}
