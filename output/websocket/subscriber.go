package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Sink is one destination of a broadcast. TrySend must never block.
type Sink interface {
	// TrySend queues payload for delivery and reports whether it was accepted.
	TrySend(payload []byte) bool
	// Open reports whether the sink still accepts frames.
	Open() bool
}

// subscriber is a WebSocket connection with its own outbox. Its writer
// goroutine is the only writer on conn, so frames leave in the order they
// were queued.
type subscriber struct {
	id          string
	conn        *websocket.Conn
	remote      string
	connectedAt time.Time

	outbox    chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	sent    atomic.Int64
	dropped atomic.Int64
}

func newSubscriber(conn *websocket.Conn, outboxSize int) *subscriber {
	return &subscriber{
		id:          uuid.NewString(),
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		outbox:      make(chan []byte, outboxSize),
		done:        make(chan struct{}),
	}
}

// TrySend implements Sink
func (s *subscriber) TrySend(payload []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.outbox <- payload:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Open implements Sink
func (s *subscriber) Open() bool {
	return !s.closed.Load()
}

// close marks the subscriber closed and releases the connection. It reports
// whether this call did the closing.
func (s *subscriber) close() bool {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
	return first
}
