package envelope

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/platform/correlation"
	"github.com/pscheid92/wardwatch/internal/protocol"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	maxMessageSize    = 64 * 1024
	DefaultBufferSize = 64
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

// Handler receives the inbound side of an envelope. Calls for one envelope are
// sequential; OnClose is the last call and happens exactly once.
type Handler interface {
	OnMessage(ctx context.Context, id domain.ConnectionID, msg protocol.Message)
	OnViolation(ctx context.Context, id domain.ConnectionID, err error)
	OnClose(id domain.ConnectionID)
}

type Options struct {
	BufferSize int
	Clock      clockwork.Clock
	Metrics    *metrics.WebSocketMetrics
}

type Envelope struct {
	id         domain.ConnectionID
	connection *websocket.Conn
	handler    Handler
	clock      clockwork.Clock
	metrics    *metrics.WebSocketMetrics
	opened     time.Time

	sendChannel chan []byte
	doneChannel chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// New wraps conn, assigns a fresh connection id and starts the writer goroutine.
// The read side starts with Run.
func New(conn *websocket.Conn, handler Handler, opts Options) *Envelope {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	e := &Envelope{
		id:          domain.ConnectionID(uuid.NewString()),
		connection:  conn,
		handler:     handler,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		opened:      opts.Clock.Now(),
		sendChannel: make(chan []byte, opts.BufferSize),
		doneChannel: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	e.configurePongHandler()

	if e.metrics != nil {
		e.metrics.ActiveConnections.Inc()
	}

	e.wg.Add(1)
	go e.writeLoop()
	return e
}

func (e *Envelope) ID() domain.ConnectionID { return e.id }

// Done is closed once the envelope has shut down.
func (e *Envelope) Done() <-chan struct{} { return e.doneChannel }

// Send enqueues one text frame without blocking.
func (e *Envelope) Send(frame []byte) error {
	select {
	case <-e.doneChannel:
		return ErrClosed
	default:
	}

	select {
	case e.sendChannel <- frame:
		return nil
	default:
		if e.metrics != nil {
			e.metrics.SendBufferDrops.Inc()
		}
		return ErrSendBufferFull
	}
}

// Run reads frames until the connection fails or ctx ends, then closes the
// envelope. Decoded messages and violations go to the handler in arrival order.
func (e *Envelope) Run(ctx context.Context) {
	ctx = correlation.WithConnID(ctx, e.id.String())
	stop := context.AfterFunc(ctx, func() { e.CloseGraceful("server shutting down") })
	defer stop()
	defer e.Close()

	for {
		_, raw, err := e.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "Websocket read failed", "error", err)
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			e.handler.OnViolation(ctx, e.id, err)
			continue
		}
		e.handler.OnMessage(ctx, e.id, msg)
	}
}

// Close tears the connection down without a close frame.
func (e *Envelope) Close() {
	e.closeOnce.Do(func() {
		close(e.doneChannel)
		_ = e.connection.Close()
		e.wg.Wait()
		e.finish()
	})
	e.wg.Wait()
}

// CloseGraceful sends a normal-closure frame carrying reason, then closes.
func (e *Envelope) CloseGraceful(reason string) {
	e.closeOnce.Do(func() {
		close(e.doneChannel)

		// writer must be gone before the close frame goes out
		e.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = e.connection.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
		_ = e.connection.Close()
		e.finish()
	})
}

func (e *Envelope) finish() {
	if e.metrics != nil {
		e.metrics.ActiveConnections.Dec()
		e.metrics.ConnectionDuration.Observe(e.clock.Since(e.opened).Seconds())
	}
	if e.handler != nil {
		e.handler.OnClose(e.id)
	}
}

func (e *Envelope) writeLoop() {
	ticker := e.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer e.wg.Done()

	for {
		select {
		case frame := <-e.sendChannel:
			e.updateWriteDeadline()
			if err := e.connection.WriteMessage(websocket.TextMessage, frame); err != nil {
				// unblocks the reader, whose exit runs Close
				_ = e.connection.Close()
				return
			}
			if e.metrics != nil {
				e.metrics.FramesSent.Inc()
			}
		case <-ticker.Chan():
			e.updateWriteDeadline()
			if err := e.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if e.metrics != nil {
					e.metrics.PingFailures.Inc()
				}
				_ = e.connection.Close()
				return
			}
		case <-e.doneChannel:
			return
		}
	}
}

// Socket deadlines are wall-clock; the injected clock only drives the ping ticker.
func (e *Envelope) configurePongHandler() {
	e.updateReadDeadline()
	e.connection.SetPongHandler(func(string) error {
		e.updateReadDeadline()
		return nil
	})
}

func (e *Envelope) updateWriteDeadline() {
	_ = e.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (e *Envelope) updateReadDeadline() {
	_ = e.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}
