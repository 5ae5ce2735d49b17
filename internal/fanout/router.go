// Package fanout delivers events to every currently joined observer.
//
// Each delivery is a non-blocking enqueue on the observer's outbox, so one slow or
// broken observer never delays the rest. Nothing is buffered for absent observers.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/protocol"
)

var ErrNoOutbox = errors.New("no outbox for connection")

// ObserverSource yields the observer membership at call time.
type ObserverSource interface {
	ObserverIDs() []domain.ConnectionID
}

// Outbox accepts one encoded frame without blocking.
type Outbox interface {
	Send(frame []byte) error
}

// Directory resolves a connection id to its outbox.
type Directory interface {
	Lookup(id domain.ConnectionID) (Outbox, bool)
}

// Report summarizes one broadcast.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
}

type Router struct {
	observers ObserverSource
	directory Directory
	clock     clockwork.Clock
	metrics   *metrics.FanoutMetrics
}

// NewRouter creates a router. m may be nil.
func NewRouter(observers ObserverSource, directory Directory, clock clockwork.Clock, m *metrics.FanoutMetrics) *Router {
	return &Router{
		observers: observers,
		directory: directory,
		clock:     clock,
		metrics:   m,
	}
}

// BroadcastToObservers encodes evt once and attempts delivery to each observer in
// the current snapshot independently. Failures are logged and counted, never returned.
func (r *Router) BroadcastToObservers(ctx context.Context, evt domain.Event) Report {
	var report Report

	ids := r.observers.ObserverIDs()
	if len(ids) == 0 {
		return report
	}

	frame, err := protocol.EncodeEvent(evt)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode broadcast event", "event", evt.EventName(), "error", err)
		return report
	}

	start := r.clock.Now()
	for _, id := range ids {
		report.Attempted++
		if err := r.deliver(id, frame); err != nil {
			report.Failed++
			slog.WarnContext(ctx, "Delivery to observer failed", "event", evt.EventName(), "observer_id", id.String(), "error", err)
			continue
		}
		report.Delivered++
	}

	if r.metrics != nil {
		name := evt.EventName()
		r.metrics.Broadcasts.WithLabelValues(name).Inc()
		r.metrics.Deliveries.WithLabelValues(name).Add(float64(report.Delivered))
		r.metrics.DeliveryFailures.WithLabelValues(name).Add(float64(report.Failed))
		r.metrics.BroadcastDuration.Observe(r.clock.Since(start).Seconds())
	}

	return report
}

// SendTo delivers an already encoded frame to a single connection.
func (r *Router) SendTo(id domain.ConnectionID, frame []byte) error {
	return r.deliver(id, frame)
}

func (r *Router) deliver(id domain.ConnectionID, frame []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("outbox panic: %v", rec)
		}
	}()

	outbox, ok := r.directory.Lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNoOutbox)
	}
	if err := outbox.Send(frame); err != nil {
		return fmt.Errorf("send to %s: %w", id, err)
	}
	return nil
}
