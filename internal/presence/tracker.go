package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/fanout"
	"github.com/pscheid92/wardwatch/internal/protocol"
	"github.com/pscheid92/wardwatch/internal/registry"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 1024
	shutdownReason  = "server shutting down"
)

// Conn is the tracker's view of a connection envelope.
type Conn interface {
	ID() domain.ConnectionID
	Send(frame []byte) error
	CloseGraceful(reason string)
}

type trackerCmd interface{ isTrackerCmd() }

type baseTrackerCmd struct{}

func (baseTrackerCmd) isTrackerCmd() {}

type attachCmd struct {
	baseTrackerCmd
	conn  Conn
	reply chan struct{}
}

type messageCmd struct {
	baseTrackerCmd
	ctx context.Context
	id  domain.ConnectionID
	msg protocol.Message
}

type violationCmd struct {
	baseTrackerCmd
	ctx context.Context
	id  domain.ConnectionID
	err error
}

type closeCmd struct {
	baseTrackerCmd
	id domain.ConnectionID
}

type fileStoredCmd struct {
	baseTrackerCmd
	ctx   context.Context
	event domain.FileEvent
	reply chan fanout.Report
}

type producersCmd struct {
	baseTrackerCmd
	reply chan []domain.ProducerRecord
}

type stopCmd struct {
	baseTrackerCmd
}

// conns is the actor-owned outbox directory handed to the router.
type conns map[domain.ConnectionID]Conn

func (c conns) Lookup(id domain.ConnectionID) (fanout.Outbox, bool) {
	conn, ok := c[id]
	if !ok {
		return nil, false
	}
	return conn, true
}

type Tracker struct {
	cmdCh    chan trackerCmd
	clock    clockwork.Clock
	registry *registry.Registry
	router   *fanout.Router
	conns    conns
	metrics  *metrics.PresenceMetrics

	stopping     chan struct{}
	stoppingOnce sync.Once
	done         chan struct{}
	stopTimeout  time.Duration
}

// NewTracker starts the actor goroutine. Either metric group may be nil.
func NewTracker(reg *registry.Registry, clock clockwork.Clock, pm *metrics.PresenceMetrics, fm *metrics.FanoutMetrics) *Tracker {
	t := &Tracker{
		cmdCh:       make(chan trackerCmd, commandCapacity),
		clock:       clock,
		registry:    reg,
		conns:       make(conns),
		metrics:     pm,
		stopping:    make(chan struct{}),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	t.router = fanout.NewRouter(reg, t.conns, clock, fm)
	go t.run()
	return t
}

// Attach makes a freshly accepted connection known as unclassified. It returns
// once the connection can receive frames.
func (t *Tracker) Attach(conn Conn) error {
	reply := make(chan struct{}, 1)
	if !t.submit(attachCmd{conn: conn, reply: reply}) {
		return domain.ErrTrackerStopped
	}

	timer := t.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-reply:
		return nil
	case <-timer.Chan():
		return fmt.Errorf("attach command timed out after %v", commandTimeout)
	}
}

// OnMessage implements envelope.Handler.
func (t *Tracker) OnMessage(ctx context.Context, id domain.ConnectionID, msg protocol.Message) {
	t.submit(messageCmd{ctx: ctx, id: id, msg: msg})
}

// OnViolation implements envelope.Handler.
func (t *Tracker) OnViolation(ctx context.Context, id domain.ConnectionID, err error) {
	t.submit(violationCmd{ctx: ctx, id: id, err: err})
}

// OnClose implements envelope.Handler.
func (t *Tracker) OnClose(id domain.ConnectionID) {
	t.submit(closeCmd{id: id})
}

// OnFileStored announces a file persisted by the upload endpoint to every
// observer. The returned event is the one observers received; it is returned
// even when the broadcast fails.
func (t *Tracker) OnFileStored(ctx context.Context, producerID, fileName, savedName string, size int64, category, description, storagePath string) (domain.FileEvent, fanout.Report, error) {
	evt := domain.FileEvent{
		ProducerID:    producerID,
		FileName:      fileName,
		SavedFileName: savedName,
		FileSize:      size,
		FileType:      category,
		Description:   description,
		FilePath:      storagePath,
		UploadedAt:    t.clock.Now().UTC(),
	}

	reply := make(chan fanout.Report, 1)
	if !t.submit(fileStoredCmd{ctx: ctx, event: evt, reply: reply}) {
		return evt, fanout.Report{}, domain.ErrTrackerStopped
	}

	timer := t.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case report := <-reply:
		return evt, report, nil
	case <-ctx.Done():
		return evt, fanout.Report{}, ctx.Err()
	case <-timer.Chan():
		return evt, fanout.Report{}, fmt.Errorf("file broadcast timed out after %v", commandTimeout)
	}
}

// Producers returns the connected producers in join order. The result is
// ordered with respect to every command submitted before the call.
func (t *Tracker) Producers(ctx context.Context) ([]domain.ProducerRecord, error) {
	reply := make(chan []domain.ProducerRecord, 1)
	if !t.submit(producersCmd{reply: reply}) {
		return nil, domain.ErrTrackerStopped
	}

	timer := t.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case records := <-reply:
		return records, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.Chan():
		return nil, fmt.Errorf("producers query timed out after %v", commandTimeout)
	}
}

// Counts reads the registry directly; it never waits on the actor.
func (t *Tracker) Counts() domain.Counts {
	return t.registry.Counts()
}

// Stop closes every connection with a normal-closure frame and waits for the
// actor to exit, up to the stop timeout.
func (t *Tracker) Stop() {
	if !t.submit(stopCmd{}) {
		return
	}

	timeout := t.clock.NewTimer(t.stopTimeout)
	defer timeout.Stop()

	select {
	case <-t.done:
		slog.Info("Presence tracker stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Presence tracker stop timeout exceeded", "timeout", t.stopTimeout, "connections", t.registry.Counts())
	}
}

// submit enqueues cmd unless the tracker is shutting down.
func (t *Tracker) submit(cmd trackerCmd) bool {
	select {
	case <-t.stopping:
		return false
	default:
	}

	select {
	case t.cmdCh <- cmd:
		return true
	case <-t.stopping:
		return false
	}
}

func (t *Tracker) markStopping() {
	t.stoppingOnce.Do(func() { close(t.stopping) })
}

func (t *Tracker) run() {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Presence tracker panic recovered", "panic", r)
			if t.metrics != nil {
				t.metrics.ActorPanics.Inc()
			}
			t.markStopping()
			t.closeAll("internal error")
		}
	}()

	depthTicker := t.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			if t.metrics != nil {
				t.metrics.CommandQueueDepth.Set(float64(len(t.cmdCh)))
			}
		case cmd := <-t.cmdCh:
			switch c := cmd.(type) {
			case attachCmd:
				t.handleAttach(c)
			case messageCmd:
				t.handleMessage(c)
			case violationCmd:
				t.reject(c.ctx, c.id, c.err)
			case closeCmd:
				t.handleClose(c)
			case fileStoredCmd:
				c.reply <- t.router.BroadcastToObservers(c.ctx, c.event)
			case producersCmd:
				c.reply <- t.registry.SnapshotProducers()
			case stopCmd:
				t.handleStop()
				return
			default:
				slog.Warn("Presence tracker received unknown command", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (t *Tracker) handleAttach(c attachCmd) {
	id := c.conn.ID()
	t.registry.Track(id)
	t.conns[id] = c.conn
	slog.Debug("Connection attached", "conn_id", id.String())
	c.reply <- struct{}{}
}

func (t *Tracker) handleMessage(c messageCmd) {
	if _, ok := t.conns[c.id]; !ok {
		return
	}

	switch m := c.msg.(type) {
	case protocol.ObserverJoin:
		t.handleObserverJoin(c.ctx, c.id)
	case protocol.ProducerJoin:
		t.handleProducerJoin(c.ctx, c.id, m)
	case protocol.Report:
		t.handleReport(c.ctx, c.id, m)
	case protocol.FileNotice:
		t.handleFileNotice(c.ctx, c.id, m)
	default:
		t.reject(c.ctx, c.id, fmt.Errorf("%w: unsupported message %T", domain.ErrProtocolViolation, c.msg))
	}
}

func (t *Tracker) handleObserverJoin(ctx context.Context, id domain.ConnectionID) {
	if _, err := t.registry.Classify(id, domain.RoleObserver, "", "", t.clock.Now()); err != nil {
		t.reject(ctx, id, err)
		return
	}
	t.updateGauges()

	producers := t.registry.SnapshotProducers()
	frame, err := protocol.EncodeSnapshot(producers)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode producer snapshot", "error", err)
		return
	}
	if err := t.router.SendTo(id, frame); err != nil {
		slog.WarnContext(ctx, "Failed to deliver producer snapshot", "error", err)
	}
	slog.InfoContext(ctx, "Observer joined", "producers", len(producers))
}

func (t *Tracker) handleProducerJoin(ctx context.Context, id domain.ConnectionID, m protocol.ProducerJoin) {
	rec, err := t.registry.Classify(id, domain.RoleProducer, m.ProducerID, m.DisplayName, t.clock.Now())
	if err != nil {
		t.reject(ctx, id, err)
		return
	}
	t.updateGauges()

	slog.InfoContext(ctx, "Producer joined", "producer_id", rec.ProducerID, "name", rec.DisplayName)
	t.router.BroadcastToObservers(ctx, domain.PresenceEvent{Kind: domain.PresenceJoined, Record: *rec})
}

// joinedProducer returns the record for id, or a violation when the connection
// is not a producer or claims a different producer id.
func (t *Tracker) joinedProducer(id domain.ConnectionID, claimed string) (domain.ProducerRecord, error) {
	rec, ok := t.registry.Producer(id)
	if !ok {
		return domain.ProducerRecord{}, fmt.Errorf("%w: %w", domain.ErrProtocolViolation, domain.ErrNotProducer)
	}
	if claimed != "" && claimed != rec.ProducerID {
		return domain.ProducerRecord{}, fmt.Errorf("%w: %w: got %q, joined as %q", domain.ErrProtocolViolation, domain.ErrProducerMismatch, claimed, rec.ProducerID)
	}
	return rec, nil
}

func (t *Tracker) handleReport(ctx context.Context, id domain.ConnectionID, m protocol.Report) {
	rec, err := t.joinedProducer(id, m.ProducerID)
	if err != nil {
		t.reject(ctx, id, err)
		return
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = t.clock.Now().UTC()
	}
	evt := domain.MeasurementEvent{
		ProducerID: rec.ProducerID,
		Reading:    m.Reading,
		Timestamp:  ts,
		Alerts:     m.Reading.Alerts(),
	}

	for _, alert := range evt.Alerts {
		slog.WarnContext(ctx, "Vital sign alert",
			"alert", alert,
			"producer_id", rec.ProducerID,
			"name", rec.DisplayName,
			"heart_rate", evt.HeartRate,
			"oxygen_level", evt.OxygenLevel,
		)
		if t.metrics != nil {
			t.metrics.VitalAlerts.WithLabelValues(alert).Inc()
		}
	}

	t.router.BroadcastToObservers(ctx, evt)
}

func (t *Tracker) handleFileNotice(ctx context.Context, id domain.ConnectionID, m protocol.FileNotice) {
	rec, err := t.joinedProducer(id, m.Event.ProducerID)
	if err != nil {
		t.reject(ctx, id, err)
		return
	}

	evt := m.Event
	evt.ProducerID = rec.ProducerID
	if evt.UploadedAt.IsZero() {
		evt.UploadedAt = t.clock.Now().UTC()
	}

	slog.InfoContext(ctx, "File shared", "producer_id", rec.ProducerID, "file_name", evt.FileName)
	t.router.BroadcastToObservers(ctx, evt)
}

func (t *Tracker) handleClose(c closeCmd) {
	if _, ok := t.conns[c.id]; !ok {
		return
	}
	delete(t.conns, c.id)

	rec, wasProducer := t.registry.Remove(c.id)
	t.updateGauges()

	if !wasProducer {
		slog.Debug("Connection detached", "conn_id", c.id.String())
		return
	}

	slog.Info("Producer left", "conn_id", c.id.String(), "producer_id", rec.ProducerID)
	t.router.BroadcastToObservers(context.Background(), domain.PresenceEvent{Kind: domain.PresenceLeft, Record: *rec})
}

// reject logs a protocol violation and tells the offending connection about it.
// The connection stays open.
func (t *Tracker) reject(ctx context.Context, id domain.ConnectionID, err error) {
	code := protocol.ErrorCode(err)
	if t.metrics != nil {
		t.metrics.ProtocolViolations.WithLabelValues(code).Inc()
	}
	slog.WarnContext(ctx, "Protocol violation", "code", code, "error", err)

	frame, encErr := protocol.EncodeError(code, err.Error())
	if encErr != nil {
		return
	}
	if sendErr := t.router.SendTo(id, frame); sendErr != nil {
		slog.DebugContext(ctx, "Failed to deliver error notice", "error", sendErr)
	}
}

func (t *Tracker) updateGauges() {
	if t.metrics == nil {
		return
	}
	counts := t.registry.Counts()
	t.metrics.Observers.Set(float64(counts.Observers))
	t.metrics.Producers.Set(float64(counts.Producers))
}

func (t *Tracker) handleStop() {
	t.markStopping()
	slog.Info("Presence tracker shutting down", "connections", len(t.conns))
	t.closeAll(shutdownReason)
}

// closeAll closes every attached connection. Close notifications arriving
// while stopping are dropped by submit, so entries are cleared here.
func (t *Tracker) closeAll(reason string) {
	for id, conn := range t.conns {
		delete(t.conns, id)
		t.registry.Remove(id)
		conn.CloseGraceful(reason)
	}
	t.updateGauges()
}
