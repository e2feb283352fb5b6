package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

const storageScopeName = "github.com/agoralabs/agora/storage"

// InstrumentedBackend wraps a storage.Backend with OTel tracing and
// metrics. Every table operation gets a span and is counted in the
// agora.storage.* metrics. Use WrapBackend to create one; it returns the
// original backend unchanged when telemetry is disabled.
type InstrumentedBackend struct {
	inner storage.Backend
	ins   *instruments

	participants *instrumentedParticipants
	actions      *instrumentedActions
	logs         *instrumentedLogs
}

// instruments is the shared span/metric plumbing for all three tables.
type instruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapBackend returns be decorated with OTel instrumentation.
// When telemetry is disabled, be is returned as-is with zero overhead.
func WrapBackend(be storage.Backend) storage.Backend {
	if !Enabled() {
		return be
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("agora.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("agora.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("agora.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	ins := &instruments{
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
	b := &InstrumentedBackend{inner: be, ins: ins}
	b.participants = &instrumentedParticipants{inner: be.Participants(), ins: ins}
	b.actions = &instrumentedActions{inner: be.Actions(), ins: ins}
	b.logs = &instrumentedLogs{inner: be.Logs(), ins: ins}
	return b
}

// op starts a span and bumps the operation counter.
func (n *instruments) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := n.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	n.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span and records duration and optional error.
func (n *instruments) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	n.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (b *InstrumentedBackend) Participants() storage.ParticipantStore { return b.participants }
func (b *InstrumentedBackend) Actions() storage.ActionStore           { return b.actions }
func (b *InstrumentedBackend) Logs() storage.LogStore                 { return b.logs }

func (b *InstrumentedBackend) Ping(ctx context.Context) error {
	ctx, span, t := b.ins.op(ctx, "Ping")
	err := b.inner.Ping(ctx)
	b.ins.done(ctx, span, t, err)
	return err
}

func (b *InstrumentedBackend) Close() error {
	return b.inner.Close()
}

type instrumentedParticipants struct {
	inner storage.ParticipantStore
	ins   *instruments
}

func (s *instrumentedParticipants) Create(ctx context.Context, p *types.Participant) (*types.Participant, error) {
	attrs := []attribute.KeyValue{attribute.String("agora.participant.id", p.ID)}
	ctx, span, t := s.ins.op(ctx, "participants.Create", attrs...)
	v, err := s.inner.Create(ctx, p)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedParticipants) GetByID(ctx context.Context, id string) (*types.Participant, error) {
	attrs := []attribute.KeyValue{attribute.String("agora.participant.id", id)}
	ctx, span, t := s.ins.op(ctx, "participants.GetByID", attrs...)
	v, err := s.inner.GetByID(ctx, id)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedParticipants) GetByToken(ctx context.Context, token string) (*types.Participant, error) {
	// The token itself never goes on a span.
	ctx, span, t := s.ins.op(ctx, "participants.GetByToken")
	v, err := s.inner.GetByToken(ctx, token)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedParticipants) GetAll(ctx context.Context, rng query.Range) ([]*types.Participant, error) {
	ctx, span, t := s.ins.op(ctx, "participants.GetAll")
	v, err := s.inner.GetAll(ctx, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedParticipants) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Participant, error) {
	ctx, span, t := s.ins.op(ctx, "participants.Find")
	v, err := s.inner.Find(ctx, pred, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedParticipants) Update(ctx context.Context, id string, updates map[string]any) (*types.Participant, error) {
	attrs := []attribute.KeyValue{
		attribute.String("agora.participant.id", id),
		attribute.Int("agora.update.keys", len(updates)),
	}
	ctx, span, t := s.ins.op(ctx, "participants.Update", attrs...)
	v, err := s.inner.Update(ctx, id, updates)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedParticipants) Delete(ctx context.Context, id string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("agora.participant.id", id)}
	ctx, span, t := s.ins.op(ctx, "participants.Delete", attrs...)
	v, err := s.inner.Delete(ctx, id)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedParticipants) Count(ctx context.Context) (int, error) {
	ctx, span, t := s.ins.op(ctx, "participants.Count")
	v, err := s.inner.Count(ctx)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedParticipants) FindIDsBySubstring(ctx context.Context, substr string) ([]string, error) {
	ctx, span, t := s.ins.op(ctx, "participants.FindIDsBySubstring")
	v, err := s.inner.FindIDsBySubstring(ctx, substr)
	s.ins.done(ctx, span, t, err)
	return v, err
}

type instrumentedActions struct {
	inner storage.ActionStore
	ins   *instruments
}

func (s *instrumentedActions) Create(ctx context.Context, a *types.Action) (*types.Action, error) {
	attrs := []attribute.KeyValue{attribute.String("agora.agent.id", a.AgentID)}
	if a.Request != nil {
		attrs = append(attrs, attribute.String("agora.action.name", a.Request.Name))
	}
	ctx, span, t := s.ins.op(ctx, "actions.Create", attrs...)
	v, err := s.inner.Create(ctx, a)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedActions) GetByID(ctx context.Context, id string) (*types.Action, error) {
	ctx, span, t := s.ins.op(ctx, "actions.GetByID")
	v, err := s.inner.GetByID(ctx, id)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedActions) GetAll(ctx context.Context, rng query.Range) ([]*types.Action, error) {
	ctx, span, t := s.ins.op(ctx, "actions.GetAll")
	v, err := s.inner.GetAll(ctx, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedActions) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Action, error) {
	ctx, span, t := s.ins.op(ctx, "actions.Find")
	v, err := s.inner.Find(ctx, pred, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedActions) Count(ctx context.Context) (int, error) {
	ctx, span, t := s.ins.op(ctx, "actions.Count")
	v, err := s.inner.Count(ctx)
	s.ins.done(ctx, span, t, err)
	return v, err
}

type instrumentedLogs struct {
	inner storage.LogStore
	ins   *instruments
}

func (s *instrumentedLogs) Create(ctx context.Context, e *types.LogEntry) (*types.LogEntry, error) {
	attrs := []attribute.KeyValue{attribute.String("agora.log.level", string(e.Level))}
	ctx, span, t := s.ins.op(ctx, "logs.Create", attrs...)
	v, err := s.inner.Create(ctx, e)
	s.ins.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *instrumentedLogs) GetByID(ctx context.Context, id string) (*types.LogEntry, error) {
	ctx, span, t := s.ins.op(ctx, "logs.GetByID")
	v, err := s.inner.GetByID(ctx, id)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedLogs) GetAll(ctx context.Context, rng query.Range) ([]*types.LogEntry, error) {
	ctx, span, t := s.ins.op(ctx, "logs.GetAll")
	v, err := s.inner.GetAll(ctx, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedLogs) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.LogEntry, error) {
	ctx, span, t := s.ins.op(ctx, "logs.Find")
	v, err := s.inner.Find(ctx, pred, rng)
	s.ins.done(ctx, span, t, err)
	return v, err
}

func (s *instrumentedLogs) Count(ctx context.Context) (int, error) {
	ctx, span, t := s.ins.op(ctx, "logs.Count")
	v, err := s.inner.Count(ctx)
	s.ins.done(ctx, span, t, err)
	return v, err
}
