// Package ingest implements the pipeline's submit path: parse, validate,
// dedup, sample, classify, try-enqueue, recording every outcome into
// statistics.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vtelemetry/ingestcore/internal/dedupcache"
	"github.com/vtelemetry/ingestcore/internal/events"
	"github.com/vtelemetry/ingestcore/internal/ingesterr"
	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/otel"
	"github.com/vtelemetry/ingestcore/internal/sampling"
	"github.com/vtelemetry/ingestcore/internal/stats"
)

// channelSet is the live set of priority send channels. The coordinator
// holds it behind an atomic pointer rather than as plain fields so that a
// lifecycle restart can publish a brand new set atomically: no submit call,
// in flight or newly arriving, can ever observe channels torn down by a
// previous stop. This is the fix for the source's restart defect, where the
// coordinator kept sending on channels whose receivers had already been
// discarded.
type channelSet struct {
	critical   chan message.Message
	normal     chan message.Message
	background chan message.Message
}

func (cs *channelSet) forPriority(p message.Priority) chan message.Message {
	switch p {
	case message.Critical:
		return cs.critical
	case message.Background:
		return cs.background
	default:
		return cs.normal
	}
}

// Coordinator is the ingest pipeline's submit orchestrator. It is safe for
// concurrent use by many callers.
type Coordinator struct {
	chans atomic.Pointer[channelSet]

	cache    *dedupcache.Cache
	sampling *sampling.Config
	stats    *stats.Statistics
	logger   *events.EventLogger
	tracer   *otel.Tracer
	metrics  *otel.Metrics

	slowSubmitThreshold time.Duration
}

// New constructs a Coordinator. It has no channels to send on until
// BindChannels is called by the owning lifecycle controller at start.
func New(cache *dedupcache.Cache, samplingCfg *sampling.Config, st *stats.Statistics, logger *events.EventLogger, tracer *otel.Tracer, metrics *otel.Metrics, slowSubmitThreshold time.Duration) *Coordinator {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	if tracer == nil {
		tracer = otel.NoopTracer()
	}
	if metrics == nil {
		metrics = otel.NoopMetrics()
	}
	return &Coordinator{
		cache:               cache,
		sampling:            samplingCfg,
		stats:               st,
		logger:              logger,
		tracer:              tracer,
		metrics:             metrics,
		slowSubmitThreshold: slowSubmitThreshold,
	}
}

// BindChannels publishes a fresh set of priority channels for submit to send
// on. The lifecycle controller calls this once per start, after
// constructing new channels and before launching workers on them.
func (c *Coordinator) BindChannels(critical, normal, background chan message.Message) {
	c.chans.Store(&channelSet{critical: critical, normal: normal, background: background})
}

// Unbind clears the published channel set, so that submit calls after a
// stop return a config error instead of silently blocking or leaking to
// channels nobody drains.
func (c *Coordinator) Unbind() {
	c.chans.Store(nil)
}

// Submit runs the full parse -> validate -> dedup -> sample -> classify ->
// try-enqueue sequence over raw. It returns parse/shape failures
// (JsonError, InvalidMessage), and a ConfigError when no channel set is
// bound (before BindChannels or after Unbind); every other outcome is a
// silent drop recorded in statistics, per the propagation policy.
func (c *Coordinator) Submit(raw []byte) *ingesterr.Error {
	start := time.Now()
	ctx := context.Background()

	msg, perr := message.Parse(raw)
	if perr != nil {
		return perr
	}

	ctx, span := c.tracer.StartSubmitSpan(ctx, otel.SubmitSpanOptions{Service: msg.Service})
	defer span.End()

	if !msg.Valid() {
		c.recordDrop(ctx, msg.Service, stats.ReasonInvalid)
		otel.RecordOutcome(span, "dropped:invalid")
		c.maybeLogSlowSubmit(msg.Service, start)
		return nil
	}

	if c.cache.CheckAndInsert(msg.Fingerprint(), time.Now()) {
		c.recordDrop(ctx, msg.Service, stats.ReasonDuplicate)
		otel.RecordOutcome(span, "dropped:duplicate")
		c.maybeLogSlowSubmit(msg.Service, start)
		return nil
	}

	if !c.sampling.ShouldProcess(msg.Service) {
		c.recordDrop(ctx, msg.Service, stats.ReasonSampling)
		otel.RecordOutcome(span, "dropped:sampling")
		c.maybeLogSlowSubmit(msg.Service, start)
		return nil
	}

	priority := msg.Priority()
	cs := c.chans.Load()
	if cs == nil {
		otel.RecordOutcome(span, "dropped:not_started")
		return ingesterr.Config("pipeline not started")
	}

	ch := cs.forPriority(priority)
	select {
	case ch <- msg:
		c.stats.IncReceived()
		c.metrics.RecordReceived(ctx, msg.Service, priority.String())
		otel.RecordOutcome(span, "accepted:"+priority.String())
	default:
		c.stats.IncDropped(stats.ReasonQueueFull)
		c.metrics.RecordDropped(ctx, msg.Service, string(stats.ReasonQueueFull))
		c.logger.LogQueueFull(msg.Service, priority.String(), cap(ch))
		otel.RecordOutcome(span, "dropped:queue_full")
	}

	c.maybeLogSlowSubmit(msg.Service, start)
	return nil
}

func (c *Coordinator) recordDrop(ctx context.Context, service string, reason stats.DropReason) {
	c.stats.IncDropped(reason)
	c.metrics.RecordDropped(ctx, service, string(reason))
}

func (c *Coordinator) maybeLogSlowSubmit(service string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed > c.slowSubmitThreshold {
		c.logger.LogSlowSubmit(service, float64(elapsed.Microseconds()), float64(c.slowSubmitThreshold.Microseconds()))
	}
}
