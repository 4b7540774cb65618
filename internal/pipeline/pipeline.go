// Package pipeline wires the ingest coordinator, the three priority
// workers, the dedup evictor, and the observability stack into one
// restartable unit.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vtelemetry/ingestcore/internal/config"
	"github.com/vtelemetry/ingestcore/internal/dedupcache"
	"github.com/vtelemetry/ingestcore/internal/events"
	"github.com/vtelemetry/ingestcore/internal/healthprobe"
	"github.com/vtelemetry/ingestcore/internal/ingest"
	"github.com/vtelemetry/ingestcore/internal/ingesterr"
	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/otel"
	"github.com/vtelemetry/ingestcore/internal/sampling"
	"github.com/vtelemetry/ingestcore/internal/stats"
	"github.com/vtelemetry/ingestcore/internal/worker"
)

// Pipeline owns every piece of running state a telemetry ingest instance
// needs: the coordinator, the priority workers, the dedup evictor, and the
// tracer/meter pair. It is safe to Start, Stop, and Start again; each start
// gets fresh channels and fresh workers, so a stopped pipeline never leaks
// a sender onto a channel nobody drains.
type Pipeline struct {
	cfg     *config.Config
	handler worker.Handler

	sampling *sampling.Config
	stats    *stats.Statistics
	cache    *dedupcache.Cache
	logger   *events.EventLogger
	probe    *healthprobe.Probe

	instanceID string

	mu          sync.RWMutex
	running     bool
	coordinator *ingest.Coordinator
	tracer      *otel.Tracer
	metrics     *otel.Metrics
	evictor     *dedupcache.Evictor
	workers     []*worker.Worker
	channels    map[message.Priority]chan message.Message
}

// New constructs a Pipeline from cfg. handler is invoked by every priority
// worker for every message it dequeues; it is the caller's application
// logic and is never called concurrently with itself for the same message.
func New(cfg *config.Config, handler worker.Handler) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := events.NewEventLogger(uuid.NewString())
	probe, err := healthprobe.New()
	if err != nil {
		probe = nil
	}
	return &Pipeline{
		cfg:      cfg,
		handler:  handler,
		sampling: sampling.NewConfig(),
		stats:    stats.New(),
		cache:    dedupcache.New(cfg.DedupWindow),
		logger:   logger,
		probe:    probe,
	}
}

// Start brings the pipeline up: fresh priority channels, a fresh
// coordinator bound to them, a worker goroutine per priority, and a
// running eviction sweeper. It fails with a config error if the pipeline
// is already running.
func (p *Pipeline) Start(ctx context.Context) *ingesterr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ingesterr.Config("pipeline already running")
	}

	p.instanceID = uuid.NewString()

	tracer, metrics, err := p.buildObservability(ctx)
	if err != nil {
		return ingesterr.Config(fmt.Sprintf("observability setup: %v", err))
	}
	p.tracer = tracer
	p.metrics = metrics

	channels := make(map[message.Priority]chan message.Message, len(message.AllPriorities()))
	for _, pr := range message.AllPriorities() {
		channels[pr] = make(chan message.Message, p.cfg.CapacityFor(pr))
	}
	p.channels = channels

	p.coordinator = ingest.New(p.cache, p.sampling, p.stats, p.logger, p.tracer, p.metrics, p.cfg.SlowSubmitThreshold)
	p.coordinator.BindChannels(channels[message.Critical], channels[message.Normal], channels[message.Background])

	p.workers = make([]*worker.Worker, 0, len(message.AllPriorities()))
	for _, pr := range message.AllPriorities() {
		w := worker.New(pr, channels[pr], p.handler, p.cfg.WakeIntervalFor(pr), p.cfg.SlowHandlerThreshold, p.stats, p.logger, p.tracer, p.metrics)
		p.workers = append(p.workers, w)
		go w.Run()
	}

	p.evictor = dedupcache.NewEvictor(p.cache, p.cfg.CacheRetention, p.cfg.EvictionPeriod, p.logger)
	p.evictor.Start()

	p.logger.LogLifecycleTransition("stopped", "running", "start")
	p.running = true
	return nil
}

// Stop tears the pipeline down: every worker is asked to exit, the evictor
// sweeper is stopped, and the coordinator's channels are unbound so any
// submit racing the shutdown sees a config error rather than a silent
// send to a channel nobody is draining.
func (p *Pipeline) Stop(ctx context.Context) *ingesterr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ingesterr.Config("pipeline not running")
	}

	p.coordinator.Unbind()

	for _, w := range p.workers {
		w.Stop()
	}
	for _, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
		}
	}

	p.evictor.Stop()

	for _, ch := range p.channels {
		close(ch)
	}

	if p.tracer != nil {
		_ = p.tracer.Shutdown(ctx)
	}
	if p.metrics != nil {
		_ = p.metrics.Shutdown(ctx)
	}

	p.logger.LogLifecycleTransition("running", "stopped", "stop")
	p.running = false
	p.workers = nil
	p.channels = nil
	p.coordinator = nil
	return nil
}

// Submit hands raw bytes to the coordinator's submit path. It returns a
// config error if the pipeline has not been started. It holds the read
// side of the lifecycle lock for the whole call, so Stop cannot unbind and
// close the channels while a submit is still sending on them.
func (p *Pipeline) Submit(raw []byte) *ingesterr.Error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := p.coordinator
	if c == nil {
		return ingesterr.Config("pipeline not started")
	}
	return c.Submit(raw)
}

// UpdateSamplingRate changes the acceptance rate for service at runtime.
func (p *Pipeline) UpdateSamplingRate(service string, rate float64) {
	p.sampling.SetRate(service, rate)
}

// GetStats returns a point-in-time snapshot enriched with live queue
// depths, dedup cache size, and (when available) process resource usage.
func (p *Pipeline) GetStats() stats.Snapshot {
	p.mu.Lock()
	channels := p.channels
	p.mu.Unlock()

	for pr, ch := range channels {
		p.stats.SetQueueSize(pr.String(), len(ch))
	}

	snap := p.stats.Snapshot()
	snap.DedupCacheSize = p.cache.Len()
	if p.probe != nil {
		snap.ProcessCPUPercent, snap.ProcessRSSBytes = p.probe.Sample()
	}
	return snap
}

// GetHealth derives the pipeline's current health tier from its latest
// statistics snapshot.
func (p *Pipeline) GetHealth() stats.Health {
	return p.GetStats().HealthState()
}

// InstanceID returns the identifier assigned at the most recent Start.
func (p *Pipeline) InstanceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instanceID
}

// Tracer returns the tracer bound at the most recent Start, or a no-op
// tracer if the pipeline has never been started. Exposed so a host process
// can wrap its own HTTP surface in the same trace context.
func (p *Pipeline) Tracer() *otel.Tracer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tracer == nil {
		return otel.NoopTracer()
	}
	return p.tracer
}

func (p *Pipeline) buildObservability(ctx context.Context) (*otel.Tracer, *otel.Metrics, error) {
	obs := p.cfg.Observability

	tracerCfg := &otel.Config{
		Enabled:        obs.Enabled,
		ServiceName:    obs.ServiceName,
		ServiceVersion: obs.ServiceVersion,
		InstanceID:     p.instanceID,
		ExporterType:   obs.ExporterType,
		OTLPEndpoint:   obs.OTLPEndpoint,
		OTLPInsecure:   obs.OTLPInsecure,
		SampleRate:     obs.TraceSampleRate,
	}
	tracer, err := otel.NewTracer(ctx, tracerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	metricsCfg := &otel.MetricsConfig{
		Enabled:        obs.Enabled,
		ServiceName:    obs.ServiceName,
		ServiceVersion: obs.ServiceVersion,
		InstanceID:     p.instanceID,
		ExporterType:   obs.ExporterType,
		OTLPEndpoint:   obs.OTLPEndpoint,
		OTLPInsecure:   obs.OTLPInsecure,
	}
	metrics, err := otel.NewMetrics(ctx, metricsCfg, p.queueDepths)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	return tracer, metrics, nil
}

func (p *Pipeline) queueDepths() map[string]int64 {
	p.mu.Lock()
	channels := p.channels
	p.mu.Unlock()

	depths := make(map[string]int64, len(channels))
	for pr, ch := range channels {
		depths[pr.String()] = int64(len(ch))
	}
	return depths
}
