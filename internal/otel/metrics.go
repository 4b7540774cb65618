package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds meter construction parameters for one pipeline instance.
type MetricsConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	InstanceID     string
	ExporterType   ExporterType
	OTLPEndpoint   string
	OTLPInsecure   bool
	Attributes     map[string]string
}

// DefaultMetricsConfig returns a disabled metrics configuration.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "ingestcore",
		ExporterType: ExporterNone,
	}
}

// QueueDepthFunc is polled by the observable queue-depth gauge, keyed by priority name.
type QueueDepthFunc func() map[string]int64

// Metrics wraps an OpenTelemetry meter with the instruments the ingest
// pipeline records outcomes into.
type Metrics struct {
	config *MetricsConfig
	mp     *sdkmetric.MeterProvider
	meter  metric.Meter
	shut   func(context.Context) error
	mu     sync.RWMutex

	messagesReceived metric.Int64Counter
	messagesProcessed metric.Int64Counter
	messagesDropped  metric.Int64Counter
	handlerLatency   metric.Float64Histogram
	queueDepth       metric.Int64ObservableGauge
	queueDepthReg    metric.Registration
	queueDepthFunc   QueueDepthFunc
}

var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics constructs a Metrics instance from cfg, falling back to a no-op
// provider when metrics are disabled or no exporter is selected.
func NewMetrics(ctx context.Context, cfg *MetricsConfig, depthFn QueueDepthFunc) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{config: cfg, queueDepthFunc: depthFn}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.mp = sdkmetric.NewMeterProvider()
		m.meter = m.mp.Meter(cfg.ServiceName)
		m.shut = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}

	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.mp = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shut = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("register instruments: %w", err)
	}

	return m, nil
}

func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		var opts []otlpmetricgrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		var opts []otlpmetrichttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.InstanceID))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.messagesReceived, err = m.meter.Int64Counter(
		"ingestcore.messages.received",
		metric.WithDescription("Count of messages successfully enqueued"),
	)
	if err != nil {
		return fmt.Errorf("messages.received counter: %w", err)
	}

	m.messagesProcessed, err = m.meter.Int64Counter(
		"ingestcore.messages.processed",
		metric.WithDescription("Count of messages dispatched to the handler"),
	)
	if err != nil {
		return fmt.Errorf("messages.processed counter: %w", err)
	}

	m.messagesDropped, err = m.meter.Int64Counter(
		"ingestcore.messages.dropped",
		metric.WithDescription("Count of messages dropped, by reason"),
	)
	if err != nil {
		return fmt.Errorf("messages.dropped counter: %w", err)
	}

	m.handlerLatency, err = m.meter.Float64Histogram(
		"ingestcore.handler.latency",
		metric.WithDescription("Handler invocation latency"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return fmt.Errorf("handler.latency histogram: %w", err)
	}

	m.queueDepth, err = m.meter.Int64ObservableGauge(
		"ingestcore.queue.depth",
		metric.WithDescription("Current depth of a priority queue"),
	)
	if err != nil {
		return fmt.Errorf("queue.depth gauge: %w", err)
	}

	m.queueDepthReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			if m.queueDepthFunc == nil {
				return nil
			}
			for priority, depth := range m.queueDepthFunc() {
				o.ObserveInt64(m.queueDepth, depth, metric.WithAttributes(attribute.String("priority", priority)))
			}
			return nil
		},
		m.queueDepth,
	)
	if err != nil {
		return fmt.Errorf("register queue.depth callback: %w", err)
	}

	return nil
}

// RecordReceived increments the received counter for the given service/priority.
func (m *Metrics) RecordReceived(ctx context.Context, service, priority string) {
	if m.messagesReceived == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("priority", priority),
	))
}

// RecordProcessed increments the processed counter for the given service/priority.
func (m *Metrics) RecordProcessed(ctx context.Context, service, priority string) {
	if m.messagesProcessed == nil {
		return
	}
	m.messagesProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("priority", priority),
	))
}

// RecordDropped increments the dropped counter with the drop reason attached.
func (m *Metrics) RecordDropped(ctx context.Context, service, reason string) {
	if m.messagesDropped == nil {
		return
	}
	m.messagesDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("reason", reason),
	))
}

// RecordHandlerLatency records one handler invocation's elapsed microseconds.
func (m *Metrics) RecordHandlerLatency(ctx context.Context, service, priority string, microseconds float64) {
	if m.handlerLatency == nil {
		return
	}
	m.handlerLatency.Record(ctx, microseconds, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("priority", priority),
	))
}

// Shutdown flushes and tears down the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueDepthReg != nil {
		if err := m.queueDepthReg.Unregister(); err != nil {
			return fmt.Errorf("unregister queue depth callback: %w", err)
		}
	}
	if m.shut != nil {
		return m.shut(ctx)
	}
	return nil
}

// Enabled reports whether metrics collection is active.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.mp
}

// SetGlobalMetrics installs m as the process-wide fallback metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m
	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.mp)
	}
}

// GetGlobalMetrics returns the process-wide fallback metrics instance, or a
// no-op instance if none has been installed.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics()
	}
	return globalMetrics
}

// NoopMetrics returns a metrics instance that discards everything.
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config: cfg,
		mp:     mp,
		meter:  mp.Meter(cfg.ServiceName),
		shut:   func(context.Context) error { return nil },
	}
}
