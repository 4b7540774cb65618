// Package config collects every tuning parameter a pipeline instance needs,
// so that operators can change behavior without touching core code.
package config

import (
	"time"

	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/otel"
)

// PriorityConfig overrides the capacity and wake interval of one priority
// channel. Zero values fall back to the spec defaults in message.DefaultTuning.
type PriorityConfig struct {
	Capacity     int
	WakeInterval time.Duration
}

// ObservabilityConfig selects the tracer/meter exporter for a pipeline
// instance. The zero value disables both.
type ObservabilityConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	ExporterType   otel.ExporterType
	OTLPEndpoint   string
	OTLPInsecure   bool
	TraceSampleRate float64
}

// Config is every knob the ingest pipeline exposes. Construct with Default
// and override only the fields a deployment needs to change.
type Config struct {
	Priorities map[message.Priority]PriorityConfig

	DedupWindow    time.Duration
	CacheRetention time.Duration
	EvictionPeriod time.Duration

	SlowSubmitThreshold  time.Duration
	SlowHandlerThreshold time.Duration
	StatsReportPeriod    time.Duration
	HealthSamplePeriod   time.Duration

	Observability ObservabilityConfig
}

// Default returns a Config with every tuning parameter set to the values
// documented in the external interfaces surface.
func Default() *Config {
	priorities := make(map[message.Priority]PriorityConfig, 3)
	for _, p := range message.AllPriorities() {
		t := message.DefaultTuning(p)
		priorities[p] = PriorityConfig{Capacity: t.Capacity, WakeInterval: t.WakeInterval}
	}

	return &Config{
		Priorities: priorities,

		DedupWindow:    DefaultDedupWindow,
		CacheRetention: DefaultCacheRetention,
		EvictionPeriod: DefaultEvictionPeriod,

		SlowSubmitThreshold:  DefaultSlowSubmitThreshold,
		SlowHandlerThreshold: DefaultSlowHandlerThreshold,
		StatsReportPeriod:    DefaultStatsReportPeriod,
		HealthSamplePeriod:   DefaultHealthSamplePeriod,

		Observability: ObservabilityConfig{
			Enabled:      false,
			ServiceName:  "ingestcore",
			ExporterType: otel.ExporterNone,
			TraceSampleRate: 1.0,
		},
	}
}

// CapacityFor returns the configured (or default) capacity for priority p.
func (c *Config) CapacityFor(p message.Priority) int {
	if pc, ok := c.Priorities[p]; ok && pc.Capacity > 0 {
		return pc.Capacity
	}
	return message.DefaultTuning(p).Capacity
}

// WakeIntervalFor returns the configured (or default) wake interval for priority p.
func (c *Config) WakeIntervalFor(p message.Priority) time.Duration {
	if pc, ok := c.Priorities[p]; ok && pc.WakeInterval > 0 {
		return pc.WakeInterval
	}
	return message.DefaultTuning(p).WakeInterval
}
