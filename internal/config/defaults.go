package config

import "time"

// Default tuning parameters for a pipeline instance. All are overridable via
// Config without touching core code.
const (
	DefaultCriticalCapacity = 200
	DefaultNormalCapacity   = 500
	DefaultBackgroundCapacity = 100

	DefaultCriticalWakeInterval   = 100 * time.Microsecond
	DefaultNormalWakeInterval     = 1 * time.Millisecond
	DefaultBackgroundWakeInterval = 10 * time.Millisecond

	DefaultDedupWindow      = 1 * time.Second
	DefaultCacheRetention   = 300 * time.Second
	DefaultEvictionPeriod   = 60 * time.Second
	DefaultSlowSubmitThreshold  = 1 * time.Millisecond
	DefaultSlowHandlerThreshold = 10 * time.Millisecond
	DefaultStatsReportPeriod   = 30 * time.Second
	DefaultHealthSamplePeriod  = 15 * time.Second
)
