// Package sampling implements the ingest pipeline's per-service acceptance
// policy: a live-reconfigurable rate table and a stateless, allocation-free
// accept/reject decision.
package sampling

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// defaultRates mirrors the services the source ships non-trivial rates for;
// any service absent from this table defaults to 1.0 (always accepted).
var defaultRates = map[string]float64{
	"tracking":   1.0,
	"route":      1.0,
	"error_info": 1.0,
	"vcc":        1.0,
	"uos_config": 1.0,
	"traj":       0.1,
	"moving_obj": 0.05,
	"device":     0.2,
	"loc_stat":   0.3,
}

// Config is a mapping from service name to acceptance rate in [0, 1]. It is
// safe for concurrent use by many readers and infrequent writers.
type Config struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewConfig returns a Config preloaded with the documented defaults.
func NewConfig() *Config {
	rates := make(map[string]float64, len(defaultRates))
	for k, v := range defaultRates {
		rates[k] = v
	}
	return &Config{rates: rates}
}

// GetRate returns the acceptance rate for service, defaulting to 1.0 for any
// service not explicitly configured.
func (c *Config) GetRate(service string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.rates[service]; ok {
		return r
	}
	return 1.0
}

// SetRate sets the acceptance rate for service, clamping r to [0, 1].
func (c *Config) SetRate(service string, r float64) {
	clamped := clamp(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[service] = clamped
}

func clamp(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// ShouldProcess decides whether one message from service should be
// accepted, given the configured rate. For rate >= 1.0 it always accepts;
// for rate <= 0.0 it never accepts. Otherwise it derives a pseudo-random
// value in [0, 1) from the hash of (service, current wall-clock
// nanoseconds) and accepts iff that value is less than the rate. The
// decision requires no stateful RNG: consecutive calls for the same service
// generally diverge because the nanosecond component dominates the hash
// input.
func (c *Config) ShouldProcess(service string) bool {
	rate := c.GetRate(service)
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	return acceptanceValue(service, time.Now().UnixNano()) < rate
}

func acceptanceValue(service string, nanos int64) float64 {
	h := xxhash.New()
	h.WriteString(service)
	var buf [8]byte
	u := uint64(nanos)
	for i := range buf {
		buf[i] = byte(u >> (8 * i))
	}
	h.Write(buf[:])
	// Top 53 bits give a value with full float64 mantissa precision.
	return float64(h.Sum64()>>11) / float64(1<<53)
}
