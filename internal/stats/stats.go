// Package stats implements the ingest pipeline's statistics core: atomic
// counters for received/processed/dropped messages, a moving average over
// handler latency, per-priority queue depth, and the health derivation that
// reads them.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// DropReason is a stable label identifying why a message was dropped.
type DropReason string

const (
	ReasonInvalid         DropReason = "invalid message"
	ReasonDuplicate       DropReason = "duplicate message"
	ReasonSampling        DropReason = "sampling"
	ReasonQueueFull       DropReason = "queue full"
	ReasonProcessingError DropReason = "processing error"
)

// Health is the three-state health derivation read from a Statistics
// snapshot.
type Health string

const (
	Healthy  Health = "healthy"
	Warning  Health = "warning"
	Critical Health = "critical"
)

// Snapshot is a point-in-time copy of the statistics surface. get_stats()
// returns one of these rather than a live view.
type Snapshot struct {
	MessagesReceived  int64
	MessagesProcessed int64
	MessagesDropped   int64
	DroppedByReason   map[DropReason]int64
	AvgProcessingTimeUs float64
	QueueSizeByPriority map[string]int64
	QueueSize         int64 // aggregate across all priorities
	LastUpdate        time.Time
	DedupCacheSize    int
	ProcessCPUPercent float64
	ProcessRSSBytes   uint64
}

// DropRate reports messages_dropped / max(1, messages_received).
func (s Snapshot) DropRate() float64 {
	denom := s.MessagesReceived
	if denom < 1 {
		denom = 1
	}
	return float64(s.MessagesDropped) / float64(denom)
}

// ProcessingRate reports messages_processed / seconds since last update,
// informational only. Returns 0 if the elapsed time collapses to zero.
func (s Snapshot) ProcessingRate(now time.Time) float64 {
	elapsed := now.Sub(s.LastUpdate).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.MessagesProcessed) / elapsed
}

// HealthState derives the three-state health per the documented thresholds.
// Process CPU/RSS and dedup cache size are advisory fields that never
// participate in this derivation.
func (s Snapshot) HealthState() Health {
	avgMs := s.AvgProcessingTimeUs / 1000.0
	switch {
	case s.DropRate() > 0.10 || avgMs > 10.0 || s.QueueSize > 800:
		return Critical
	case s.DropRate() > 0.05 || avgMs > 5.0 || s.QueueSize > 500:
		return Warning
	default:
		return Healthy
	}
}

// Statistics is the pipeline's live, concurrently-updated counter set.
// Counter increments use atomics; the moving average and last-update
// timestamp share one mutex because their update is not commutative and
// must be linearized with the read that publishes them.
type Statistics struct {
	received  atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64

	reasonMu sync.Mutex
	byReason map[DropReason]int64

	avgMu      sync.Mutex
	haveSample bool
	avgUs      float64
	lastUpdate time.Time

	queueMu sync.Mutex
	queueSizes map[string]int64
}

// New returns an empty Statistics instance with last_update set to now.
func New() *Statistics {
	return &Statistics{
		byReason:   make(map[DropReason]int64),
		queueSizes: make(map[string]int64),
		lastUpdate: time.Now(),
	}
}

// IncReceived increments messages_received.
func (s *Statistics) IncReceived() {
	s.received.Add(1)
}

// IncDropped increments messages_dropped and its reason breakdown.
func (s *Statistics) IncDropped(reason DropReason) {
	s.dropped.Add(1)
	s.reasonMu.Lock()
	s.byReason[reason]++
	s.reasonMu.Unlock()
}

// RecordProcessed increments messages_processed and folds durationUs into
// the moving average: new_avg = 0.9*old + 0.1*sample, initialized to the
// first sample.
func (s *Statistics) RecordProcessed(durationUs float64) {
	s.processed.Add(1)

	s.avgMu.Lock()
	if !s.haveSample {
		s.avgUs = durationUs
		s.haveSample = true
	} else {
		s.avgUs = 0.9*s.avgUs + 0.1*durationUs
	}
	s.lastUpdate = time.Now()
	s.avgMu.Unlock()
}

// SetQueueSize records the current depth of one priority's channel, read
// back by Snapshot.
func (s *Statistics) SetQueueSize(priority string, size int) {
	s.queueMu.Lock()
	s.queueSizes[priority] = int64(size)
	s.queueMu.Unlock()
}

// Reset zeroes every counter, the drop-reason breakdown and the moving
// average, and sets last_update to now. Recorded per-priority queue sizes
// are kept. Intended for explicit operator-triggered resets only; the
// pipeline itself never calls this.
func (s *Statistics) Reset() {
	s.received.Store(0)
	s.processed.Store(0)
	s.dropped.Store(0)

	s.reasonMu.Lock()
	s.byReason = make(map[DropReason]int64)
	s.reasonMu.Unlock()

	s.avgMu.Lock()
	s.haveSample = false
	s.avgUs = 0
	s.lastUpdate = time.Now()
	s.avgMu.Unlock()
}

// Snapshot returns a point-in-time copy of the statistics surface. Process
// CPU/RSS and dedup cache size are left zero; callers that want them folded
// in set those fields on the returned value themselves (see pipeline.GetStats).
func (s *Statistics) Snapshot() Snapshot {
	s.reasonMu.Lock()
	byReason := make(map[DropReason]int64, len(s.byReason))
	for k, v := range s.byReason {
		byReason[k] = v
	}
	s.reasonMu.Unlock()

	s.queueMu.Lock()
	queueSizes := make(map[string]int64, len(s.queueSizes))
	var total int64
	for k, v := range s.queueSizes {
		queueSizes[k] = v
		total += v
	}
	s.queueMu.Unlock()

	s.avgMu.Lock()
	avgUs := s.avgUs
	lastUpdate := s.lastUpdate
	s.avgMu.Unlock()

	return Snapshot{
		MessagesReceived:    s.received.Load(),
		MessagesProcessed:   s.processed.Load(),
		MessagesDropped:     s.dropped.Load(),
		DroppedByReason:     byReason,
		AvgProcessingTimeUs: avgUs,
		QueueSizeByPriority: queueSizes,
		QueueSize:           total,
		LastUpdate:          lastUpdate,
	}
}
