package dedupcache

import (
	"sync/atomic"
	"time"

	"github.com/vtelemetry/ingestcore/internal/events"
)

// Evictor is the dedup cache's periodic trimming task: every period of wall
// time it scans the cache and removes entries older than retention. It logs
// the removed count when positive and is safe to Stop and never restarted
// (a fresh pipeline start constructs a fresh Evictor, per the lifecycle
// contract — see internal/pipeline).
type Evictor struct {
	cache     *Cache
	retention time.Duration
	period    time.Duration
	logger    *events.EventLogger

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEvictor constructs an Evictor over cache with the given retention and
// sweep period. logger may be nil, in which case sweep results are not
// logged.
func NewEvictor(cache *Cache, retention, period time.Duration, logger *events.EventLogger) *Evictor {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	return &Evictor{
		cache:     cache,
		retention: retention,
		period:    period,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background sweep loop. It returns immediately; the
// loop runs until Stop is called.
func (e *Evictor) Start() {
	go e.run()
}

func (e *Evictor) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			e.sweepOnce(now)
		}
	}
}

func (e *Evictor) sweepOnce(now time.Time) {
	removed := e.cache.Sweep(now, e.retention)
	e.logger.LogEvictionSweep(removed, e.cache.Len())
}

// Stop signals the sweep loop to exit at its next opportunity and blocks
// until it has. Calling Stop more than once is safe.
func (e *Evictor) Stop() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.stopCh)
	}
	<-e.doneCh
}
