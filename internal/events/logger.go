package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for the ingest pipeline's own
// operational events, distinct from whatever the handler callback logs about
// message content.
type EventLogger struct {
	logger     *slog.Logger
	instanceID string
}

// NewEventLogger creates an EventLogger with JSON output to stdout, tagged
// with instanceID on every line.
func NewEventLogger(instanceID string) *EventLogger {
	return newEventLogger(instanceID, os.Stdout)
}

// NewEventLoggerWithWriter creates an EventLogger writing JSON to w. Useful
// for tests and for redirecting output.
func NewEventLoggerWithWriter(instanceID string, w io.Writer) *EventLogger {
	return newEventLogger(instanceID, w)
}

func newEventLogger(instanceID string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler).With("instance_id", instanceID)
	return &EventLogger{logger: logger, instanceID: instanceID}
}

// LogSlowSubmit logs a submit() call that exceeded the slow-submit threshold.
// event: "slow_submit"
func (el *EventLogger) LogSlowSubmit(service string, elapsedUs float64, thresholdUs float64) {
	el.logger.Warn("slow_submit",
		"service", service,
		"elapsed_us", elapsedUs,
		"threshold_us", thresholdUs,
	)
}

// LogSlowHandler logs a single handler invocation that exceeded the
// slow-handler threshold.
// event: "slow_handler"
func (el *EventLogger) LogSlowHandler(service, priority string, elapsedUs float64, thresholdUs float64) {
	el.logger.Warn("slow_handler",
		"service", service,
		"priority", priority,
		"elapsed_us", elapsedUs,
		"threshold_us", thresholdUs,
	)
}

// LogQueueFull logs a dropped message because its priority channel was at capacity.
// event: "queue_full"
func (el *EventLogger) LogQueueFull(service, priority string, capacity int) {
	el.logger.Warn("queue_full",
		"service", service,
		"priority", priority,
		"capacity", capacity,
	)
}

// LogHandlerError logs a handler invocation that returned an error.
// event: "handler_error"
func (el *EventLogger) LogHandlerError(service, priority string, err error) {
	el.logger.Warn("handler_error",
		"service", service,
		"priority", priority,
		"error", err.Error(),
	)
}

// LogEvictionSweep logs the result of one dedup-cache eviction pass.
// event: "eviction_sweep"
func (el *EventLogger) LogEvictionSweep(removed int, remaining int) {
	if removed == 0 {
		return
	}
	el.logger.Info("eviction_sweep",
		"removed", removed,
		"remaining", remaining,
	)
}

// LogLifecycleTransition logs a start/stop transition of the pipeline.
// event: "lifecycle_transition"
func (el *EventLogger) LogLifecycleTransition(from, to, reason string) {
	el.logger.Info("lifecycle_transition",
		"from", from,
		"to", to,
		"reason", reason,
	)
}

// LogWorkerExit logs a priority worker exiting its loop (channel closed or stop requested).
// event: "worker_exit"
func (el *EventLogger) LogWorkerExit(priority, reason string) {
	el.logger.Info("worker_exit",
		"priority", priority,
		"reason", reason,
	)
}

var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the process-wide fallback event logger.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the process-wide fallback event logger, or a
// no-op logger if none has been set.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards everything.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &EventLogger{logger: slog.New(handler)}
}
