// Package worker runs one goroutine per priority queue, draining its channel
// with a non-blocking receive and falling back to a short sleep when the
// queue is empty rather than blocking on it.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vtelemetry/ingestcore/internal/events"
	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/otel"
	"github.com/vtelemetry/ingestcore/internal/stats"
)

// Handler processes one dequeued message. An error is recorded as a
// processing-error drop; it never stops the worker.
type Handler func(context.Context, message.Message) error

// Worker drains a single priority's channel for as long as it is running.
type Worker struct {
	priority             message.Priority
	ch                   <-chan message.Message
	handler              Handler
	wakeInterval         time.Duration
	slowHandlerThreshold time.Duration

	stats   *stats.Statistics
	logger  *events.EventLogger
	tracer  *otel.Tracer
	metrics *otel.Metrics

	running atomic.Bool
	done    chan struct{}
}

// New constructs a Worker bound to ch. It does not start running until Run
// is called, typically in its own goroutine.
func New(priority message.Priority, ch <-chan message.Message, handler Handler, wakeInterval, slowHandlerThreshold time.Duration, st *stats.Statistics, logger *events.EventLogger, tracer *otel.Tracer, metrics *otel.Metrics) *Worker {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	if tracer == nil {
		tracer = otel.NoopTracer()
	}
	if metrics == nil {
		metrics = otel.NoopMetrics()
	}
	w := &Worker{
		priority:             priority,
		ch:                   ch,
		handler:              handler,
		wakeInterval:         wakeInterval,
		slowHandlerThreshold: slowHandlerThreshold,
		stats:                st,
		logger:               logger,
		tracer:               tracer,
		metrics:              metrics,
		done:                 make(chan struct{}),
	}
	w.running.Store(true)
	return w
}

// Done reports when Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop asks the worker loop to exit after its current poll. It does not
// wait for Run to return; use Done for that.
func (w *Worker) Stop() {
	w.running.Store(false)
}

// Run polls the bound channel until it is closed or Stop is called. It
// never blocks on a receive: an empty queue yields the wake interval before
// the next poll, so a worker with nothing to do costs almost no CPU while
// staying responsive to newly arriving messages.
func (w *Worker) Run() {
	defer close(w.done)

	for w.running.Load() {
		select {
		case msg, ok := <-w.ch:
			if !ok {
				w.logger.LogWorkerExit(w.priority.String(), "channel closed")
				return
			}
			w.dispatch(msg)
		default:
			time.Sleep(w.wakeInterval)
		}
	}

	w.logger.LogWorkerExit(w.priority.String(), "stopped")
}

func (w *Worker) dispatch(msg message.Message) {
	start := time.Now()
	ctx, span := w.tracer.StartDispatchSpan(context.Background(), otel.DispatchSpanOptions{
		Service:  msg.Service,
		Priority: w.priority.String(),
	})
	defer span.End()

	err := w.handler(ctx, msg)
	elapsed := time.Since(start)
	elapsedUs := float64(elapsed.Microseconds())

	if err != nil {
		w.stats.IncDropped(stats.ReasonProcessingError)
		w.metrics.RecordDropped(ctx, msg.Service, string(stats.ReasonProcessingError))
		w.logger.LogHandlerError(msg.Service, w.priority.String(), err)
		otel.RecordError(span, err, string(stats.ReasonProcessingError))
	} else {
		w.stats.RecordProcessed(elapsedUs)
		w.metrics.RecordProcessed(ctx, msg.Service, w.priority.String())
		w.metrics.RecordHandlerLatency(ctx, msg.Service, w.priority.String(), elapsedUs)
		otel.RecordOutcome(span, "processed")
	}

	if elapsed > w.slowHandlerThreshold {
		w.logger.LogSlowHandler(msg.Service, w.priority.String(), elapsedUs, float64(w.slowHandlerThreshold.Microseconds()))
	}
}
