package logging

import (
	"log"
	"sync/atomic"
	"time"
)

const (
	metricSinkFailures  = "logging_sink_failures_total"
	metricSinkOverflows = "logging_sink_backlog_dropped_total"
)

// retryPolicy bounds how long one event may hold a sink worker.
type retryPolicy struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, base: 100 * time.Millisecond, ceiling: 2 * time.Second}

// delay returns the pause before attempt n (1-based retry count).
func (p retryPolicy) delay(n int) time.Duration {
	d := p.base << min(n-1, 10)
	if d > p.ceiling || d <= 0 {
		return p.ceiling
	}
	return d
}

// sinkWorker owns one sink. Events are written in order; a failing write is
// retried with backoff and then given up on, so one broken sink never stalls
// the others.
type sinkWorker struct {
	name     string
	sink     Sink
	backlog  chan Event
	quit     <-chan struct{}
	retry    retryPolicy
	fallback *log.Logger
	metrics  *Metrics

	failed atomic.Uint64
}

func (w *sinkWorker) offer(event Event) {
	select {
	case w.backlog <- event.clone():
	default:
		w.metrics.TelemetryAdd(w.metricKey(metricSinkOverflows), 1)
		w.fallback.Printf("sink %s backlog full, dropping event type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.backlog {
		w.deliver(event)
	}
}

func (w *sinkWorker) deliver(event Event) {
	var err error
	for attempt := 0; attempt < max(w.retry.attempts, 1); attempt++ {
		if attempt > 0 && !w.pause(w.retry.delay(attempt)) {
			// Shutting down: one last try without waiting.
			err = w.sink.Write(event)
			break
		}
		if err = w.sink.Write(event); err == nil {
			return
		}
	}
	if err == nil {
		return
	}
	w.failed.Add(1)
	w.metrics.TelemetryAdd(w.metricKey(metricSinkFailures), 1)
	w.fallback.Printf("sink %s gave up on event type=%s: %v", w.name, event.Type, err)
}

// pause waits d and reports false if the router started closing meanwhile.
func (w *sinkWorker) pause(d time.Duration) bool {
	select {
	case <-w.quit:
		return false
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.quit:
		return false
	}
}

func (w *sinkWorker) metricKey(base string) string {
	if w.name == "" {
		return base
	}
	return base + "_" + w.name
}
