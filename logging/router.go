package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	metricEventsTotal  = "logging_events_total"
	metricDroppedTotal = "logging_dropped_total"

	defaultRouterBuffer = 512
	defaultDropWarn     = 5 * time.Second
)

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// Sink receives routed events on its own goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// NamedSink pairs a sink with the name used in configuration and lookups.
type NamedSink struct {
	Name string
	Sink Sink
}

// Router fans published events out to sinks. Publish never blocks: when the
// intake queue is full the event is dropped and counted.
type Router struct {
	cfg      Config
	clock    Clock
	fields   map[string]any
	fallback *log.Logger
	metrics  *Metrics

	intake  chan Event
	quit    chan struct{}
	workers []*sinkWorker
	wg      sync.WaitGroup
	closed  atomic.Bool

	routed   atomic.Uint64
	dropped  atomic.Uint64
	dropWarn throttle
}

// RouterStats reports routing counters.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	// SinkFailures counts events a sink gave up on after its retries.
	SinkFailures map[string]uint64
}

// RouterOption customises router construction.
type RouterOption func(*Router)

// WithMetrics records routing and per-sink counters into m.
func WithMetrics(m *Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithFallbackLogger replaces the stderr logger used for sink failures.
func WithFallbackLogger(logger *log.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.fallback = logger
		}
	}
}

// NewRouter starts a router delivering to namedSinks. Sinks with a nil
// implementation are skipped.
func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink, opts ...RouterOption) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultRouterBuffer
	}
	interval := cfg.DropWarnInterval
	if interval <= 0 {
		interval = defaultDropWarn
	}
	r := &Router{
		cfg:      cfg,
		clock:    clock,
		fields:   cfg.CloneFields(),
		fallback: log.New(os.Stderr, "[logging] ", log.LstdFlags),
		intake:   make(chan Event, size),
		quit:     make(chan struct{}),
		dropWarn: throttle{interval: interval},
	}
	for _, opt := range opts {
		opt(r)
	}

	backlog := min(max(size, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			backlog:  make(chan Event, backlog),
			quit:     r.quit,
			retry:    defaultRetry,
			fallback: r.fallback,
			metrics:  r.metrics,
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, w := range r.workers {
		go func() {
			defer r.wg.Done()
			w.run()
		}()
	}
	return r, nil
}

// dispatch moves events from the intake queue to every worker backlog.
// Once quit closes, whatever is still queued is flushed before the worker
// backlogs close.
func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.backlog)
		}
	}()
	for {
		select {
		case event := <-r.intake:
			r.route(event)
		case <-r.quit:
			for {
				select {
				case event := <-r.intake:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.routed.Add(1)
	r.metrics.TelemetryAdd(metricEventsTotal, 1)
	for _, w := range r.workers {
		w.offer(event)
	}
}

// Publish queues event for delivery. Untyped events and events published
// after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.intake <- event:
	default:
		r.dropped.Add(1)
		r.metrics.TelemetryAdd(metricDroppedTotal, 1)
		if r.dropWarn.allow(time.Now()) {
			r.fallback.Printf("intake full, dropping event type=%s tick=%d", event.Type, event.Tick)
		}
	}
}

// Close flushes queued events, stops the workers and closes every sink.
// Sinks are closed only after their worker has drained.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.quit)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats reports routing counters.
func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.routed.Load(),
		DroppedTotal: r.dropped.Load(),
		SinkFailures: make(map[string]uint64, len(r.workers)),
	}
	for _, w := range r.workers {
		stats.SinkFailures[w.name] = w.failed.Load()
	}
	return stats
}

// Sink returns the sink registered under name.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// throttle admits at most one call per interval.
type throttle struct {
	interval time.Duration
	next     atomic.Int64
}

func (t *throttle) allow(now time.Time) bool {
	next := t.next.Load()
	if next != 0 && now.UnixNano() < next {
		return false
	}
	return t.next.CompareAndSwap(next, now.Add(t.interval).UnixNano())
}
