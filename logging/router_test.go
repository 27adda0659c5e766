package logging_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

func TestRouterDeliversAndFilters(t *testing.T) {
	memory := sinks.NewMemorySink()
	metrics := &logging.Metrics{}
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"service": "effectd"}
	fixed := time.Unix(100, 0)

	router, err := logging.NewRouter(
		logging.ClockFunc(func() time.Time { return fixed }),
		cfg,
		[]logging.NamedSink{{Name: "memory", Sink: memory}},
		logging.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "buffs.added", Tick: 3, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: "commands.rejected", Severity: logging.SeverityDebug})
	router.Publish(ctx, logging.Event{Severity: logging.SeverityError})

	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after filtering, got %d", len(events))
	}
	got := events[0]
	if got.Type != "buffs.added" || got.Tick != 3 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.Time.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", got.Time)
	}
	if got.Extra["service"] != "effectd" {
		t.Fatalf("expected static field, got %+v", got.Extra)
	}
	if router.Sink("memory") != memory {
		t.Fatalf("expected sink lookup by name")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if metrics.Snapshot()["logging_events_total"] != 1 {
		t.Fatalf("expected routed event metric, got %v", metrics.Snapshot())
	}

	router.Publish(ctx, logging.Event{Type: "late"})
	if len(memory.Events()) != 1 {
		t.Fatalf("expected publish after close to be ignored")
	}
}

func TestWithFieldsKeepsEventValues(t *testing.T) {
	var captured []logging.Event
	base := logging.PublisherFunc(func(_ context.Context, e logging.Event) {
		captured = append(captured, e)
	})
	pub := logging.WithFields(base, map[string]any{"owner": "a", "zone": "z1"})

	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: map[string]any{"owner": "b"}})

	if len(captured) != 1 {
		t.Fatalf("expected one event, got %d", len(captured))
	}
	if captured[0].Extra["owner"] != "b" || captured[0].Extra["zone"] != "z1" {
		t.Fatalf("unexpected extras: %+v", captured[0].Extra)
	}
	if logging.WithFields(nil, nil) == nil {
		t.Fatalf("expected nop publisher for nil base")
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug": logging.SeverityDebug,
		"":      logging.SeverityInfo,
		"warn":  logging.SeverityWarn,
		"error": logging.SeverityError,
	}
	for input, want := range cases {
		got, ok := logging.ParseSeverity(input)
		if !ok || got != want {
			t.Fatalf("ParseSeverity(%q) = %v, %v", input, got, ok)
		}
	}
	if _, ok := logging.ParseSeverity("loud"); ok {
		t.Fatalf("expected unknown severity to fail")
	}
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	written  []logging.Event
}

func (s *flakySink) Write(e logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("unavailable")
	}
	s.written = append(s.written, e)
	return nil
}

func (s *flakySink) Close(context.Context) error { return nil }

func TestRouterRetriesAndIsolatesFailingSinks(t *testing.T) {
	recovering := &flakySink{failures: 1}
	broken := &flakySink{failures: -1}
	memory := sinks.NewMemorySink()
	metrics := &logging.Metrics{}

	router, err := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "recovering", Sink: recovering},
		{Name: "broken", Sink: broken},
		{Name: "memory", Sink: memory},
	}, logging.WithMetrics(metrics), logging.WithFallbackLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "abilities.started"})

	deadline := time.Now().Add(5 * time.Second)
	for router.Stats().SinkFailures["broken"] == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("broken sink never gave up: %+v", router.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(recovering.written) != 1 {
		t.Fatalf("expected retry to deliver, got %d events", len(recovering.written))
	}
	if len(memory.Events()) != 1 {
		t.Fatalf("healthy sink should not wait on the broken one")
	}
	stats := router.Stats()
	if stats.SinkFailures["recovering"] != 0 || stats.SinkFailures["broken"] != 1 {
		t.Fatalf("unexpected failures: %+v", stats.SinkFailures)
	}
	if metrics.Snapshot()["logging_sink_failures_total_broken"] != 1 {
		t.Fatalf("expected per-sink failure metric, got %v", metrics.Snapshot())
	}
}
