package sinks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "buffs.layer_changed",
		Tick:     42,
		Time:     time.Unix(10, 0),
		Actor:    logging.Ref(logging.EntityKindOwner, "hero"),
		Targets:  []logging.EntityRef{logging.Ref(logging.EntityKindBuff, "poison")},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBuffs,
		Payload:  map[string]int{"current": 3},
	}
}

func TestConsoleWritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewConsole(&buf)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[buffs.layer_changed]", "tick=42", "actor=owner:hero", "targets=buff:poison", `payload={"current":3}`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewJSON(&buf, 0)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "buffs.layer_changed" || decoded["severity"] != "info" {
		t.Fatalf("unexpected record: %v", decoded)
	}
}

func TestMemoryOfType(t *testing.T) {
	sink := sinks.NewMemorySink()
	sink.Publish(context.Background(), sampleEvent())
	sink.Publish(context.Background(), logging.Event{Type: "other"})
	if got := len(sink.OfType("buffs.layer_changed")); got != 1 {
		t.Fatalf("expected 1 matching event, got %d", got)
	}
	sink.Reset()
	if len(sink.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}

func TestSQLiteJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.db")
	sink, err := sinks.NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { sink.Close(context.Background()) })

	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write(logging.Event{Type: "abilities.started", Tick: 43, Time: time.Unix(11, 0)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	all, err := sink.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 2 || all[0].Type != "abilities.started" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	filtered, err := sink.Recent(context.Background(), "buffs.layer_changed", 10)
	if err != nil {
		t.Fatalf("recent filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected one filtered entry, got %d", len(filtered))
	}
	entry := filtered[0]
	if entry.Tick != 42 || entry.ActorID != "hero" || entry.ActorKind != "owner" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !strings.Contains(entry.Payload, `"current":3`) {
		t.Fatalf("expected payload json, got %q", entry.Payload)
	}
}

func TestSQLiteRejectsEmptyPath(t *testing.T) {
	if _, err := sinks.NewSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestWebSocketBroadcasts(t *testing.T) {
	sink := sinks.NewWebSocket(logging.WebSocketConfig{MaxClients: 2}, nil)
	srv := httptest.NewServer(http.HandlerFunc(sink.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for sink.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "buffs.layer_changed" {
		t.Fatalf("unexpected frame: %v", decoded)
	}

	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.Clients() != 0 {
		t.Fatalf("expected close to drop subscribers")
	}
}
