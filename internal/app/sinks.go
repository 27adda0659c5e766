package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

// builtSinks keeps the concrete sinks the rest of the app talks to directly.
type builtSinks struct {
	named   []logging.NamedSink
	journal *sinks.SQLite
	feed    *sinks.WebSocket
	files   []*os.File
}

func buildSinks(cfg logging.Config, fallback *log.Logger) (builtSinks, error) {
	var built builtSinks
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			built.named = append(built.named, logging.NamedSink{Name: name, Sink: sinks.NewConsole(os.Stdout)})
		case "json":
			path := cfg.JSON.FilePath
			if path == "" {
				path = filepath.Join("logs", "events.ndjson")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				built.closeAll(context.Background())
				return builtSinks{}, fmt.Errorf("json sink: create dir: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				built.closeAll(context.Background())
				return builtSinks{}, fmt.Errorf("json sink: %w", err)
			}
			built.files = append(built.files, file)
			built.named = append(built.named, logging.NamedSink{Name: name, Sink: sinks.NewJSON(file, cfg.JSON.FlushInterval)})
		case "sqlite":
			path := cfg.SQLite.FilePath
			if path == "" {
				path = filepath.Join("logs", "events.db")
			}
			journal, err := sinks.NewSQLite(path)
			if err != nil {
				built.closeAll(context.Background())
				return builtSinks{}, err
			}
			built.journal = journal
			built.named = append(built.named, logging.NamedSink{Name: name, Sink: journal})
		case "websocket":
			built.feed = sinks.NewWebSocket(cfg.WebSocket, fallback)
			built.named = append(built.named, logging.NamedSink{Name: name, Sink: built.feed})
		default:
			fallback.Printf("unknown log sink %q ignored", name)
		}
	}
	return built, nil
}

func (b builtSinks) closeAll(ctx context.Context) error {
	var firstErr error
	for _, named := range b.named {
		if err := named.Sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closeFiles()
	return firstErr
}

func (b builtSinks) closeFiles() {
	for _, f := range b.files {
		f.Close()
	}
}
