package logging

import "time"

// Config tunes the router and selects sinks.
type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	SQLite           SQLiteConfig
	WebSocket        WebSocketConfig
	DropWarnInterval time.Duration
}

// JSONConfig configures the NDJSON file sink.
type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

// SQLiteConfig configures the sqlite event journal sink.
type SQLiteConfig struct {
	FilePath string
}

// WebSocketConfig configures the live event feed sink.
type WebSocketConfig struct {
	Addr       string
	WriteWait  time.Duration
	MaxClients int
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
		WebSocket: WebSocketConfig{
			WriteWait:  5 * time.Second,
			MaxClients: 16,
		},
	}
}

// HasSink reports whether name is enabled.
func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

// CloneFields copies the static fields attached to every event.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return cloneMap(c.Fields)
}
