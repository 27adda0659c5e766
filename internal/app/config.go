package app

import (
	"os"
	"strconv"
	"strings"

	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/internal/world"
	"github.com/qiboda/atom-sub003/logging"
)

const (
	defaultTickRate        = 15
	defaultCatchupMaxTicks = 2
	defaultCommandCapacity = 256
	defaultPerOwnerLimit   = 32
	defaultHTTPAddr        = ":8080"
	defaultEventFeedAddr   = ":8081"
)

// Config collects every knob the server reads at startup.
type Config struct {
	Loop         sim.LoopConfig
	World        world.Config
	Logging      logging.Config
	CatalogPaths []string
	HTTPAddr     string
	Logger       telemetry.Logger
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Loop: sim.LoopConfig{
			TickRate:        defaultTickRate,
			CatchupMaxTicks: defaultCatchupMaxTicks,
			CommandCapacity: defaultCommandCapacity,
			PerOwnerLimit:   defaultPerOwnerLimit,
			WarningStep:     defaultCommandCapacity / 4,
		},
		World:        world.DefaultConfig(),
		Logging:      defaultLogging(),
		CatalogPaths: nil,
		HTTPAddr:     defaultHTTPAddr,
	}
}

func defaultLogging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.WebSocket.Addr = defaultEventFeedAddr
	return cfg
}

// ConfigFromEnv applies environment overrides to DefaultConfig. Invalid
// values are reported through logger and ignored.
func ConfigFromEnv(logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.Default()
	}
	cfg := DefaultConfig()
	cfg.Logger = logger

	envInt(logger, "TICK_RATE", &cfg.Loop.TickRate)
	envInt(logger, "CATCHUP_MAX_TICKS", &cfg.Loop.CatchupMaxTicks)
	if envInt(logger, "COMMAND_CAPACITY", &cfg.Loop.CommandCapacity) {
		cfg.Loop.WarningStep = cfg.Loop.CommandCapacity / 4
	}
	envInt(logger, "PER_OWNER_COMMAND_LIMIT", &cfg.Loop.PerOwnerLimit)
	envInt(logger, "MAX_OWNERS", &cfg.World.MaxOwners)
	if raw := os.Getenv("SNAPSHOT_GRAPHS"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.World.SnapshotGraphs = value
		} else {
			logger.Printf("invalid SNAPSHOT_GRAPHS=%q: %v", raw, err)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CATALOG_PATH")); raw != "" {
		cfg.CatalogPaths = splitList(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("HTTP_ADDR")); raw != "" {
		cfg.HTTPAddr = raw
	}
	if raw := strings.TrimSpace(os.Getenv("EVENT_FEED_ADDR")); raw != "" {
		cfg.Logging.WebSocket.Addr = raw
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_SINKS")); raw != "" {
		cfg.Logging.EnabledSinks = splitList(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_JSON_PATH")); raw != "" {
		cfg.Logging.JSON.FilePath = raw
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_SQLITE_PATH")); raw != "" {
		cfg.Logging.SQLite.FilePath = raw
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_MIN_SEVERITY")); raw != "" {
		if severity, ok := logging.ParseSeverity(strings.ToLower(raw)); ok {
			cfg.Logging.MinimumSeverity = severity
		} else {
			logger.Printf("invalid LOG_MIN_SEVERITY=%q", raw)
		}
	}
	return cfg
}

func envInt(logger telemetry.Logger, key string, target *int) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Printf("invalid %s=%q: %v", key, raw, err)
		return false
	}
	if value < 0 {
		logger.Printf("invalid %s=%q: must not be negative", key, raw)
		return false
	}
	*target = value
	return true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
