package ability

import (
	"context"

	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/logging"
)

// Env carries the services every owner shares: event publishing, plain
// logs, the tag table for readable names and the current tick.
type Env struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Tags      *tag.Table
	tick      uint64
}

// NewEnv fills nil services with no-op or default implementations.
func NewEnv(pub logging.Publisher, logger telemetry.Logger, tags *tag.Table) *Env {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	if tags == nil {
		tags = tag.NewTable()
	}
	return &Env{Publisher: pub, Logger: logger, Tags: tags}
}

// SetTick records the tick events are stamped with.
func (e *Env) SetTick(tick uint64) { e.tick = tick }

// Tick returns the current tick.
func (e *Env) Tick() uint64 { return e.tick }

func (e *Env) ctx() context.Context { return context.Background() }

func (e *Env) format(t tag.LayerTag) string { return t.Format(e.Tags) }
