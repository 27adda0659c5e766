package simulation

import (
	"context"

	"github.com/qiboda/atom-sub003/logging"
)

const (
	// EventTickOverrun is emitted when one simulation step takes longer than
	// the tick interval.
	EventTickOverrun logging.EventType = "simulation.tick_overrun"
	// EventTicksSkipped is emitted when the loop falls so far behind that it
	// drops simulated time instead of catching up.
	EventTicksSkipped logging.EventType = "simulation.ticks_skipped"
)

// TickOverrunPayload captures timing details for a slow step.
type TickOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// TickOverrun publishes a warning for a slow step.
func TickOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickOverrun,
		Tick:     tick,
		Actor:    logging.Ref(logging.EntityKindWorld, "world"),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	})
}

// TicksSkippedPayload reports how many steps were dropped.
type TicksSkippedPayload struct {
	Skipped  uint64 `json:"skipped"`
	MaxSteps int    `json:"maxSteps"`
}

// TicksSkipped publishes a warning for dropped simulated time.
func TicksSkipped(ctx context.Context, pub logging.Publisher, tick uint64, payload TicksSkippedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTicksSkipped,
		Tick:     tick,
		Actor:    logging.Ref(logging.EntityKindWorld, "world"),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	})
}
