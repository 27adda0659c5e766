package app

import (
	"context"

	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/diagnostics"
	"github.com/qiboda/atom-sub003/logging/simulation"
)

const (
	metricTickDurationMicros = "sim_tick_duration_us"
	metricTickOverruns       = "sim_tick_overruns_total"
	metricTicksSkipped       = "sim_ticks_skipped_total"
	metricLoopDrops          = "sim_commands_dropped_total"
)

func (a *App) afterStep(result sim.StepResult) {
	a.metrics.TelemetryStore(metricTickDurationMicros, uint64(result.Duration.Microseconds()))

	if result.Overran() {
		a.overrunStreak++
		a.metrics.TelemetryAdd(metricTickOverruns, 1)
		ratio := float64(result.Duration) / float64(result.Budget)
		simulation.TickOverrun(context.Background(), a.router, result.Tick, simulation.TickOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          ratio,
			Streak:         a.overrunStreak,
		}, nil)
	} else {
		a.overrunStreak = 0
	}

	if result.SkippedTicks > 0 {
		a.metrics.TelemetryAdd(metricTicksSkipped, uint64(result.SkippedTicks))
		simulation.TicksSkipped(context.Background(), a.router, result.Tick, simulation.TicksSkippedPayload{
			Skipped:  uint64(result.SkippedTicks),
			MaxSteps: a.cfg.Loop.CatchupMaxTicks,
		}, nil)
	}
}

func (a *App) commandDropped(reason string, cmd sim.Command) {
	a.metrics.TelemetryAdd(metricLoopDrops, 1)
	diagnostics.CommandRejected(context.Background(), a.router, cmd.OriginTick, logging.Ref(logging.EntityKindOwner, cmd.Owner), diagnostics.CommandRejectedPayload{
		Command: string(cmd.Kind),
		Target:  string(cmd.Target) + ":" + cmd.Definition,
		Reason:  reason,
	}, map[string]any{"stage": "enqueue"})
}
