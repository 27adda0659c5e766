package sim

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/logging"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-owner
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the queue for the command kind is
	// saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectInvalid indicates the command failed validation.
	CommandRejectInvalid = "invalid"
)

// LoopConfig tunes the command queues and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerOwnerLimit   int
	WarningStep     int
}

// Engine consumes the commands drained for one tick and advances the
// simulation by ctx.Delta.
type Engine interface {
	Step(ctx TickContext, commands []Command)
}

// TickContext describes one simulation step.
type TickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// StepResult summarises one executed step for hooks.
type StepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Commands     []Command
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	SkippedTicks int
}

// Overran reports whether the step took longer than its budget.
func (r StepResult) Overran() bool {
	return r.Budget > 0 && r.Duration > r.Budget
}

// LoopHooks lets the caller observe the loop without subclassing it.
type LoopHooks struct {
	NextTick       func() uint64
	Prepare        func(TickContext)
	AfterStep      func(StepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// Loop coordinates command ingestion and the fixed-timestep simulation runner.
type Loop struct {
	engine  Engine
	queues  *Queues
	hooks   LoopHooks
	config  LoopConfig
	deps    Deps
	logger  telemetry.Logger
	metrics telemetry.Metrics

	queueMu       sync.Mutex
	perOwnerCount map[string]int
	dropCounts    map[string]uint64
	tick          uint64
}

// NewLoop wraps engine with per-kind command queues and a ticker.
func NewLoop(engine Engine, cfg LoopConfig, deps Deps, hooks LoopHooks) *Loop {
	if engine == nil {
		return nil
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.Default()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Loop{
		engine:        engine,
		queues:        NewQueues(cfg.CommandCapacity, deps.Metrics),
		hooks:         hooks,
		config:        cfg,
		deps:          deps,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		perOwnerCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}
}

// Deps returns the injected dependencies.
func (l *Loop) Deps() Deps {
	if l == nil {
		return Deps{}
	}
	return l.deps
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.queues.Len()
}

// DrainCommands clears the staged command queues without advancing the
// engine.
func (l *Loop) DrainCommands() []Command {
	if l == nil {
		return nil
	}
	return l.drainCommands()
}

// Enqueue stages a command, enforcing validation, per-owner throttling and
// capacity limits. Commands without an id get one.
func (l *Loop) Enqueue(cmd Command) (Command, bool, string) {
	if l == nil {
		return cmd, false, CommandRejectQueueFull
	}
	if err := cmd.Validate(); err != nil {
		l.reportDrop(CommandRejectInvalid, cmd, 0)
		return cmd, false, CommandRejectInvalid
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.deps.Clock.Now()
	}

	reason := ""
	var dropCount uint64
	l.queueMu.Lock()
	cmd.OriginTick = l.tick
	if l.config.PerOwnerLimit > 0 {
		count := l.perOwnerCount[cmd.Owner]
		if count >= l.config.PerOwnerLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.Owner)
		} else {
			l.perOwnerCount[cmd.Owner] = count + 1
		}
	}
	if reason == "" {
		if !l.queues.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.Owner)
			if l.config.PerOwnerLimit > 0 {
				l.perOwnerCount[cmd.Owner]--
			}
		} else if l.config.WarningStep > 0 {
			length := l.queues.Len()
			if length >= l.config.WarningStep && length%l.config.WarningStep == 0 {
				l.queueMu.Unlock()
				l.warnQueue(length)
				return cmd, true, ""
			}
		}
	}
	l.queueMu.Unlock()
	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return cmd, false, reason
	}
	return cmd, true, ""
}

// Advance executes a single simulation step using the staged commands.
func (l *Loop) Advance(ctx TickContext) StepResult {
	if l == nil {
		return StepResult{}
	}
	l.queueMu.Lock()
	l.tick = ctx.Tick
	l.queueMu.Unlock()

	commands := l.drainCommands()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	l.engine.Step(ctx, commands)
	return StepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
		Commands: commands,
	}
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	clock := l.deps.Clock
	last := clock.Now()
	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}
	budgetDuration := time.Second / time.Duration(tickRate)

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			skipped := 0
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				skipped = int((dt - maxDt) / budgetSeconds)
				dt = maxDt
				clamped = true
			}
			last = now

			if l.hooks.NextTick != nil {
				tick = l.hooks.NextTick()
			} else {
				tick++
			}

			start := clock.Now()
			result := l.Advance(TickContext{Tick: tick, Now: now, Delta: dt})
			result.Duration = clock.Now().Sub(start)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			result.SkippedTicks = skipped

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	commands := l.queues.Drain()
	if len(l.perOwnerCount) > 0 {
		l.perOwnerCount = make(map[string]int)
	}
	return commands
}

func (l *Loop) incrementDropLocked(ownerID string) uint64 {
	if ownerID == "" {
		return 0
	}
	count := l.dropCounts[ownerID] + 1
	l.dropCounts[ownerID] = count
	return count
}

func (l *Loop) warnQueue(length int) {
	if l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(length)
	}
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if reason != CommandRejectInvalid && count > 0 && count&(count-1) == 0 {
		l.logger.Printf(
			"[backpressure] dropping command owner=%s kind=%s count=%d limit=%d",
			cmd.Owner,
			cmd.Kind,
			count,
			l.config.PerOwnerLimit,
		)
	}
}

// Ensure we depend on telemetry interfaces only for metric plumbing.
var _ telemetryMetrics = (telemetry.Metrics)(nil)
