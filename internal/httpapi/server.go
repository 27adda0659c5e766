// Package httpapi serves world snapshots and accepts commands over HTTP.
// Reads never touch live simulation state; they are answered from the
// snapshot published after the last tick.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/internal/world"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Snapshots supplies the latest published world view.
type Snapshots interface {
	Snapshot() *world.Snapshot
}

// Commands accepts commands for the next tick.
type Commands interface {
	Enqueue(sim.Command) (sim.Command, bool, string)
}

// Journal reads recent events back from the event store.
type Journal interface {
	Recent(ctx context.Context, eventType string, limit int) ([]sinks.JournalEntry, error)
}

// Counters exposes process metrics.
type Counters interface {
	Snapshot() map[string]uint64
}

// Option customises the server.
type Option func(*Server)

// WithJournal serves GET /events from j.
func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetrics serves GET /metrics from c.
func WithMetrics(c Counters) Option {
	return func(s *Server) { s.counters = c }
}

// Server wraps the fiber app.
type Server struct {
	app       *fiber.App
	snapshots Snapshots
	commands  Commands
	journal   Journal
	counters  Counters
	logger    telemetry.Logger
}

// New builds the routes. commands may be nil for a read-only server.
func New(snapshots Snapshots, commands Commands, logger telemetry.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = telemetry.Default()
	}
	s := &Server{
		app:       fiber.New(fiber.Config{AppName: "effectd"}),
		snapshots: snapshots,
		commands:  commands,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)
	s.app.Get("/owners", s.listOwners)
	s.app.Get("/owners/:id", s.getOwner)
	s.app.Get("/owners/:id/abilities/:ability/startable", s.getStartable)
	s.app.Get("/owners/:id/buffs/:buff", s.getBuff)
	s.app.Get("/owners/:id/graphs/:instance", s.getGraph)
	s.app.Post("/commands", s.postCommand)
	if s.journal != nil {
		s.app.Get("/events", s.listEvents)
	}
	if s.counters != nil {
		s.app.Get("/metrics", s.metrics)
	}
}

func notFound(c fiber.Ctx, what string) error {
	return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": what + " not found"})
}

func unavailable(c fiber.Ctx) error {
	return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "no snapshot published yet"})
}

func (s *Server) health(c fiber.Ctx) error {
	tick := uint64(0)
	if snap := s.snapshots.Snapshot(); snap != nil {
		tick = snap.Tick
	}
	return c.JSON(fiber.Map{"status": "ok", "tick": tick})
}

type ownerSummary struct {
	ID        string `json:"id"`
	Abilities int    `json:"abilities"`
	Buffs     int    `json:"buffs"`
	Tags      int    `json:"tags"`
}

func (s *Server) listOwners(c fiber.Ctx) error {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return c.JSON(fiber.Map{"tick": 0, "owners": []ownerSummary{}})
	}
	owners := make([]ownerSummary, 0, len(snap.Owners))
	for _, o := range snap.Owners {
		owners = append(owners, ownerSummary{
			ID:        o.ID,
			Abilities: len(o.Abilities),
			Buffs:     len(o.Buffs),
			Tags:      len(o.Tags),
		})
	}
	return c.JSON(fiber.Map{"tick": snap.Tick, "owners": owners})
}

func (s *Server) getOwner(c fiber.Ctx) error {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return unavailable(c)
	}
	owner, ok := snap.Owner(c.Params("id"))
	if !ok {
		return notFound(c, "owner")
	}
	return c.JSON(owner)
}

func (s *Server) getStartable(c fiber.Ctx) error {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return unavailable(c)
	}
	if _, ok := snap.Owner(c.Params("id")); !ok {
		return notFound(c, "owner")
	}
	a, ok := snap.Ability(c.Params("id"), c.Params("ability"))
	if !ok {
		return notFound(c, "ability")
	}
	return c.JSON(fiber.Map{
		"tick":      snap.Tick,
		"owner":     c.Params("id"),
		"ability":   a.Definition,
		"state":     a.State,
		"startable": a.Startable,
	})
}

func (s *Server) getBuff(c fiber.Ctx) error {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return unavailable(c)
	}
	if _, ok := snap.Owner(c.Params("id")); !ok {
		return notFound(c, "owner")
	}
	b, ok := snap.Buff(c.Params("id"), c.Params("buff"))
	if !ok {
		return notFound(c, "buff")
	}
	return c.JSON(b)
}

func (s *Server) getGraph(c fiber.Ctx) error {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return unavailable(c)
	}
	if _, ok := snap.Owner(c.Params("id")); !ok {
		return notFound(c, "owner")
	}
	g, ok := snap.Graph(c.Params("id"), c.Params("instance"))
	if !ok {
		return notFound(c, "graph")
	}
	return c.JSON(g)
}

type commandRequest struct {
	Kind       string `json:"kind"`
	Owner      string `json:"owner"`
	Caster     string `json:"caster"`
	Target     string `json:"target"`
	Definition string `json:"definition"`
	Count      int    `json:"count"`
}

func (s *Server) postCommand(c fiber.Ctx) error {
	if s.commands == nil {
		return c.Status(http.StatusMethodNotAllowed).JSON(fiber.Map{"error": "commands are disabled"})
	}
	var req commandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	cmd := sim.Command{
		Kind:       sim.CommandKind(req.Kind),
		Owner:      req.Owner,
		Caster:     req.Caster,
		Target:     sim.TargetKind(req.Target),
		Definition: req.Definition,
		Count:      req.Count,
	}
	if err := cmd.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "reason": sim.CommandRejectInvalid})
	}
	accepted, ok, reason := s.commands.Enqueue(cmd)
	if !ok {
		s.logger.Printf("[http] command %s for %s rejected: %s", cmd.Kind, cmd.Owner, reason)
		status := http.StatusTooManyRequests
		if reason == sim.CommandRejectInvalid {
			status = http.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": "command rejected", "reason": reason})
	}
	return c.Status(http.StatusAccepted).JSON(accepted)
}

func (s *Server) listEvents(c fiber.Ctx) error {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = min(value, maxEventLimit)
	}
	entries, err := s.journal.Recent(c.Context(), c.Query("type"), limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if entries == nil {
		entries = []sinks.JournalEntry{}
	}
	return c.JSON(fiber.Map{"events": entries})
}

func (s *Server) metrics(c fiber.Ctx) error {
	return c.JSON(s.counters.Snapshot())
}
