// Package app wires the effect graph runtime into a process: logging router
// and sinks, catalog, world, tick loop, HTTP API and event feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/qiboda/atom-sub003/internal/catalog"
	"github.com/qiboda/atom-sub003/internal/content"
	"github.com/qiboda/atom-sub003/internal/httpapi"
	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/internal/world"
	"github.com/qiboda/atom-sub003/logging"
)

const shutdownTimeout = 5 * time.Second

// App is one assembled server. Build it with New, drive it with Run.
type App struct {
	cfg     Config
	logger  telemetry.Logger
	metrics *logging.Metrics
	router  *logging.Router
	sinks   builtSinks

	tags    *tag.Table
	catalog *catalog.Resolver
	world   *world.World
	loop    *sim.Loop
	http    *httpapi.Server
	feed    *http.Server

	overrunStreak uint64
}

// New builds every component without starting any goroutine besides the
// logging router workers.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	fallback := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallback = candidate
		}
	}

	a := &App{cfg: cfg, logger: logger, metrics: &logging.Metrics{}}

	built, err := buildSinks(cfg.Logging, fallback)
	if err != nil {
		return nil, err
	}
	a.sinks = built
	router, err := logging.NewRouter(logging.SystemClock{}, cfg.Logging, built.named,
		logging.WithMetrics(a.metrics),
		logging.WithFallbackLogger(fallback),
	)
	if err != nil {
		built.closeAll(context.Background())
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	a.router = router

	if err := a.buildWorld(); err != nil {
		a.closeRouter(context.Background())
		return nil, err
	}

	metrics := telemetry.WrapMetrics(a.metrics)
	a.loop = sim.NewLoop(a.world, cfg.Loop, sim.Deps{
		Logger:  logger,
		Metrics: metrics,
		Clock:   logging.SystemClock{},
	}, sim.LoopHooks{
		NextTick:       func() uint64 { return a.world.Tick() + 1 },
		AfterStep:      a.afterStep,
		OnCommandDrop:  a.commandDropped,
		OnQueueWarning: a.queueWarning,
	})

	var opts []httpapi.Option
	if built.journal != nil {
		opts = append(opts, httpapi.WithJournal(built.journal))
	}
	opts = append(opts, httpapi.WithMetrics(a.metrics))
	a.http = httpapi.New(a.world, a.loop, logger, opts...)

	if built.feed != nil && cfg.Logging.WebSocket.Addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/events", built.feed.Handle)
		a.feed = &http.Server{Addr: cfg.Logging.WebSocket.Addr, Handler: mux}
	}
	return a, nil
}

func (a *App) buildWorld() error {
	a.tags = tag.NewTable()
	templates, err := content.Default(a.tags)
	if err != nil {
		return fmt.Errorf("failed to build graph templates: %w", err)
	}
	paths := a.cfg.CatalogPaths
	if len(paths) == 0 {
		paths = catalog.DefaultPaths()
	}
	resolver, err := catalog.Load(a.tags, templates, a.logger, paths...)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	a.catalog = resolver

	w, err := world.New(a.cfg.World, world.Deps{
		Publisher: a.router,
		Logger:    a.logger,
		Metrics:   telemetry.WrapMetrics(a.metrics),
		Tags:      a.tags,
		Library:   resolver.Library(),
	})
	if err != nil {
		return err
	}
	for _, seed := range resolver.Owners() {
		if _, err := w.AddOwner(seed.ID, seed.Archetype, seed.Abilities...); err != nil {
			return fmt.Errorf("failed to seed owner %q: %w", seed.ID, err)
		}
	}
	w.Publish()
	a.world = w
	a.logger.Printf("catalog loaded: %d abilities, %d buffs, %d owners",
		len(resolver.Library().AbilityIDs()), len(resolver.Library().BuffIDs()), len(resolver.Owners()))
	return nil
}

// World returns the simulated world.
func (a *App) World() *world.World { return a.world }

// Loop returns the tick loop.
func (a *App) Loop() *sim.Loop { return a.loop }

// HTTP returns the API server.
func (a *App) HTTP() *httpapi.Server { return a.http }

// Metrics returns the process counters.
func (a *App) Metrics() *logging.Metrics { return a.metrics }

// Run starts the tick loop and the listeners, and blocks until ctx is done
// or a listener fails. Everything is shut down before it returns.
func (a *App) Run(ctx context.Context) error {
	stop := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(stop)
	}()

	errCh := make(chan error, 2)
	go func() {
		a.logger.Printf("http api listening on %s", a.cfg.HTTPAddr)
		if err := a.http.Listen(a.cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("http api failed: %w", err)
		}
	}()
	if a.feed != nil {
		go func() {
			a.logger.Printf("event feed listening on %s", a.feed.Addr)
			if err := a.feed.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("event feed failed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	close(stop)
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Printf("failed to stop http api: %v", err)
	}
	if a.feed != nil {
		if err := a.feed.Shutdown(shutdownCtx); err != nil {
			a.logger.Printf("failed to stop event feed: %v", err)
		}
	}
	a.closeRouter(shutdownCtx)
	return runErr
}

// Close releases the router and sinks of an App that was never run.
func (a *App) Close(ctx context.Context) error {
	return a.closeRouter(ctx)
}

func (a *App) closeRouter(ctx context.Context) error {
	if a.router == nil {
		return a.sinks.closeAll(ctx)
	}
	err := a.router.Close(ctx)
	if err != nil {
		a.logger.Printf("failed to close logging router: %v", err)
	}
	a.sinks.closeFiles()
	return err
}

// Run builds the server from the environment and runs it until ctx is done.
func Run(ctx context.Context) error {
	logger := telemetry.WrapLogger(log.Default())
	a, err := New(ConfigFromEnv(logger))
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func (a *App) queueWarning(length int) {
	a.logger.Printf("[backpressure] command queues holding %d commands", length)
}
