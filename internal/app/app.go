// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bissquit/response-garden/internal/audit"
	auditmem "github.com/bissquit/response-garden/internal/audit/memstore"
	auditpg "github.com/bissquit/response-garden/internal/audit/postgres"
	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/bus/membus"
	"github.com/bissquit/response-garden/internal/bus/natsbus"
	"github.com/bissquit/response-garden/internal/config"
	"github.com/bissquit/response-garden/internal/decision"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
	"github.com/bissquit/response-garden/internal/pkg/httputil"
	"github.com/bissquit/response-garden/internal/pkg/metrics"
	"github.com/bissquit/response-garden/internal/pkg/postgres"
	"github.com/bissquit/response-garden/internal/quarantine"
	quarantinemem "github.com/bissquit/response-garden/internal/quarantine/memstore"
	quarantinepg "github.com/bissquit/response-garden/internal/quarantine/postgres"
	"github.com/bissquit/response-garden/internal/response"
	responsemem "github.com/bissquit/response-garden/internal/response/memstore"
	responsepg "github.com/bissquit/response-garden/internal/response/postgres"
	"github.com/bissquit/response-garden/internal/triage"
	triagemem "github.com/bissquit/response-garden/internal/triage/memstore"
	triagepg "github.com/bissquit/response-garden/internal/triage/postgres"
	"github.com/bissquit/response-garden/internal/version"
)

// App represents the application instance: the bus consumers, the background
// sweeps and the two HTTP servers.
type App struct {
	config *config.Config
	logger *slog.Logger

	db       *pgxpool.Pool
	redis    *redis.Client
	eventBus bus.Bus

	consumers     []consumerSpec
	bridges       []*bus.Bridge
	subscriptions []bus.Subscription
	responseSvc   *response.Service
	quarantineSvc *quarantine.Service
	triageSvc     *triage.Service

	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	bgDone        chan struct{}
}

// New creates a new application instance and connects its backends.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	app := &App{
		config: cfg,
		logger: logger,
		bgDone: make(chan struct{}),
	}

	if err := app.connectBackends(cfg); err != nil {
		app.closeBackends()
		return nil, err
	}

	validator, err := bus.NewPayloadValidator()
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("compile event schemas: %w", err)
	}

	triageRepo, responseRepo, quarantineRepo, auditRepo := app.buildRepositories()

	ledger := audit.NewLedger(auditRepo)
	engine := decision.NewEngine()

	app.quarantineSvc = quarantine.NewService(quarantineRepo, app.eventBus, validator)

	var tracker triage.SourceTracker
	if app.redis != nil {
		tracker = quarantine.NewTracker(app.redis, cfg.Redis.TrackerWindow)
	}
	app.triageSvc = triage.NewService(triageRepo, engine, ledger, app.eventBus,
		validator, nil, tracker)

	registry := response.NewProviderRegistry()
	app.registerProviders(registry)

	orchestrator := response.NewOrchestrator(responseRepo, registry, app.eventBus,
		ledger, triageRepo, response.Config{
			MaxAttempts: cfg.Response.MaxAttempts,
			RetryDelay:  cfg.Response.RetryDelay,
			StepTimeout: cfg.Response.StepTimeout,
		})
	app.responseSvc, err = response.NewService(orchestrator, validator)
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("create response service: %w", err)
	}

	auditConsumer := audit.NewConsumer(ledger, validator)
	timelines := audit.NewTimelineService(auditRepo, triageRepo, responseRepo)

	app.server = &http.Server{
		Addr: fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: app.setupRouter(
			triage.NewHandler(triageRepo, app.eventBus),
			response.NewHandler(responseRepo),
			audit.NewHandler(timelines),
		),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app.consumers = []consumerSpec{
		{queue: "triage", bindings: triage.ConsumerBindings, handler: app.triageSvc.HandleIncidentReceived},
		{queue: "quarantine", bindings: quarantine.ConsumerBindings, handler: app.quarantineSvc.HandleTriageCompleted},
		{queue: "response", bindings: response.ConsumerBindings, handler: app.responseSvc.HandleTriageCompleted},
		{queue: "audit", bindings: audit.ConsumerBindings, handler: auditConsumer.HandleEvent},
	}

	return app, nil
}

type consumerSpec struct {
	queue    string
	bindings []string
	handler  bus.Handler
}

// Start launches the bus consumers and background loops without serving
// HTTP. Run calls it; tests pair it with Router and an httptest server.
func (a *App) Start() error {
	bgCtx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), a.logger))
	a.bgCancel = cancel

	if err := a.startConsumers(bgCtx); err != nil {
		cancel()
		close(a.bgDone)
		return err
	}

	go a.background(bgCtx)
	return nil
}

// Run starts the consumers, background loops and HTTP servers. Blocks until
// the main server stops.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"bus_backend", a.config.Bus.Backend,
		"database_backend", a.config.Database.Backend,
	)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// startConsumers binds one bridge-backed queue consumer per service.
func (a *App) startConsumers(ctx context.Context) error {
	for _, spec := range a.consumers {
		bridge := bus.NewBridge(spec.queue, a.config.Bus.BridgeBuffer, spec.handler)
		bridge.Start(ctx)
		a.bridges = append(a.bridges, bridge)

		sub, err := a.eventBus.Subscribe(ctx, spec.queue, spec.bindings, bridge.Enqueue)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", spec.queue, err)
		}
		a.subscriptions = append(a.subscriptions, sub)

		a.logger.Info("consumer started", "queue", spec.queue, "bindings", spec.bindings)
	}
	return nil
}

// background runs the periodic maintenance loops: DB pool metrics and the
// quarantine expiry sweep.
func (a *App) background(ctx context.Context) {
	defer close(a.bgDone)

	if a.db != nil {
		metrics.RecordDBPoolMetrics(a.db)
	}

	poolTicker := time.NewTicker(15 * time.Second)
	defer poolTicker.Stop()
	sweepTicker := time.NewTicker(a.config.Quarantine.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-poolTicker.C:
			if a.db != nil {
				metrics.RecordDBPoolMetrics(a.db)
			}
		case <-sweepTicker.C:
			if _, err := a.quarantineSvc.ExpireOverdue(ctx); err != nil {
				a.logger.Error("quarantine sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown gracefully stops the application: servers first, then consumers,
// draining the bridges and waiting for in-flight workflows.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()
	wg.Wait()

	for _, sub := range a.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	for _, bridge := range a.bridges {
		bridge.Stop()
	}
	if a.responseSvc != nil {
		a.responseSvc.Wait()
	}

	if a.bgCancel != nil {
		a.bgCancel()
		<-a.bgDone
	}

	a.closeBackends()
	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) connectBackends(cfg *config.Config) error {
	if cfg.Database.Backend == "postgres" {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		connectCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Bus.Backend == "nats" {
		natsBus, err := natsbus.Connect(natsbus.Config{
			URL:            cfg.Bus.URL,
			Name:           cfg.Bus.Name,
			ConnectTimeout: cfg.Bus.ConnectTimeout,
			MaxReconnects:  cfg.Bus.MaxReconnects,
			Prefetch:       cfg.Bus.Prefetch,
		})
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		a.eventBus = natsBus
	} else {
		a.eventBus = membus.New(cfg.Bus.BridgeBuffer)
	}

	return nil
}

func (a *App) buildRepositories() (triage.Repository, response.Repository, quarantine.Repository, audit.Repository) {
	if a.db != nil {
		return triagepg.NewRepository(a.db),
			responsepg.NewRepository(a.db),
			quarantinepg.NewRepository(a.db),
			auditpg.NewRepository(a.db)
	}
	return triagemem.NewRepository(),
		responsemem.NewRepository(),
		quarantinemem.NewRepository(),
		auditmem.NewRepository()
}

// registerProviders binds the containment steps to their effectors. block_ip
// reuses the quarantine store; the host-level actions log their intent until
// an EDR integration is configured.
func (a *App) registerProviders(registry *response.ProviderRegistry) {
	registry.Register(domain.StepBlockIP, response.ProviderFunc(
		func(ctx context.Context, input response.ActionInput) (string, error) {
			if input.SourceIP == "" {
				return "", fmt.Errorf("%w: incident has no source ip", response.ErrStepNotApplicable)
			}
			record, err := a.quarantineSvc.Quarantine(ctx, input.SourceIP,
				input.AttackType, input.ThreatLevel, input.IncidentID)
			if err != nil {
				return "", err
			}
			if record.ExpiresAt == nil {
				return fmt.Sprintf("blocked %s permanently", record.IPAddress), nil
			}
			return fmt.Sprintf("blocked %s until %s", record.IPAddress,
				record.ExpiresAt.Format(time.RFC3339)), nil
		}))

	registry.Register(domain.StepQuarantineHost, response.ProviderFunc(
		func(ctx context.Context, input response.ActionInput) (string, error) {
			if input.AgentID == "" {
				ctxlog.FromContext(ctx).Info("host isolation requested",
					"incident_id", input.IncidentID)
				return "host isolation requested", nil
			}
			return fmt.Sprintf("isolation requested for agent %s", input.AgentID), nil
		}))

	registry.Register(domain.StepEscalate, response.ProviderFunc(
		func(ctx context.Context, input response.ActionInput) (string, error) {
			if err := a.eventBus.Publish(ctx, domain.TopicAlertRaised, domain.AlertRaisedPayload{
				Target:   input.IncidentID,
				Message:  fmt.Sprintf("incident %s escalated to analyst", input.IncidentID),
				Severity: string(input.ThreatLevel),
			}); err != nil {
				return "", fmt.Errorf("raise escalation alert: %w", err)
			}
			return "escalated to on-call analyst", nil
		}))

	registry.Register(domain.StepCollectForensics, response.ProviderFunc(
		func(ctx context.Context, input response.ActionInput) (string, error) {
			ctxlog.FromContext(ctx).Info("forensics collection requested",
				"incident_id", input.IncidentID,
				"source_ip", input.SourceIP,
			)
			return "forensic evidence collection scheduled", nil
		}))
}

func (a *App) setupRouter(
	triageHandler *triage.Handler,
	responseHandler *response.Handler,
	auditHandler *audit.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RateLimitMiddleware(a.config.Server.IngestRPS, a.config.Server.IngestBurst))
		triageHandler.RegisterRoutes(r)
		responseHandler.RegisterRoutes(r)
		auditHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) closeBackends() {
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			a.logger.Error("close event bus", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("close redis", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
