// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motorlot/marketplace/internal/config"
	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/emailqueue"
	"github.com/motorlot/marketplace/internal/identity"
	identitypostgres "github.com/motorlot/marketplace/internal/identity/postgres"
	"github.com/motorlot/marketplace/internal/messaging"
	messagingpostgres "github.com/motorlot/marketplace/internal/messaging/postgres"
	"github.com/motorlot/marketplace/internal/moderation"
	moderationpostgres "github.com/motorlot/marketplace/internal/moderation/postgres"
	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
	"github.com/motorlot/marketplace/internal/pkg/httputil"
	"github.com/motorlot/marketplace/internal/pkg/metrics"
	"github.com/motorlot/marketplace/internal/version"
)

const dbMetricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	queue         *Queue
	notifier      *emailqueue.Notifier

	backgroundCancel context.CancelFunc
	background       sync.WaitGroup
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := Connect(context.Background(), cfg.Database)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	metrics.RecordBuildInfo(version.Version, version.GitCommit, version.BuildDate)

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		queue:  queue,
	}

	router, err := app.setupRouter()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
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

	return app, nil
}

// Run starts the background loops and the HTTP servers.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.backgroundCancel = cancel

	a.background.Add(2)
	go func() {
		defer a.background.Done()
		metrics.CollectDBPoolMetrics(ctx, a.db, dbMetricsInterval)
	}()
	go func() {
		defer a.background.Done()
		a.maintainQueue(ctx)
	}()

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
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight notifications
// are drained before the database is closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	if a.backgroundCancel != nil {
		a.backgroundCancel()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

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

	a.background.Wait()
	a.notifier.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Queue returns the email queue components. Used in tests.
func (a *App) Queue() *Queue {
	return a.queue
}

// Notifier returns the application notifier. Used in tests to wait for dispatches.
func (a *App) Notifier() *emailqueue.Notifier {
	return a.notifier
}

// maintainQueue fails entries abandoned by crashed sweeps and refreshes the
// queue gauges. Sending is left to the triggers.
func (a *App) maintainQueue(ctx context.Context) {
	interval := a.config.Queue.MaintenanceInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.config.Queue.StaleAfter > 0 {
				if _, err := a.queue.Manager.RecoverStale(ctx, a.config.Queue.StaleAfter); err != nil {
					a.logger.Error("failed to recover stale queue entries", "error", err)
				}
			}
			if _, err := a.queue.Manager.Stats(ctx); err != nil {
				a.logger.Error("failed to get queue stats", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	profiles := identitypostgres.NewRepository(a.db)

	a.notifier = emailqueue.NewNotifier(
		a.queue.Manager,
		a.queue.Renderer,
		a.queue.Sender,
		profiles,
		emailqueue.NotifierConfig{
			BaseURL:         a.config.App.BaseURL,
			DispatchTimeout: a.config.Queue.SendTimeout,
		},
	)

	tokens, err := identity.NewTokenValidator(identity.TokenConfig{
		Secret: a.config.Auth.JWTSecret,
		Issuer: a.config.Auth.Issuer,
		Leeway: 30 * time.Second,
	}, profiles)
	if err != nil {
		return nil, fmt.Errorf("create token validator: %w", err)
	}

	identityHandler := identity.NewHandler(identity.NewService(profiles, a.notifier), a.config.Auth.WebhookSecret)

	moderationService := moderation.NewService(
		moderationpostgres.NewRepository(a.db),
		profiles,
		a.notifier,
		moderation.Config{
			ListingTTL:   a.config.Moderation.ListingTTL,
			ExpiryNotice: a.config.Moderation.ExpiryNotice,
		},
	)
	moderationHandler := moderation.NewHandler(moderationService)

	messagingService := messaging.NewService(messagingpostgres.NewRepository(a.db), profiles, a.notifier)
	messagingHandler := messaging.NewHandler(messagingService)

	queueHandler := emailqueue.NewHandler(a.queue.Manager, a.config.Queue.RetentionDays)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterWebhookRoutes(r)

		r.Route("/cron", func(r chi.Router) {
			r.Use(httputil.SharedSecretMiddleware(a.config.Cron.SecretHash))
			queueHandler.RegisterCronRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(tokens))

			identityHandler.RegisterRoutes(r)
			messagingHandler.RegisterRoutes(r)
			moderationHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				moderationHandler.RegisterAdminRoutes(r)
				queueHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
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
