package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/proxtrace/exposure-sync/internal/api"
	"github.com/proxtrace/exposure-sync/internal/app/storage"
	"github.com/proxtrace/exposure-sync/internal/backend"
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/exposure"
	"github.com/proxtrace/exposure-sync/internal/history"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/matching"
	statestore "github.com/proxtrace/exposure-sync/internal/storage"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/sync/coordinator"
	"github.com/proxtrace/exposure-sync/internal/telemetry"
	"github.com/proxtrace/exposure-sync/internal/tracing"
	"github.com/proxtrace/exposure-sync/internal/versions"
	"github.com/proxtrace/exposure-sync/internal/watermark"
)

const (
	defaultHTTPAddress    = "127.0.0.1:8080"
	defaultRequestTimeout = 2 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 3 * time.Minute
	defaultIdleTimeout    = 60 * time.Second

	tracerName = "github.com/proxtrace/exposure-sync/sync"
)

// MatchingEngine is what the app needs from a matching engine implementation
type MatchingEngine interface {
	matching.Engine
	matching.KeyExporter
}

// ExposureSyncAppOptions is a function that configures the app builder
type ExposureSyncAppOptions func(*appConfig) error

// appConfig collects the options of NewExposureSyncApp. It supports dependency
// injection for testing while providing production defaults.
type appConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	syncManager    pkgsync.Manager
	fetcher        backend.BatchFetcher
	engine         MatchingEngine
	reporter       backend.ExposeeReporter
	telemetry      *telemetry.Telemetry
	now            func() time.Time

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...ExposureSyncAppOptions) (*appConfig, error) {
	cfg := &appConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		now:            time.Now,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	return cfg, nil
}

// NewExposureSyncApp wires storage, transport, matching, the sync manager,
// the coordinator, the tracing client and the status API
func NewExposureSyncApp(
	ctx context.Context,
	opts ...ExposureSyncAppOptions,
) (*ExposureSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	store, err := cfg.storageFactory.CreateBackend(ctx)
	if err != nil {
		cfg.storageFactory.Cleanup()
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	ownsTelemetry := false
	defer func() {
		if cleanupNeeded {
			if closeErr := store.Close(); closeErr != nil {
				slog.Warn("Failed to close storage backend", "error", closeErr)
			}
			cfg.storageFactory.Cleanup()
			if ownsTelemetry {
				_ = cfg.telemetry.Shutdown(context.WithoutCancel(ctx))
			}
		}
	}()

	if cfg.telemetry == nil {
		cfg.telemetry, err = buildTelemetry(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		ownsTelemetry = true
	}

	components, err := buildSyncComponents(ctx, cfg, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	return &ExposureSyncApp{
		config:        cfg.config,
		components:    components,
		httpServer:    httpServer,
		storage:       cfg.storageFactory,
		ownsTelemetry: ownsTelemetry,
		ctx:           appCtx,
		cancelFunc:    cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("address is not a valid host:port: %s", addr)
		}
		host := parts[0]
		port := parts[1]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithBatchFetcher replaces the HTTP batch fetcher
func WithBatchFetcher(f backend.BatchFetcher) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithMatchingEngine replaces the configured matching engine
func WithMatchingEngine(e MatchingEngine) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.engine = e
		return nil
	}
}

// WithExposeeReporter replaces the HTTP key upload client
func WithExposeeReporter(r backend.ExposeeReporter) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.reporter = r
		return nil
	}
}

// WithTelemetry uses t instead of initializing telemetry from the configuration
func WithTelemetry(t *telemetry.Telemetry) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithClock sets the time source of the coordinator and the tracing client
func WithClock(now func() time.Time) ExposureSyncAppOptions {
	return func(cfg *appConfig) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		cfg.now = now
		return nil
	}
}

func buildTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := cfg.Telemetry
	if telCfg != nil && telCfg.ServiceVersion == "" {
		withVersion := *telCfg
		withVersion.ServiceVersion = versions.Version
		telCfg = &withVersion
	}
	return telemetry.New(ctx, telCfg)
}

// buildHTTPClient returns the transport towards the backend, using HTTP/2 with
// a client certificate when TLS is configured
func buildHTTPClient(cfg *config.BackendConfig) (httpclient.Client, error) {
	opts := []httpclient.Option{httpclient.WithUserAgent(cfg.UserAgent)}

	if tls := cfg.TLS; tls != nil && tls.CertFile != "" {
		client, err := httpclient.NewHTTP2Client(tls.CertFile, tls.KeyFile, tls.CAFile, cfg.GetTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS transport: %w", err)
		}
		opts = append(opts, httpclient.WithHTTPClient(client))
		slog.Info("Backend transport uses mutual TLS", "http2", tls.HTTP2)
	}

	return httpclient.NewDefaultClient(cfg.GetTimeout(), opts...), nil
}

func buildFetcher(
	cfg *config.Config,
	client httpclient.Client,
	calendar daybucket.Calendar,
	now func() time.Time,
) (backend.BatchFetcher, error) {
	opts := []backend.FetcherOption{
		backend.WithMaxClockSkew(cfg.Backend.GetMaxClockSkew()),
		backend.WithDeviceClock(now),
	}

	if path := cfg.Backend.SignaturePublicKeyFile; path != "" {
		verifier, err := backend.LoadSignatureVerifier(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load signature key: %w", err)
		}
		opts = append(opts, backend.WithSignatureVerifier(verifier))
		slog.Info("Batch signature verification enabled", "key_file", path)
	}

	return backend.NewFetcher(client, cfg.Backend.BucketBaseURL, calendar, opts...), nil
}

func buildMatchingEngine(cfg *config.MatchingConfig, client httpclient.Client) (MatchingEngine, error) {
	switch cfg.Engine {
	case config.EngineFixture:
		slog.Info("Using fixture matching engine")
		return matching.NewFixtureEngine(), nil
	case config.EngineRemote:
		slog.Info("Using remote matching engine", "endpoint", cfg.Endpoint)
		return matching.NewRemoteEngine(cfg.Endpoint, client), nil
	default:
		return nil, fmt.Errorf("unknown matching engine: %s", cfg.Engine)
	}
}

// buildSyncComponents builds the sync manager, the coordinator and the tracing client
func buildSyncComponents(
	_ context.Context,
	b *appConfig,
	store statestore.Backend,
) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	cfg := b.config
	calendar := cfg.Calendar.GetCalendar()

	var client httpclient.Client
	if b.fetcher == nil || b.engine == nil || b.reporter == nil {
		var err error
		client, err = buildHTTPClient(&cfg.Backend)
		if err != nil {
			return nil, err
		}
	}

	if b.fetcher == nil {
		fetcher, err := buildFetcher(cfg, client, calendar, b.now)
		if err != nil {
			return nil, err
		}
		b.fetcher = fetcher
	}

	if b.engine == nil {
		engine, err := buildMatchingEngine(&cfg.Matching, client)
		if err != nil {
			return nil, err
		}
		b.engine = engine
	}

	if b.reporter == nil {
		reportURL := cfg.Backend.ReportBaseURL
		if reportURL == "" {
			reportURL = cfg.Backend.BucketBaseURL
		}
		b.reporter = backend.NewReporter(client, reportURL)
	}

	exposures := exposure.NewStore(store, calendar, exposure.PolicyFromConfig(cfg), cfg.Exposure.DaysToKeep)
	historyLog := history.New(store,
		history.WithDevHistory(cfg.History.DevHistory),
		history.WithClock(b.now),
	)

	if b.syncManager == nil {
		managerOpts := []pkgsync.Option{
			pkgsync.WithTracer(b.telemetry.TracerProvider().Tracer(tracerName)),
		}

		syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			managerOpts = append(managerOpts, pkgsync.WithMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}

		b.syncManager = pkgsync.NewManager(pkgsync.Dependencies{
			Backend: store,
			Fetcher: b.fetcher,
			Engine:  b.engine,
			Watermarks: watermark.New(store, calendar,
				watermark.WithRetentionDays(cfg.Sync.LookbackDays+1)),
			Exposures: exposures,
			Calendar:  calendar,
		}, pkgsync.SettingsFromConfig(cfg), managerOpts...)
	}

	syncCoordinator := coordinator.New(b.syncManager, store, historyLog, cfg, coordinator.WithClock(b.now))

	tracingClient := tracing.New(tracing.Dependencies{
		Backend:     store,
		Coordinator: syncCoordinator,
		Exposures:   exposures,
		HistoryLog:  historyLog,
		Keys:        b.engine,
		Reporter:    b.reporter,
		Calendar:    calendar,
	}, cfg, tracing.WithClock(b.now))

	slog.Info("Sync components initialized successfully",
		"syncs_per_day", cfg.Sync.SyncsPerDay,
		"timezone", calendar.Location().String(),
	)

	return &AppComponents{
		SyncCoordinator: syncCoordinator,
		Client:          tracingClient,
		Backend:         store,
		Telemetry:       b.telemetry,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *appConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	var serverOpts []api.ServerOption
	if tel := components.Telemetry; tel != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(tel.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Prepend so rejected and timed out requests are measured too
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(tel.TracerProvider()),
			httpMetrics.Middleware,
		}, b.middlewares...)

		if promHandler := tel.PrometheusHandler(); promHandler != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(promHandler))
			slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
		}
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))

	router := api.NewServer(components.Client, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
