package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/depreg/pkg/audit"
	"github.com/platinummonkey/depreg/pkg/config"
	"github.com/platinummonkey/depreg/pkg/dependencies"
	"github.com/platinummonkey/depreg/pkg/httputil"
	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/storage/factory"
)

// maxRequestBytes bounds request bodies accepted by the API
const maxRequestBytes = 1 << 20

func newServeCommand(a *app) *Command {
	cmd := &Command{
		Name:        "serve",
		Description: "Serve the registry over HTTP",
		Flags:       newFlagSet(a, "serve"),
	}

	configFile := cmd.Flags.String("config", "", "YAML configuration file (default $"+config.ConfigFileEnv+")")
	listen := cmd.Flags.String("listen", "", "Listen address (default from configuration)")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}

		sf := &storeFlags{configFile: *configFile}
		cfg, err := sf.loadConfig()
		if err != nil {
			return err
		}
		if *listen != "" {
			cfg.Server.ListenAddr = *listen
		}

		logger := observability.NewLogger(cfg.Observability.LogLevel, a.stderr)
		srv, err := newServer(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		srv.configFile = sf.configPath()
		return srv.run(context.Background())
	}

	return cmd
}

// server is the HTTP API with the store it serves
type server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	store      storage.ProviderStore
	auditor    audit.Logger
	limiter    *httputil.RateLimiter
	otel       *observability.OTelProviders
	httpServer *http.Server

	// configFile is watched for log level changes when set
	configFile string
}

// newServer opens the store and builds the routed, instrumented handler
func newServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*server, error) {
	router := mux.NewRouter()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, Version, logger)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics = observability.NewMetrics(reg)

		observability.RegisterMetricsEndpoint(router, reg)
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	auditor, err := openAuditLogger(cfg, logger)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	store, err := factory.Open(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		auditor.Close()
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	registry := newRegistry(cfg, store, auditor, logger)

	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(store, store.Name(), Version))
	dependencies.NewHandlers(registry).RegisterRoutes(router)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	}

	var limiter *httputil.RateLimiter
	if cfg.Server.RateLimit.Enabled() {
		limiter = httputil.NewRateLimiter(cfg.Server.RateLimit)
		middlewares = append(middlewares, httputil.RateLimitMiddleware(limiter))
	}

	middlewares = append(middlewares,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)
	handler := otelhttp.NewHandler(httputil.Chain(middlewares...)(router), "depreg",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeName(router, r)
		}),
	)

	return &server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		auditor: auditor,
		limiter: limiter,
		otel:    providers,
		httpServer: &http.Server{
			Addr:         cfg.Server.ListenAddr,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}, nil
}

// routeName returns the matched route template, or the raw path when no
// route matches
func routeName(router *mux.Router, r *http.Request) string {
	var match mux.RouteMatch
	if router.Match(r, &match) && match.Route != nil {
		if tmpl, err := match.Route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// run serves until ctx is canceled, the process is signaled or the listener
// fails, then shuts the server down and closes the store
func (s *server) run(ctx context.Context) error {
	shutdown := observability.NewShutdownManager(s.logger, s.httpServer, s.cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return s.store.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return s.auditor.Close()
	})
	shutdown.RegisterShutdownFunc(s.otel.Shutdown)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if s.limiter != nil {
		s.limiter.StartCleanup(gctx)
	}

	if s.configFile != "" {
		watcher, err := config.NewWatcher(s.configFile)
		if err != nil {
			s.logger.WithError(err).Warn("Configuration file will not be reloaded")
		} else {
			g.Go(s.guard("config watcher", func() error {
				return watcher.Run(gctx, s.reload, func(err error) {
					s.logger.WithError(err).Warn("Configuration reload failed")
				})
			}))
		}
	}

	g.Go(s.guard("http server", func() error {
		s.logger.WithFields(logrus.Fields{
			"addr":    s.httpServer.Addr,
			"backend": s.store.Name(),
			"version": Version,
		}).Info("Starting depreg server")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}))

	g.Go(s.guard("shutdown manager", func() error {
		defer cancel()
		return shutdown.WaitForShutdown(gctx)
	}))

	return g.Wait()
}

// guard turns a panic in fn into an error, which cancels the group and shuts
// the server down
func (s *server) guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer observability.RecoverPanicWithCallback(s.logger, name, func() {
			err = fmt.Errorf("%s panicked", name)
		})
		return fn()
	}
}

// reload applies the settings that can change without a restart
func (s *server) reload(cfg *config.Config) {
	defer observability.RecoverPanic(s.logger, "config reload")

	level, err := logrus.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return
	}
	if level != s.logger.GetLevel() {
		s.logger.SetLevel(level)
		s.logger.WithField("level", level.String()).Info("Log level changed")
	}
}
