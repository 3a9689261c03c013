package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/api"
	"github.com/tejusbharadwaj/rtclient/internal/auth"
	"github.com/tejusbharadwaj/rtclient/internal/catalog"
	"github.com/tejusbharadwaj/rtclient/internal/config"
	"github.com/tejusbharadwaj/rtclient/internal/query"
	"github.com/tejusbharadwaj/rtclient/internal/scheduler"
	"github.com/tejusbharadwaj/rtclient/internal/transport"
	middleware "github.com/tejusbharadwaj/rtclient/internal/transport/middlewares"
)

// Command rtclient reads recent values for every measurement exposed by a
// PowerP realtime API tenant.
//
// It fetches the measurement catalog, groups measurements by database and
// default aggregation, and queries each group in blocks over the lookback
// window, printing the values as they arrive.
//
// Usage:
//
//	rtclient [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (optional; POWERP_* environment variables also apply)
//	-output string
//	      output format: text, json or yaml (default "text")
//	-block-size int
//	      measurements per query, at most 20
//	-lookback duration
//	      how far back to query
//	-watch
//	      keep running and re-query on the configured schedule
//	-schedule string
//	      cron schedule for -watch
//	-metrics-addr string
//	      serve Prometheus metrics on this address
func main() {
	// Parse command line flags
	opts := parseFlags()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	// Load configuration
	appConfig, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	opts.apply(appConfig)
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logger
	logger, err := appConfig.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	registry := prometheus.NewRegistry()
	a, err := newApp(appConfig, logger, registry, os.Stdout, opts.Output)
	if err != nil {
		logger.Fatalf("Failed to set up client: %v", err)
	}

	// Create a context that will be canceled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(ctx, cancel, logger)

	if appConfig.Metrics.Addr != "" {
		go serveMetrics(ctx, appConfig.Metrics.Addr, registry, logger)
	}

	logger.WithFields(logrus.Fields{
		"base_url":  appConfig.API.BaseURL,
		"auth_mode": appConfig.AuthMode(),
		"lookback":  appConfig.Query.Lookback.String(),
	}).Info("Starting collection")

	if !opts.Watch {
		stats, err := a.collect(ctx)
		if err != nil {
			logger.Fatalf("Collection failed: %v", err)
		}
		if stats.failedBlocks > 0 {
			logger.WithField("failed_blocks", stats.failedBlocks).Error("Some blocks failed")
			os.Exit(1)
		}
		return
	}

	sched := scheduler.NewScheduler(ctx, func(ctx context.Context) error {
		_, err := a.collect(ctx)
		return err
	}, logger)
	sched.SetTimeout(appConfig.Scheduler.Timeout)

	if _, err := a.collect(ctx); err != nil {
		logger.WithError(err).Error("Initial collection failed")
	}
	if err := sched.Start(appConfig.Scheduler.Schedule); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	<-ctx.Done()
	sched.Stop()
	logger.Println("Scheduler stopped")
}

type options struct {
	ConfigPath  string
	Output      string
	BlockSize   int
	Lookback    time.Duration
	Watch       bool
	Schedule    string
	MetricsAddr string
}

func parseFlags() *options {
	opts := &options{}

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&opts.Output, "output", outputText, "Output format: text, json or yaml")
	flag.IntVar(&opts.BlockSize, "block-size", 0, "Measurements per query, at most 20")
	flag.DurationVar(&opts.Lookback, "lookback", 0, "How far back to query")
	flag.BoolVar(&opts.Watch, "watch", false, "Re-query on the configured schedule")
	flag.StringVar(&opts.Schedule, "schedule", "", "Cron schedule for -watch")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	flag.Parse()

	return opts
}

// apply overrides configuration values with flags that were set.
func (o *options) apply(cfg *config.Config) {
	if o.BlockSize > 0 {
		cfg.Query.BlockSize = o.BlockSize
	}
	if o.Lookback > 0 {
		cfg.Query.Lookback = o.Lookback
	}
	if o.Schedule != "" {
		cfg.Scheduler.Schedule = o.Schedule
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
}

type app struct {
	cfg          *config.Config
	logger       logrus.FieldLogger
	client       *api.Client
	catalog      *catalog.Catalog
	orchestrator *query.Orchestrator
	printer      *printer
	now          func() time.Time
}

type collectStats struct {
	groups       int
	blocks       int
	values       int
	failedBlocks int
}

func newApp(cfg *config.Config, logger *logrus.Logger, reg prometheus.Registerer, out io.Writer, format string) (*app, error) {
	p, err := newPrinter(out, format)
	if err != nil {
		return nil, err
	}

	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register transport metrics: %w", err)
	}

	// One HTTP client serves both the token exchange and data calls.
	httpClient := transport.NewHTTPClient(cfg.API.Timeout,
		middleware.RequestID(),
		middleware.RateLimiter(middleware.NewLimiter(cfg.Transport.RateLimit, cfg.Transport.RateLimitBurst)),
		middleware.Logging(logger),
		metrics.Middleware(),
	)

	creds, err := newProvider(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg.API.BaseURL, creds,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(client, cfg.Catalog.CacheSize, logger)
	if err != nil {
		return nil, err
	}

	orch, err := query.NewOrchestrator(client, query.Config{
		BlockSize:    cfg.Query.BlockSize,
		MaxBlockSize: query.MaxBlockSize,
		WindowPeriod: cfg.Query.WindowPeriod,
		MaxWindow:    cfg.Query.MaxWindow,
	}, query.WithLogger(logger), query.WithMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		catalog:      cat,
		orchestrator: orch,
		printer:      p,
		now:          time.Now,
	}, nil
}

func newProvider(cfg *config.Config, httpClient *http.Client, logger logrus.FieldLogger) (auth.Provider, error) {
	if cfg.AuthMode() == config.AuthModeAPIKey {
		key, err := auth.NewStaticKey(cfg.API.APIKey)
		if err != nil {
			return nil, err
		}
		return key, nil
	}
	base, err := transport.ParseBaseURL(cfg.API.BaseURL)
	if err != nil {
		return nil, err
	}
	token, err := auth.NewExchangedToken(base, cfg.API.ClientID, cfg.API.ClientSecret, httpClient, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return token, nil
}

// collect authenticates, refreshes the catalog and queries every group over
// the lookback window. Failed blocks are logged and skipped; the run
// continues.
func (a *app) collect(ctx context.Context) (collectStats, error) {
	var stats collectStats
	a.printer.startRun()

	if err := a.client.EnsureAuthenticated(ctx); err != nil {
		return stats, fmt.Errorf("authenticate: %w", err)
	}

	measurements, err := a.catalog.Refresh(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch measurements: %w", err)
	}

	groups := query.GroupMeasurements(measurements)
	stats.groups = len(groups)

	end := a.now().UTC()
	start := end.Add(-a.cfg.Query.Lookback)

	err = a.orchestrator.Run(ctx, groups, start, end, func(r query.BlockResult) error {
		stats.blocks++
		if r.Err != nil {
			stats.failedBlocks++
			return nil
		}
		stats.values += len(r.Values)
		return a.printer.printBlock(r, a.catalog.Resolve)
	})
	if err != nil {
		return stats, err
	}

	a.logger.WithFields(logrus.Fields{
		"groups":        stats.groups,
		"block_size":    a.orchestrator.Config().BlockSize,
		"blocks":        stats.blocks,
		"values":        stats.values,
		"failed_blocks": stats.failedBlocks,
	}).Info("Collection completed")

	return stats, nil
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics server failed")
	}
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, cancel context.CancelFunc, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigChan:
		logger.Printf("Received signal %v, initiating shutdown", sig)
	}
	cancel()
}
