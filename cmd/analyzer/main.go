// Package main wires together the website analyzer service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/analysis/cache"
	"github.com/siteintel/analyzer/internal/api"
	"github.com/siteintel/analyzer/internal/arbiter"
	"github.com/siteintel/analyzer/internal/clock/system"
	"github.com/siteintel/analyzer/internal/config"
	"github.com/siteintel/analyzer/internal/dispatcher"
	collyfetcher "github.com/siteintel/analyzer/internal/fetcher/colly"
	"github.com/siteintel/analyzer/internal/fetcher/detector"
	"github.com/siteintel/analyzer/internal/fetcher/headless"
	"github.com/siteintel/analyzer/internal/hash/sha256"
	"github.com/siteintel/analyzer/internal/id/uuid"
	"github.com/siteintel/analyzer/internal/logging"
	"github.com/siteintel/analyzer/internal/metrics"
	"github.com/siteintel/analyzer/internal/progress"
	"github.com/siteintel/analyzer/internal/progress/sinks"
	"github.com/siteintel/analyzer/internal/provider"
	"github.com/siteintel/analyzer/internal/provider/gemini"
	"github.com/siteintel/analyzer/internal/provider/openai"
	memorypublisher "github.com/siteintel/analyzer/internal/publisher/memory"
	queueMemory "github.com/siteintel/analyzer/internal/queue/memory"
	"github.com/siteintel/analyzer/internal/runner"
	memoryStorage "github.com/siteintel/analyzer/internal/store/memory"
	"github.com/siteintel/analyzer/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// API keys commonly live in a local .env during development.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()
	jobStore := memoryStorage.NewJobStore(clock, memoryStorage.Options{
		Retention: cfg.Retention(),
		MaxJobs:   cfg.Store.MaxJobs,
	})
	go jobStore.Janitor(ctx, time.Duration(cfg.Store.SweepSeconds)*time.Second)
	queue := queueMemory.NewQueue(cfg.Analyzer.QueueDepth)
	publisher := memorypublisher.New()
	resultCache := cache.New(hasher, clock, cfg.CacheTTL())
	go sweepCache(ctx, resultCache, time.Duration(cfg.Store.SweepSeconds)*time.Second)

	var renderer analysis.Renderer = headless.NewNoop()
	var chromeRenderer *headless.Renderer
	if cfg.Headless.Enabled {
		chromeRenderer, err = headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			renderer = chromeRenderer
		}
	}
	detect := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetcher.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, detect, renderer, logger.Named("fetcher"))

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		logger.Fatal("provider setup failed", zap.Error(err))
	}

	run, err := runner.New(providers, runner.Options{
		Timeout:          cfg.ModuleTimeout(),
		MinContentLength: cfg.Fetcher.MinContentLength,
	}, logger.Named("runner"))
	if err != nil {
		logger.Fatal("runner setup failed", zap.Error(err))
	}
	arb, err := buildArbiter(cfg, providers, logger)
	if err != nil {
		logger.Fatal("arbiter setup failed", zap.Error(err))
	}

	hub, err := buildProgressHub(logger)
	if err != nil {
		logger.Fatal("progress hub setup failed", zap.Error(err))
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Analyzer.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			fetcher,
			run,
			arb,
			publisher,
			hub,
			clock,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, fetcher, run, arb, resultCache, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	if chromeRenderer != nil {
		chromeRenderer.Close()
	}
	logger.Info("shutdown complete")
}

// buildProviders constructs one adapter per enabled backend. Backends
// with a missing API key are skipped with a warning so a partial
// deployment still serves requests.
func buildProviders(cfg config.Config, logger *zap.Logger) ([]analysis.Provider, error) {
	var providers []analysis.Provider
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			logger.Warn("provider API key missing, skipping",
				zap.String("provider", name),
				zap.String("env", pc.APIKeyEnv),
			)
			continue
		}
		timeout := time.Duration(pc.TimeoutSeconds) * time.Second

		var caller provider.Caller
		var err error
		switch pc.Type {
		case "gemini":
			caller, err = gemini.New(gemini.Config{
				APIKey:  apiKey,
				Model:   pc.Model,
				BaseURL: pc.BaseURL,
				Timeout: timeout,
			})
		case "openai":
			caller, err = openai.New(openai.Config{
				APIKey:  apiKey,
				Model:   pc.Model,
				BaseURL: pc.BaseURL,
				Timeout: timeout,
			})
		default:
			err = fmt.Errorf("unknown provider type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}

		providers = append(providers, provider.New(name, caller, provider.Options{
			Timeout:         timeout,
			Retry:           provider.RetryPolicy{MaxRetries: pc.MaxRetries},
			RPS:             pc.RPS,
			Burst:           pc.Burst,
			MaxOutputTokens: pc.MaxOutputTokens,
		}))
	}
	if len(providers) == 0 {
		return nil, analysis.ErrNoProviders
	}
	return providers, nil
}

// buildArbiter picks the scoring strategy from config. The judge
// strategy always keeps the heuristic as a fallback so arbitration
// stays available when the judge backend is down.
func buildArbiter(cfg config.Config, providers []analysis.Provider, logger *zap.Logger) (*arbiter.Arbiter, error) {
	heuristic := arbiter.NewHeuristic(cfg.Arbiter.MinOutputLength)
	switch cfg.Arbiter.Strategy {
	case "", "heuristic":
		return arbiter.New(heuristic, nil, cfg.Arbiter.Priority, logger.Named("arbiter"))
	case "judge":
		var judgeProvider analysis.Provider
		for _, p := range providers {
			if p.Name() == cfg.Arbiter.JudgeProvider {
				judgeProvider = p
				break
			}
		}
		if judgeProvider == nil {
			return nil, fmt.Errorf("judge provider %q not configured", cfg.Arbiter.JudgeProvider)
		}
		judge, err := arbiter.NewJudge(judgeProvider, 0)
		if err != nil {
			return nil, fmt.Errorf("build judge strategy: %w", err)
		}
		return arbiter.New(judge, heuristic, cfg.Arbiter.Priority, logger.Named("arbiter"))
	default:
		return nil, fmt.Errorf("unknown arbiter strategy %q", cfg.Arbiter.Strategy)
	}
}

func sweepCache(ctx context.Context, c *cache.Cache, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func buildProgressHub(logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("build prometheus sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinks.NewLogSink(logger.Named("progress")), promSink)
	return hub, nil
}
