// Command server starts the exam evaluator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/ai/anthropic"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/ai/stub"
	httpserver "github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/app"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	rubric, err := config.LoadRubricSettings(cfg.RubricConfig, cfg.AdjustBounds())
	if err != nil {
		slog.Error("rubric settings load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Repositories
	studentRepo := postgres.NewStudentRepo(pool)
	evalRepo := postgres.NewEvaluationRepo(pool)

	// AI client: stub outside prod when no API key is configured.
	var aicl domain.AIClient
	if cfg.AnthropicAPIKey == "" && !cfg.IsProd() {
		slog.Warn("ANTHROPIC_API_KEY not set, using stub AI client")
		aicl = stub.New()
	} else {
		aicl = anthropic.New(cfg)
	}

	// Usecases
	uploader := usecase.NewUploaderService(evalRepo)
	sink := usecase.MultiSink{usecase.LoggingSink{}, observability.MetricsSink{}}
	tracker := usecase.NewBatchTracker(cfg.BatchRetention, cfg.BatchSweepInterval, sink)
	go tracker.Run(ctx)

	pipeline := &usecase.EvaluationPipeline{
		Matcher:  usecase.NewMatcherService(studentRepo, cfg.MatchThreshold),
		Analyzer: usecase.NewAnalyzerService(aicl, rubric.RubricText, cfg.AIPricing()),
		Adjuster: usecase.NewAdjusterService(aicl, rubric.Adjustment, cfg.AIPricing()),
		Uploader: uploader,
		Tracker:  tracker,
		Students: studentRepo,
		Weights:  usecase.WeightsFromSettings(rubric),
	}

	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }

	// HTTP server
	srv := httpserver.NewServer(cfg, pipeline, uploader, tracker, dbCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
