// Command dispatcherd runs the notification dispatcher as a standalone HTTP
// service: it loads a project manifest, wires the engine's plugins against
// the configured stores, and serves the event intake and admin APIs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notifico/dispatcher/api"
	"github.com/notifico/dispatcher/config"
	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/observability/tracing"
	"github.com/notifico/dispatcher/plugin/smpp"
	"github.com/notifico/dispatcher/plugin/smtp"
	"github.com/notifico/dispatcher/plugin/telegram"
	"github.com/notifico/dispatcher/plugin/templater"
	"github.com/notifico/dispatcher/plugin/whatsapp"
	"github.com/notifico/dispatcher/runner"
	"github.com/notifico/dispatcher/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dispatcherd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	var (
		manifestPath = flag.String("manifest", "manifest.yaml", "path to the project manifest")
		addr         = flag.String("addr", ":8080", "HTTP listen address")
		otlpEndpoint = flag.String("otlp-endpoint", "", "OTLP HTTP endpoint for traces; tracing disabled if empty")
		jsonLogs     = flag.Bool("json-logs", false, "emit logs as JSON instead of text")
		postgresDSN  = flag.String("postgres-dsn", "", "Postgres connection string; when set, pipelines/credentials/recipients are served from Postgres instead of the manifest, and results are persisted there alongside the in-memory recorder")
	)
	flag.Parse()

	logger := newLogger(*jsonLogs)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := config.LoadFile(*manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	var (
		pipelineStorage    interfaces.PipelineStorage    = stores.Pipelines
		credentialStorage  interfaces.CredentialStorage  = stores.Pipelines
		recipientDirectory interfaces.RecipientDirectory = stores.Pipelines
		pgRecorder         interfaces.Recorder
	)
	if *postgresDSN != "" {
		pool, err := pgxpool.New(ctx, *postgresDSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("pinging postgres: %w", err)
		}

		pg := store.NewPostgres(pool)
		pipelineStorage = pg
		credentialStorage = pg
		recipientDirectory = pg
		pgRecorder = store.NewPostgresRecorder(pool)
		logger.Info("postgres stores enabled")
	}

	var tracer *tracing.StepTracer
	if *otlpEndpoint != "" {
		provider, err := tracing.NewProvider(ctx, tracing.Config{
			Endpoint:    *otlpEndpoint,
			ServiceName: "dispatcher",
			Insecure:    true,
			SampleRate:  1.0,
		})
		if err != nil {
			return fmt.Errorf("starting tracer provider: %w", err)
		}
		defer provider.Shutdown(context.Background())
		tracer = tracing.NewStepTracer(provider.Tracer())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	memRecorder := store.NewMemoryRecorder()
	var recorder interfaces.Recorder = memRecorder
	if pgRecorder != nil {
		recorder = store.NewTeeRecorder(memRecorder, pgRecorder)
	}
	metricsRecorder := store.NewMetricsRecorder(registry, recorder)
	eventStream := api.NewEventStream(metricsRecorder, logger)

	eng := engine.New(logger, tracer)
	if err := eng.Register(templater.New(stores.Templates)); err != nil {
		return err
	}
	if err := eng.Register(telegram.New(credentialStorage, eventStream)); err != nil {
		return err
	}
	if err := eng.Register(smtp.New(credentialStorage, eventStream)); err != nil {
		return err
	}
	if err := eng.Register(smpp.New(credentialStorage, eventStream)); err != nil {
		return err
	}
	if err := eng.Register(whatsapp.New(credentialStorage, eventStream)); err != nil {
		return err
	}

	r := runner.New(pipelineStorage, recipientDirectory, eng, eventStream, logger, tracer)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(r, memRecorder, eventStream, tracer != nil))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: *addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dispatcherd listening", slog.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
