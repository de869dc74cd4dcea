// Package main provides the entrypoint for the FieldVigil agent daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/auth"
	"github.com/fieldvigil/fieldvigil/internal/commune"
	"github.com/fieldvigil/fieldvigil/internal/control"
	"github.com/fieldvigil/fieldvigil/internal/health"
	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/position"
	"github.com/fieldvigil/fieldvigil/internal/proximity"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/risk/riskapi"
	"github.com/fieldvigil/fieldvigil/internal/scheduler"
	"github.com/fieldvigil/fieldvigil/internal/session"
	"github.com/fieldvigil/fieldvigil/internal/store"
	"github.com/fieldvigil/fieldvigil/internal/telemetry"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
	"github.com/fieldvigil/fieldvigil/internal/tracker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "fieldvigil-agent"

	_ = godotenv.Load(".env")

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting FieldVigil agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		AgentID:        os.Getenv("FIELDVIGIL_AGENT_ID"),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Enabled:        os.Getenv("OTEL_ENABLED") == "true",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	st, err := store.Open(envOr("FIELDVIGIL_DB", "fieldvigil.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close state store")
		}
	}()

	// The API base URL persisted at login wins; the environment only seeds
	// fresh installs.
	apiURL, found, err := st.Get(ctx, store.KeyActiveAPIURL)
	if err != nil || !found {
		apiURL = os.Getenv("FIELDVIGIL_API_URL")
	}
	if apiURL == "" {
		log.Fatal().Msg("no risk API configured, set FIELDVIGIL_API_URL")
	}

	apiClient := riskapi.NewClient(riskapi.ClientConfig{BaseURL: apiURL})

	authManager := auth.NewManager(auth.ManagerConfig{
		Store:     st,
		Refresher: apiClient,
		Logger:    log,
	})

	cache := risk.NewCache(risk.CacheConfig{
		Fetcher:     apiClient,
		Credentials: authManager,
		Logger:      log,
	})

	var sink notify.Sink
	if notifyURL := os.Getenv("FIELDVIGIL_NOTIFY_URL"); notifyURL != "" {
		sink = notify.NewWebhookSink(notify.WebhookSinkConfig{URL: notifyURL})
		log.Info().Str("url", notifyURL).Msg("notifications delivered over webhook")
	} else {
		sink = &notify.LogSink{Logger: log}
		log.Warn().Msg("no notification endpoint configured, alerts go to the log only")
	}
	notifier := notify.NewService(notify.ServiceConfig{Sink: sink, Logger: log})

	positions := position.NewHTTPSource(position.HTTPSourceConfig{
		URL: envOr("FIELDVIGIL_POSITION_URL", "http://127.0.0.1:7622/position"),
	})

	prox := proximity.NewService(proximity.ServiceConfig{
		Notifier: notifier,
		Logger:   log,
	})

	watcher := commune.NewWatcher(st, commune.NewClient(commune.ClientConfig{
		BaseURL: envOr("FIELDVIGIL_GEORISQUES_URL", commune.DefaultBaseURL),
	}), notifier, log)

	monitor := health.NewMonitor(health.MonitorConfig{
		Store:      st,
		Dispatcher: notifier,
		Logger:     log,
	})

	sched := scheduler.New(scheduler.Config{Logger: log})

	guard := session.NewGuard(session.GuardConfig{
		Store:      st,
		Dispatcher: notifier,
		Stopper:    sched,
		Logger:     log,
	})

	resolver := tournee.NewResolver(tournee.ResolverConfig{
		API:    apiClient,
		Store:  st,
		Logger: log,
	})

	engine, err := tracker.New(tracker.Config{
		Store:     st,
		Scheduler: sched,
		Guard:     guard,
		Monitor:   monitor,
		Positions: positions,
		Cache:     cache,
		Proximity: prox,
		Commune:   watcher,
		Resolver:  resolver,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracker")
	}

	// A round left active by a previous process picks up where it stopped.
	if resumed, resumeErr := engine.Resume(ctx); resumeErr != nil {
		log.Error().Err(resumeErr).Msg("failed to resume tracking round")
	} else if resumed {
		log.Info().Msg("resumed previously active tracking round")
	}

	server := control.NewServer(control.ServerConfig{
		Addr:    envOr("FIELDVIGIL_CONTROL_ADDR", "127.0.0.1:7621"),
		Version: Version,
		Engine:  engine,
		Zone:    cache,
		Alerts:  notifier,
		Logger:  log,
	})

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("control API failed")
	}

	// The round state stays persisted so the next boot resumes it; only the
	// schedule is torn down.
	sched.StopService()
	log.Info().Msg("agent stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
