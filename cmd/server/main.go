package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/botrelay/internal/adapters/http"
	wssignal "github.com/dkeye/botrelay/internal/adapters/signal"
	"github.com/dkeye/botrelay/internal/adapters/sink"
	"github.com/dkeye/botrelay/internal/app"
	"github.com/dkeye/botrelay/internal/app/orch"
	"github.com/dkeye/botrelay/internal/config"
	"github.com/dkeye/botrelay/internal/domain"
	"github.com/dkeye/botrelay/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	backend, err := sink.New(ctx, cfg.Sink)
	if err != nil {
		log.Fatal().Err(err).Str("kind", cfg.Sink.Kind).Msg("failed to open sink")
	}

	policy, err := app.PolicyByName(cfg.Policy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid policy")
	}

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)

	// Audio is persisted off the producer's read loop.
	store := sink.NewQueuedSink(backend, cfg.Sink.QueueSize, func(domain.BotID, error) {
		relayMetrics.SinkFailures.Inc()
	})

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Conns:    app.NewConnTable(),
		Sink:     store,
		Policy:   policy,
		Metrics:  relayMetrics,
	}
	ctl := wssignal.NewSignalWSController(o, relayMetrics, wssignal.Settings{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, ctl, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("sink close")
	}
	log.Info().Msg("Server exited gracefully")
}

// setupLogging keeps the console writer for debug mode and switches to JSON
// lines otherwise.
func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
