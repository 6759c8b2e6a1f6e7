package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"partyreg/internal/config"
	"partyreg/modules/party/domain/types"
	"partyreg/modules/party/infrastructure/persistence"
	"partyreg/modules/party/services"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Str("level", cfg.LogLevel).Msg("unknown log level")
	}
	log = log.Level(level)

	// The process context scopes everything with process lifetime,
	// including cold role-cache loads still in flight at shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store := persistence.NewPartyPGStore(pool)
	roleCache := persistence.NewRoleDefinitionCache(ctx, pool)
	svc := services.NewPartyService(store, store, roleCache, log)

	// Boot-time self check: one empty stream page proves schema access and
	// the watermark function before the process reports healthy.
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := svc.StreamParties(probeCtx, types.StreamPage{Limit: 1}, types.FieldIdentifiers); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("store probe failed")
	}
	cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
	log.Info().Msg("shutdown complete")
}
