// cmd/refineryd/main.go
//
// Refinery – content-refresh orchestrator entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load layered config; resolve the DB password through Vault when it
//     is a `vault:` reference.
//
//  4. Open MySQL and apply idempotent migrations.
//
//  5. Build the pipeline: family cache → resolver → queue → enqueuer →
//     listener, wired to the process dispatcher.
//
//  6. Start the background loops: queue consumer (only when a generation
//     handler is linked in), stuck-job reaper.
//
//  7. Mount the admin API and Prometheus /metrics behind the hardened
//     server, then block until SIGINT/SIGTERM and drain gracefully.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/refinery/internal/admin"
	"github.com/yanizio/refinery/internal/bus"
	"github.com/yanizio/refinery/internal/config"
	"github.com/yanizio/refinery/internal/database"
	"github.com/yanizio/refinery/internal/family"
	"github.com/yanizio/refinery/internal/knowledge"
	"github.com/yanizio/refinery/internal/logger"
	"github.com/yanizio/refinery/internal/middleware"
	"github.com/yanizio/refinery/internal/queue"
	"github.com/yanizio/refinery/internal/refresh"
	"github.com/yanizio/refinery/internal/requestinfo"
	"github.com/yanizio/refinery/internal/server"
	"github.com/yanizio/refinery/internal/vault"
)

const serverEnvPath = "/usr/local/etc/refinery/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	logg, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config + secret resolution ──────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		logg.Fatalw("load config", "err", err)
	}

	password := cfg.Database.Password
	if strings.HasPrefix(password, vault.Prefix) {
		vc, err := vault.New(ctx, logg)
		if err != nil {
			logg.Fatalw("connect vault", "err", err)
		}
		if password, err = vc.Resolve(ctx, password); err != nil {
			logg.Fatalw("resolve db password", "err", err)
		}
	}

	//
	// ── 2.  Database + migrations ───────────────────────────────────────
	//
	logg.Infow("connecting to database")
	db, err := database.Open(cfg.Database.BuildDSN(password))
	if err != nil {
		logg.Fatalw("connect database", "err", err)
	}
	defer db.Close()

	if err := refresh.Migrate(ctx, db); err != nil {
		logg.Fatalw("apply migrations", "err", err)
	}
	logg.Infow("database online")

	// Optional MaxMind DB for the admin audit trail.
	if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
		logg.Warnw("geoip disabled", "path", cfg.Geo.DBPath, "err", err)
	}

	//
	// ── 3.  Pipeline wiring ─────────────────────────────────────────────
	//
	families := family.New(db, family.IdleTTL, family.MaxEntries)
	defer families.Close()

	signals := refresh.NewSignalStore(db)
	resolver := refresh.NewResolver(signals, signals,
		knowledge.NewChecker(cfg.Paths.KnowledgeDir), logg)

	store := refresh.NewStore(db)
	q := queue.New(db, queue.Config{
		MaxAttempts: cfg.Queue.Attempts,
		BackoffBase: cfg.Queue.BackoffBase,
		Retention:   cfg.Queue.Retention,
	})
	enqueuer := refresh.NewEnqueuer(store, q, logg)
	listener := refresh.NewListener(families, families, resolver, enqueuer, logg)

	dispatcher := bus.NewDispatcher()
	listener.Register(dispatcher)

	//
	// ── 4.  Background loops ────────────────────────────────────────────
	//
	if h := queue.Registered(); h != nil {
		consumer := queue.NewConsumer(q, store, h,
			cfg.Queue.Workers, cfg.Queue.PollInterval, logg)
		consumer.Start(ctx)
		defer consumer.Wait()
	} else {
		logg.Infow("no generation handler linked, consumer not started")
	}

	reaper := refresh.NewReaper(store,
		cfg.Reaper.MaxProcessingAge, cfg.Reaper.Interval, logg)
	go reaper.Run(ctx)

	//
	// ── 5.  HTTP surface ────────────────────────────────────────────────
	//
	gate := refresh.NewGate(db, logg)
	api := admin.New(db, store, gate, listener, dispatcher,
		func(r *http.Request) (int, error) { return q.Depth(r.Context()) },
		logg)

	r := chi.NewRouter()
	r.Use(middleware.Security)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/api/refresh", api.Routes())

	srv := server.New(cfg.HTTP.ListenAddr, r)
	go func() {
		logg.Infow("admin api listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatalw("http server", "err", err)
		}
	}()

	<-ctx.Done()
	logg.Infow("shutdown signal received, draining")
	if err := server.Shutdown(srv); err != nil {
		logg.Errorw("shutdown", "err", err)
	}
}
