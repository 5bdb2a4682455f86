package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fakestocks/market-sim/internal/account"
	"github.com/fakestocks/market-sim/internal/config"
	"github.com/fakestocks/market-sim/internal/identity"
	"github.com/fakestocks/market-sim/internal/market"
	"github.com/fakestocks/market-sim/internal/metrics"
	"github.com/fakestocks/market-sim/internal/persist"
	"github.com/fakestocks/market-sim/internal/rank"
	"github.com/fakestocks/market-sim/internal/session"
	"github.com/fakestocks/market-sim/internal/sim"
	"github.com/fakestocks/market-sim/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Core components ---
	ids := identity.NewIssuer()
	reg := market.NewRegistry(ids)
	dir := account.NewDirectory(ids, reg.Quote)
	board := rank.NewBoard()
	history := rank.NewHistory()
	sessions := session.NewTracker(ids)

	if cfg.StartupSeedStocks {
		if err := sim.Seed(reg); err != nil {
			slog.Error("seed companies failed", "err", err)
			os.Exit(1)
		}
		slog.Info("seed companies created", "names", sim.SeedNames)
	}

	// --- Snapshot archive (optional) ---
	var archive persist.Archive
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := persist.NewPostgresArchive(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("snapshot schema failed", "err", err)
			os.Exit(1)
		}
		archive = pg
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			archive = persist.NewCachedArchive(archive, rdb, 30*time.Second)
			slog.Info("Redis snapshot cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, snapshot archiving disabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := trade.NewHub()
	go hub.Run()

	// --- Background simulation ---
	cycle := &sim.Cycle{
		Market:       reg,
		Accounts:     dir,
		Board:        board,
		History:      history,
		Sessions:     sessions,
		Hub:          hub,
		Archive:      archive,
		SnapshotFile: cfg.SnapshotFile,
		TickEvery:    cfg.MarketTickEvery,
		ResetEvery:   cfg.EpochResetEvery,
	}
	board.Recompute(dir.Views(), reg.Prices())
	go cycle.Run(ctx)

	// --- HTTP service ---
	svc := trade.NewService(reg, dir, board, history, sessions, hub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-sim"}`))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", svc.Routes)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-sim listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-sim...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-sim stopped")
}
