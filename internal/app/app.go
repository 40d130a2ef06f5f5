// Package app wires the process singletons — the database pool and the
// Redis client — and builds every component from them. Nothing here is a
// package-level global: callers hold the *App and pass it or its
// components explicitly.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eddndev/agentic-core/internal/admission"
	"github.com/eddndev/agentic-core/internal/config"
	"github.com/eddndev/agentic-core/internal/ingress"
	"github.com/eddndev/agentic-core/internal/lock"
	"github.com/eddndev/agentic-core/internal/processor"
	"github.com/eddndev/agentic-core/internal/queue"
	"github.com/eddndev/agentic-core/internal/scheduler"
	"github.com/eddndev/agentic-core/internal/store/pg"
)

// App holds the open connections and constructed components for one
// running process.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	Store  *pg.Store
	Redis  *redis.Client
	Locker *lock.Locker

	Engine    *admission.Engine
	Scheduler *scheduler.Scheduler
	Processor *processor.Processor
	Ingress   *ingress.Loop
}

// Build opens the database and Redis connections described by cfg and wires
// every component on top of them.
func Build(cfg *config.Config) (*App, error) {
	log := newLogger(cfg.Log.Level)

	st, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	locker := lock.New(rdb)
	outbound := queue.NewOutbound(rdb, cfg.Redis.OutgoingStream, cfg.Redis.OutgoingStreamMaxLen)
	inbound := queue.NewInbound(rdb, cfg.Redis.IncomingStream, cfg.Redis.ConsumerGroup, "core_worker_1")

	proc := processor.New(st, outbound, log)
	sched := scheduler.New(st, proc, log)
	engine := admission.New(st, locker, sched, log)
	loop := ingress.New(inbound, engine, proc, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     st,
		Redis:     rdb,
		Locker:    locker,
		Engine:    engine,
		Scheduler: sched,
		Processor: proc,
		Ingress:   loop,
	}, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	redisErr := a.Redis.Close()
	dbErr := a.Store.Close()
	if dbErr != nil {
		return dbErr
	}
	return redisErr
}

// Ping checks that both backing stores are reachable.
func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

