package app

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/keyresult-tracker/internal/data/db"
	apphttp "github.com/yungbote/keyresult-tracker/internal/http"
	"github.com/yungbote/keyresult-tracker/internal/jobs/queue"
	jobrt "github.com/yungbote/keyresult-tracker/internal/jobs/runtime"
	"github.com/yungbote/keyresult-tracker/internal/jobs/worker"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/temporalx"
	"github.com/yungbote/keyresult-tracker/internal/temporalx/temporalworker"
)

const collectorInterval = 15 * time.Second

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Queue    queue.Queue
	Emitter  *queue.Emitter
	Jobs     *jobrt.Registry
	Services Services
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(log, cfg.Metrics)

	dbs, err := db.Open(cfg.DB, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = dbs
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		a.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	a.Repos = wireRepos(dbs.DB(), log)

	if cfg.Queue.Backend == queue.BackendTemporal {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init temporal: %w", err)
		}
		a.Clients.Temporal = tc
	}
	q, err := openQueue(ctx, log, cfg, a.Repos, &a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = q
	a.Emitter = queue.NewEmitter(q, log, a.Metrics, cfg.Queue.Emit)
	log.Info("Job queue ready", "backend", q.Backend())

	a.Jobs, err = wireJobs(log, a.Repos)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	a.Services = wireServices(dbs.DB(), log, cfg, a.Repos, a.Emitter, a.Metrics)

	var rdb goredis.UniversalClient
	if a.Clients.Redis != nil {
		rdb = a.Clients.Redis
	}
	a.Server = apphttp.NewServer(wireRouterConfig(log, cfg, dbs.DB(), rdb, a.Services, a.Metrics))
	return a, nil
}

// Serve runs the HTTP API, the emitter and, when enabled, the in-process
// job worker until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startCollectors(gctx)

	g.Go(func() error { return a.Server.Run(gctx, a.Cfg.Addr()) })
	g.Go(func() error { return a.Emitter.Run(gctx) })
	if a.Cfg.Worker.Enabled {
		g.Go(func() error { return a.runJobs(gctx) })
	}
	return g.Wait()
}

// RunWorker consumes jobs without serving HTTP.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Queue.Backend() == queue.BackendMemory {
		return fmt.Errorf("the memory queue cannot be drained by a standalone worker; use redis, db or temporal")
	}
	a.startCollectors(ctx)
	return a.runJobs(ctx)
}

func (a *App) runJobs(ctx context.Context) error {
	if a.Queue.Backend() == queue.BackendTemporal {
		runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Jobs, a.Metrics)
		if err != nil {
			return err
		}
		return runner.Run(ctx)
	}
	src, ok := a.Queue.(queue.Source)
	if !ok {
		return fmt.Errorf("queue backend %s cannot be consumed by the worker pool", a.Queue.Backend())
	}
	return worker.NewWorker(a.Log, src, a.Jobs, a.Metrics, a.Cfg.Worker.Config).Run(ctx)
}

func (a *App) startCollectors(ctx context.Context) {
	if a.Metrics == nil {
		return
	}
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB.DB(), collectorInterval)
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis, collectorInterval)
	}
	if a.Queue.Backend() == queue.BackendDB {
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB.DB(), collectorInterval)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close(a.Log)
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	a.Log.Sync()
}
