// Package control wires storage, RPC, pollers, and the health server
// into one runnable ingestor.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/vietddude/pumpwatch/internal/core/breaker"
	"github.com/vietddude/pumpwatch/internal/core/checkpoint"
	"github.com/vietddude/pumpwatch/internal/core/config"
	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/core/worker"
	"github.com/vietddude/pumpwatch/internal/ingest/batch"
	"github.com/vietddude/pumpwatch/internal/ingest/handlers"
	"github.com/vietddude/pumpwatch/internal/ingest/health"
	"github.com/vietddude/pumpwatch/internal/ingest/metrics"
	"github.com/vietddude/pumpwatch/internal/ingest/poller"
	redisclient "github.com/vietddude/pumpwatch/internal/infra/redis"
	"github.com/vietddude/pumpwatch/internal/infra/rpc"
	"github.com/vietddude/pumpwatch/internal/infra/storage"
	"github.com/vietddude/pumpwatch/internal/infra/storage/memory"
	"github.com/vietddude/pumpwatch/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port      int
	RPC       config.RPCConfig
	Contracts []config.ContractConfig
	Breaker   config.BreakerConfig
	Batch     config.BatchConfig
	Storage   config.StorageConfig
	Database  postgres.Config
	Redis     redisclient.Config
}

// Ingestor owns the full pipeline lifecycle: one poller per contract,
// shared storage and checkpoints, health and metrics on the side.
type Ingestor struct {
	cfg Config

	pollers     *xsync.Map[string, *poller.Poller]
	breakers    map[string]*breaker.Breaker
	batches     map[string]*batch.Processor
	deadLetters map[string]*redisclient.FailedEventRepo

	checkpoints checkpoint.Manager
	pruner      *worker.Pruner

	healthMon    *health.Monitor
	healthServer *health.Server

	store       *memory.MemoryStorage
	db          *postgres.DB
	redisClient *redisclient.Client
	rpcClient   *rpc.SorobanClient

	log     *slog.Logger
	running atomic.Bool
}

// Status is a snapshot of the whole ingestor.
type Status struct {
	Running       bool
	ActivePollers int
	Breakers      map[string]breaker.Stats
	Batch         batch.Stats
	Cache         checkpoint.CacheStats
	Health        string
}

// New creates an Ingestor with all dependencies initialized.
func New(cfg Config) (*Ingestor, error) {
	// 1. Storage
	var (
		checkpointRepo storage.CheckpointRepository
		tokenRepo      storage.TokenRepository
		tradeRepo      storage.TradeRepository
		liquidityRepo  storage.LiquidityRepository
		swapRepo       storage.SwapRepository
		traderRepo     storage.TraderRepository
		eventRepo      storage.EventRepository
		store          *memory.MemoryStorage
		db             *postgres.DB
	)

	if cfg.Storage.Backend == config.BackendMemory {
		store = memory.NewMemoryStorage()
		checkpointRepo = memory.NewCheckpointRepo(store)
		tokenRepo = memory.NewTokenRepo(store)
		tradeRepo = memory.NewTradeRepo(store)
		liquidityRepo = memory.NewLiquidityRepo(store)
		swapRepo = memory.NewSwapRepo(store)
		traderRepo = memory.NewTraderRepo(store)
		eventRepo = memory.NewEventRepo(store)
		slog.Info("Using memory storage")
	} else {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.SQL(), "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		checkpointRepo = postgres.NewCheckpointRepo(db)
		tokenRepo = postgres.NewTokenRepo(db)
		tradeRepo = postgres.NewTradeRepo(db)
		liquidityRepo = postgres.NewLiquidityRepo(db)
		swapRepo = postgres.NewSwapRepo(db)
		traderRepo = postgres.NewTraderRepo(db)
		eventRepo = postgres.NewEventRepo(db)
		slog.Info("Using PostgreSQL storage")
	}

	// 2. Shared components
	checkpointMgr := checkpoint.NewManager(checkpointRepo)
	registry := handlers.NewRegistry(handlers.Deps{
		Tokens:    tokenRepo,
		Trades:    tradeRepo,
		Liquidity: liquidityRepo,
		Swaps:     swapRepo,
		Traders:   traderRepo,
	})
	rpcClient := rpc.NewSorobanClient(cfg.RPC.URL, cfg.RPC.Timeout)

	// 3. Redis dead letter queue (optional)
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, dead letter queue disabled", "error", err)
			redisClient = nil
		}
	}

	// 4. Per-contract pipeline wiring
	pollers := xsync.NewMap[string, *poller.Poller]()
	breakers := make(map[string]*breaker.Breaker)
	batches := make(map[string]*batch.Processor)
	deadLetters := make(map[string]*redisclient.FailedEventRepo)

	for _, cc := range cfg.Contracts {
		br := breaker.New(breaker.Config{
			Threshold: cfg.Breaker.Threshold,
			BaseDelay: cfg.Breaker.BaseDelay,
			MaxDelay:  cfg.Breaker.MaxDelay,
		})
		proc := batch.New(batch.Config{
			MaxSize:        cfg.Batch.MaxSize,
			MaxWait:        cfg.Batch.MaxWait,
			MaxConcurrency: cfg.Batch.MaxConcurrency,
			MaxQueue:       cfg.Batch.MaxQueue,
		}, eventRepo.SaveBatch)

		var recorder *poller.Recorder
		if redisClient != nil {
			repo := redisclient.NewFailedEventRepo(redisClient, cc.ID)
			deadLetters[cc.ID] = repo
			recorder = poller.NewRecorder(repo, cc.ID)
		}

		p := poller.New(poller.Config{
			Contract:     domain.Contract{ID: cc.ID, Name: cc.Name, Kind: domain.ContractKind(cc.Kind)},
			Client:       rpcClient,
			Breaker:      br,
			Checkpoints:  checkpointMgr,
			Batch:        proc,
			Handlers:     registry,
			DeadLetter:   recorder,
			PollInterval: cc.PollInterval,
			PageLimit:    cc.PageLimit,
			StartLedger:  cc.StartLedger,
		})

		pollers.Store(cc.ID, p)
		breakers[cc.ID] = br
		batches[cc.ID] = proc
	}

	in := &Ingestor{
		cfg:         cfg,
		pollers:     pollers,
		breakers:    breakers,
		batches:     batches,
		deadLetters: deadLetters,
		checkpoints: checkpointMgr,
		pruner:      worker.NewPruner(cfg.Storage.Retention, eventRepo),
		store:       store,
		db:          db,
		redisClient: redisClient,
		rpcClient:   rpcClient,
		log:         slog.Default(),
	}

	// 5. Health monitor and server
	var storagePinger health.Pinger = pingerFunc(func(context.Context) error { return nil })
	if db != nil {
		storagePinger = db
	}
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	counters := make(map[string]health.DeadLetterCounter, len(deadLetters))
	for id, repo := range deadLetters {
		counters[id] = repo
	}

	in.healthMon = health.NewMonitor(in, storagePinger, rpcClient, redisPinger, counters)
	in.healthServer = health.NewServer(in.healthMon, cfg.Port)

	return in, nil
}

// Start launches the health server, the pollers, and the metrics
// updater. It returns immediately; the pollers run until Stop.
func (in *Ingestor) Start(ctx context.Context) error {
	if !in.running.CompareAndSwap(false, true) {
		return fmt.Errorf("ingestor already running")
	}

	go func() {
		if err := in.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			in.log.Error("Health server failed", "error", err)
		}
	}()

	if in.db != nil {
		in.db.StartMetricsCollector(ctx)
	}

	in.pollers.Range(func(id string, p *poller.Poller) bool {
		in.log.Info("Starting poller", "contract", id)
		go func(id string, p *poller.Poller) {
			if err := p.Start(ctx); err != nil {
				in.log.Error("Poller failed", "contract", id, "error", err)
			}
		}(id, p)
		return true
	})

	go in.pruner.Start(ctx)
	go in.runMetricsUpdater(ctx)

	return nil
}

// Stop shuts down in dependency order: pollers first (each drains its
// batch buffer), then the health server and the stores. A buffered
// event is either flushed or still covered by the checkpoint.
func (in *Ingestor) Stop(ctx context.Context) error {
	in.log.Info("Stopping ingestor")

	var firstErr error
	in.pollers.Range(func(id string, p *poller.Poller) bool {
		if err := p.Stop(ctx); err != nil {
			in.log.Error("Poller stop failed", "contract", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		return true
	})

	if err := in.healthServer.Stop(ctx); err != nil {
		in.log.Warn("Health server stop failed", "error", err)
	}

	if in.redisClient != nil {
		if err := in.redisClient.Close(); err != nil {
			in.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.log.Warn("Failed to close database", "error", err)
		}
	}
	if in.rpcClient != nil {
		in.rpcClient.Close()
	}

	in.running.Store(false)
	in.log.Info("Ingestor stopped")
	return firstErr
}

// Statuses returns the current status of every stream.
func (in *Ingestor) Statuses(ctx context.Context) []poller.Status {
	statuses := make([]poller.Status, 0)
	in.pollers.Range(func(id string, p *poller.Poller) bool {
		statuses = append(statuses, p.GetStatus(ctx))
		return true
	})
	return statuses
}

// GetStatus returns an aggregate snapshot across all streams.
func (in *Ingestor) GetStatus() Status {
	s := Status{
		Running:  in.running.Load(),
		Breakers: make(map[string]breaker.Stats),
		Health:   "healthy",
	}

	in.pollers.Range(func(id string, p *poller.Poller) bool {
		s.ActivePollers++
		return true
	})

	for id, br := range in.breakers {
		st := br.Stats()
		s.Breakers[id] = st
		if st.State == breaker.StateOpen {
			s.Health = "degraded"
		}
	}

	for _, proc := range in.batches {
		st := proc.Stats()
		s.Batch.Pending += st.Pending
		s.Batch.InFlight += st.InFlight
		s.Batch.Processed += st.Processed
		s.Batch.Failed += st.Failed
		s.Batch.Flushes += st.Flushes
	}
	if s.Batch.Failed > 0 {
		s.Health = "degraded"
	}

	s.Cache = in.checkpoints.CacheStats()
	return s
}

// runMetricsUpdater refreshes the gauges that are not updated inline
// on the hot path.
func (in *Ingestor) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.updateMetrics(ctx)
		}
	}
}

func (in *Ingestor) updateMetrics(ctx context.Context) {
	for id, br := range in.breakers {
		st := br.Stats()
		metrics.BreakerState.WithLabelValues(id).Set(breakerStateValue(st.State))
		metrics.BreakerTrips.WithLabelValues(id).Set(float64(st.Trips))
	}

	for id, proc := range in.batches {
		st := proc.Stats()
		metrics.BatchPending.WithLabelValues(id).Set(float64(st.Pending))
		metrics.BatchProcessed.WithLabelValues(id).Set(float64(st.Processed))
		metrics.BatchFailed.WithLabelValues(id).Set(float64(st.Failed))
		metrics.BatchFlushes.WithLabelValues(id).Set(float64(st.Flushes))
	}

	for id, repo := range in.deadLetters {
		if n, err := repo.Count(ctx); err == nil {
			metrics.DeadLetterSize.WithLabelValues(id).Set(float64(n))
		}
	}
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 2
	case breaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Health(ctx context.Context) error { return f(ctx) }
