package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chartengine/config"
	"chartengine/internal/gateway"
	"chartengine/internal/indengine"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/overlay"
	"chartengine/internal/store/postgres"
	redisstore "chartengine/internal/store/redis"
	"chartengine/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.Init("indengine", level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// ---- Metrics + health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	health.SetRedisEnabled(cfg.Redis.Enabled)

	// ---- Candle source ----
	src, writer, pinger, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}

	// ---- Chart surfaces ----
	hub := gateway.NewHub(0, log)
	surfaces := overlay.Fanout{overlay.Instrument("ws", hub, prom)}

	var rdb *goredis.Client
	var redisSurface *redisstore.Surface
	if cfg.Redis.Enabled {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			src.Close()
			return err
		}
		defer rdb.Close()

		cb := redisstore.NewCircuitBreaker(cfg.Redis.BreakerMaxFailures, cfg.Redis.BreakerReset)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.ObserveBreaker(int(from), int(to))
			log.Warn("redis circuit breaker", "component", "redis", "from", from.String(), "to", to.String())
		}
		redisSurface = redisstore.NewSurface(rdb, cb, 0, log)
		surfaces = append(surfaces, overlay.Instrument("redis", redisSurface, prom))
	}

	// ---- Service ----
	svc, err := indengine.New(cfg.Charts.Symbols, src, surfaces, indengine.Options{
		Timeframe:   cfg.Charts.Timeframe,
		CandleLimit: cfg.Charts.CandleLimit,
		MACDSignal:  cfg.Charts.MACDShowSignal,
		Default:     cfg.Selection(),
		Writer:      writer,
		Metrics:     prom,
		Health:      health,
		Logger:      log,
	})
	if err != nil {
		src.Close()
		return err
	}
	defer svc.Close()

	if err := svc.Init(ctx); err != nil {
		log.Warn("starting with incomplete charts", "error", err)
	}
	health.CheckSource(ctx, pinger)

	var sched *indengine.Scheduler
	if cfg.Charts.RefreshCron != "" {
		sched, err = indengine.NewScheduler(ctx, svc, cfg.Charts.RefreshCron)
		if err != nil {
			return err
		}
		sched.Start()
	}

	if rdb != nil {
		ps := redisstore.SubscribeSelections(ctx, rdb, cfg.Redis.SelectChannel)
		defer ps.Close()
		go svc.RunSelections(ctx, ps)
		go flushLoop(ctx, redisSurface, cfg.Redis.BreakerReset)
		log.Info("listening for selection commands", "channel", cfg.Redis.SelectChannel)
	}

	health.StartLivenessChecker(ctx, rdb, pinger, 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	metricsSrv.Start()

	// ---- HTTP: chart API + WebSocket gateway ----
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	gateway.RegisterRoutes(mux, hub)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "charts", svc.Symbols())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()

	// ---- Graceful shutdown ----
	log.Info("shutdown signal received")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := metricsSrv.Stop(shutCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
	if redisSurface != nil {
		redisSurface.Flush(shutCtx)
	}
	log.Info("shutdown complete")
	return nil
}

// openSource opens the configured candle store. SQLite also accepts writes
// from the series endpoint.
func openSource(ctx context.Context, cfg *config.Config, log *slog.Logger) (indengine.CandleSource, indengine.CandleWriter, metrics.Pinger, error) {
	switch cfg.Source.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDatabase(ctx, cfg.Source.PostgresURL)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("candle source ready", "driver", "postgres")
		return db, nil, db, nil
	default:
		if dir := filepath.Dir(cfg.Source.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, err
			}
		}
		store, err := sqlite.Open(cfg.Source.SQLitePath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("candle source ready", "driver", "sqlite", "path", cfg.Source.SQLitePath)
		return store, store, store, nil
	}
}

// flushLoop retries line writes held while the Redis breaker was open.
func flushLoop(ctx context.Context, s *redisstore.Surface, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.PendingCount() > 0 {
				s.Flush(ctx)
			}
		}
	}
}
