// cmd/reportd keeps backtest reports fresh: it re-runs the configured rule
// sweeps on a cron schedule, persists the results to SQLite, caches them in
// Redis and streams them to WebSocket subscribers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signalperf/config"
	"signalperf/internal/backtest"
	"signalperf/internal/feed"
	"signalperf/internal/logger"
	"signalperf/internal/metrics"
	"signalperf/internal/model"
	"signalperf/internal/notification"
	"signalperf/internal/perf"
	"signalperf/internal/scheduler"
	redisstore "signalperf/internal/store/redis"
	sqlitestore "signalperf/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

// chanWriter hands records to the batching SQLite writer.
type chanWriter chan<- *model.RunRecord

func (c chanWriter) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	select {
	case c <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := "configs/reportd.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[reportd] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[reportd] config validation: %v", err)
	}
	if len(cfg.Jobs) == 0 {
		log.Fatal("[reportd] no jobs configured")
	}

	slogger := logger.Init("reportd", logger.ParseLevel(cfg.LogLevel))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	symbols := make([]string, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		symbols = append(symbols, j.Symbol)
	}
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[reportd] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	health.SetSQLiteOK(true)

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[reportd] sqlite reader failed: %v", err)
	}
	defer reader.Close()

	recCh := make(chan *model.RunRecord, 1000)
	writerDone := make(chan struct{})
	go func() {
		sqlWriter.Run(ctx, recCh)
		close(writerDone)
	}()

	// ---- Feed ----
	hub := feed.NewHub(500)
	hub.OnClients = func(n int) { prom.FeedClients.Set(float64(n)) }
	hub.OnDrop = prom.FeedDrops.Inc
	feedSrv := &http.Server{
		Addr:              cfg.FeedAddr,
		Handler:           feed.NewMux(hub, reader),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[reportd] feed listening on %s", cfg.FeedAddr)
		if err := feedSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[reportd] feed server error: %v", err)
		}
	}()

	// ---- Redis (optional) ----
	sinks := scheduler.Sinks{Writer: chanWriter(recCh), Publisher: hub}
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		cache, err := redisstore.New(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ReportTTL,
		})
		if err != nil {
			log.Printf("[reportd] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer cache.Close()
			rdb = cache.Client()
			health.CheckRedis(ctx, rdb)
			cache.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[reportd] redis circuit %s → %s", from, to)
			}
			buffered := redisstore.NewBufferedCache(ctx, cache, cb, 0)
			buffered.OnBuffer = prom.RedisBufferedWrites.Inc
			buffered.OnFlush = func(n int) { log.Printf("[reportd] replayed %d buffered reports to redis", n) }
			sinks.Cache = buffered

			// Cache.Put announces on Pub/Sub; the feed relays announcements
			// from every instance.
			sinks.Publisher = nil
			relay := make(chan *model.RunRecord, 256)
			go func() {
				if err := cache.Subscribe(ctx, relay); err != nil {
					log.Printf("[reportd] redis subscribe: %v", err)
				}
			}()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case rec := <-relay:
						hub.Publish(rec)
					}
				}
			}()
		}
	}
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)

	// ---- Scheduler ----
	engine := perf.NewEngine(cfg.PerfConfig(), slogger, prom)
	runner := backtest.NewRunner(cfg.RunnerConfig(), engine, slogger, prom)

	jobs := make([]scheduler.Job, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		jobs = append(jobs, scheduler.Job{Symbol: j.Symbol, TF: j.TF, Point: j.Point, Rules: j.RuleIdentities()})
	}
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.AlertWebhookURL, "reportd")
	}
	watcher := notification.NewRefreshWatcher(notifier, cfg.AlertCritAfter)

	sched := scheduler.New(reader, runner, sinks, jobs)
	sched.OnRefresh = func(t time.Time, err error) {
		health.SetRefresh(t, err)
		watcher.Observe(ctx, t, err)
		if cfg.KeepReports > 0 {
			if n, err := sqlWriter.PruneReports(ctx, cfg.KeepReports); err != nil {
				log.Printf("[reportd] prune reports: %v", err)
			} else if n > 0 {
				log.Printf("[reportd] pruned %d old reports", n)
			}
		}
	}
	if err := sched.Register(ctx, cfg.RefreshCron); err != nil {
		log.Fatalf("[reportd] register refresh: %v", err)
	}
	sched.Start()

	// First refresh right away instead of waiting for the first tick.
	go func() {
		if err := sched.Refresh(ctx); err != nil {
			log.Printf("[reportd] initial refresh: %v", err)
		}
	}()

	log.Printf("[reportd] running: %d jobs, refresh %q, metrics %s, feed %s",
		len(jobs), cfg.RefreshCron, cfg.MetricsAddr, cfg.FeedAddr)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[reportd] shutdown signal received, cleaning up...")
	sched.Stop()
	cancel()
	<-writerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	hub.Close()
	feedSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Println("[reportd] shutdown complete.")
}
