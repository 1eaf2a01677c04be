// The watchdog sends reminder emails for approvals that have sat pending
// past their reminder time. It runs on a poll interval, exposes an ops
// HTTP surface and takes a distributed lock so only one instance sends.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/api"
	"github.com/msapprovals/watchdog/internal/config"
	"github.com/msapprovals/watchdog/internal/details"
	"github.com/msapprovals/watchdog/internal/history"
	"github.com/msapprovals/watchdog/internal/intake"
	"github.com/msapprovals/watchdog/internal/logging"
	"github.com/msapprovals/watchdog/internal/metrics"
	"github.com/msapprovals/watchdog/internal/names"
	"github.com/msapprovals/watchdog/internal/notify"
	"github.com/msapprovals/watchdog/internal/pkg/distlock"
	"github.com/msapprovals/watchdog/internal/reminder"
	"github.com/msapprovals/watchdog/internal/runlog"
	"github.com/msapprovals/watchdog/internal/storage"
	"github.com/msapprovals/watchdog/internal/tenant"
)

const runLockKey = "watchdog:run-lock"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	if err := run(*configPath, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, runOnce bool) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewClient(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}
	summaries := storage.NewSummaryStore(store, cfg.Storage.SummaryTable)
	tenants := storage.NewTenantStore(store, cfg.Storage.TenantTable)
	templates := storage.NewTemplateStore(store, cfg.Storage.TemplateTable)
	blobs := storage.NewBlobStore(store, cfg.Storage.Bucket)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing without it", zap.Error(err))
			redisClient = nil
		}
	}

	var db *sql.DB
	var runs *runlog.Store
	if cfg.Postgres.DSN != "" {
		db, err = runlog.Open(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("opening run log: %w", err)
		}
		defer db.Close()
		runs = runlog.NewStore(db)
	}
	if redisClient == nil && db == nil {
		log.Warn("no redis or postgres configured, run lock is process-local only")
	}

	provider := tenant.NewProvider(tenants, 5*time.Minute, log)
	nameClient := names.NewClient(cfg.Collaborators.NamesURL, cfg.Collaborators.Timeout, cfg.Collaborators.RetryMax, log)
	historyClient := history.NewClient(cfg.Collaborators.HistoryURL, cfg.Collaborators.Timeout, cfg.Collaborators.RetryMax)
	detailsHelper := details.NewHelper(cfg.Collaborators.DetailsURL, blobs, cfg.Storage.AttachmentsPrefix,
		cfg.Collaborators.Timeout, cfg.Collaborators.RetryMax, log)

	sink, err := notify.NewSESSink(ctx, cfg.SES, log)
	if err != nil {
		return fmt.Errorf("creating ses sink: %w", err)
	}
	builder := notify.NewBuilder(templates, detailsHelper, historyClient, nameClient,
		cfg.Watchdog.BaseURL, cfg.Watchdog.AttachmentSizeLimitMB, log)

	var pacer reminder.Pacer
	if redisClient != nil && cfg.Watchdog.RatePerMinute > 0 {
		pacer = reminder.NewTokenBucketPacer(redisClient, "watchdog:pace", cfg.Watchdog.RatePerMinute)
	} else {
		pacer = reminder.NewBatchPacer(cfg.Watchdog.BatchPause)
	}

	data := reminder.NewData(summaries, blobs, log)
	proc := reminder.NewProcessor(data, provider, builder, sink, pacer,
		cfg.Watchdog.LookbackDays, cfg.Watchdog.BatchSize, cfg.Watchdog.MaxFailureCount, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	loop := &runLoop{
		proc:    proc,
		lock:    distlock.New(redisClient, db, runLockKey, 15*time.Minute),
		metrics: m,
		runs:    runs,
		log:     log,
	}

	if runOnce {
		out, err := loop.TriggerRun(ctx)
		if err != nil {
			return err
		}
		log.Info("single pass complete", zap.String("runId", out.RunID), zap.Int("sent", out.Sent))
		return nil
	}

	in, err := intake.New(summaries, log)
	if err != nil {
		return fmt.Errorf("creating intake: %w", err)
	}
	handlers := api.NewHandlers(loop, runHistory(runs), in, reg, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler:      handlers.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		log.Info("ops server listening", zap.Int("port", cfg.Ops.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", zap.Error(err))
			stop()
		}
	}()

	ticker := time.NewTicker(cfg.Watchdog.PollInterval)
	defer ticker.Stop()
	log.Info("watchdog started", zap.Duration("pollInterval", cfg.Watchdog.PollInterval))

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case <-ticker.C:
			out, err := loop.TriggerRun(ctx)
			switch {
			case errors.Is(err, reminder.ErrRunInProgress):
				log.Warn("skipping scheduled pass, previous run still active")
			case err != nil:
				log.Error("scheduled pass failed", zap.Error(err))
			default:
				handlers.SetLastRun(out)
			}
		}
	}
}

// runLoop serializes reminder runs behind the process flag and the
// distributed lock.
type runLoop struct {
	proc    *reminder.Processor
	lock    distlock.Lock
	metrics *metrics.Metrics
	runs    *runlog.Store
	log     *zap.Logger
	busy    atomic.Bool
}

func (r *runLoop) TriggerRun(ctx context.Context) (*reminder.RunOutcome, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, reminder.ErrRunInProgress
	}
	defer r.busy.Store(false)

	got, err := r.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !got {
		return nil, reminder.ErrRunInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.lock.Release(releaseCtx); err != nil {
			r.log.Warn("releasing run lock failed", zap.Error(err))
		}
	}()

	out, err := r.proc.SendReminders(ctx, time.Now().UTC())
	if out != nil {
		r.metrics.ObserveRun(out)
		if r.runs != nil {
			if recErr := r.runs.Record(ctx, out); recErr != nil {
				r.log.Warn("recording run failed", zap.Error(recErr))
			}
		}
	}
	return out, err
}

// noHistory backs /runs when no run-log database is configured.
type noHistory struct{}

func (noHistory) RecentRuns(context.Context, int) ([]reminder.RunOutcome, error) {
	return nil, nil
}

func runHistory(runs *runlog.Store) api.RunHistory {
	if runs == nil {
		return noHistory{}
	}
	return runs
}
