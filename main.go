package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/cache"
	"github.com/caldera-labs/plume/config"
	"github.com/caldera-labs/plume/extract"
	"github.com/caldera-labs/plume/feed"
	"github.com/caldera-labs/plume/handler"
	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/ingest"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/logger"
	"github.com/caldera-labs/plume/middleware"
	"github.com/caldera-labs/plume/observability"
	"github.com/caldera-labs/plume/profile"
	"github.com/caldera-labs/plume/queue"
	"github.com/caldera-labs/plume/retention"
	"github.com/caldera-labs/plume/router"
	"github.com/caldera-labs/plume/scheduler"
	"github.com/caldera-labs/plume/store"
	"github.com/caldera-labs/plume/suggest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	pageCache := cache.New(cfg.RedisURL, log)
	defer pageCache.Close()

	pool := httpclient.NewPool()
	fetcher := feed.NewFetcher(pool, log)
	extractor := extract.NewExtractor(pool, pageCache, log, cfg.ImpersonateBinary)

	rotatorCursor, err := strconv.Atoi(st.EffectiveSetting(ctx, "llm_rotator_cursor", "0"))
	if err != nil {
		rotatorCursor = 0
	}
	llmClient := llm.NewClient(pool, st, log, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxRPM, cfg.LLMTimeout, cfg.LLMAPIKeys, rotatorCursor)

	ingestor := ingest.NewIngestor(fetcher, st, log)
	worker := queue.NewWorker(st, extractor, llmClient, cfg.PromptBundlePath, cfg.LLMTargetLang, cfg.SummaryLockTimeout, log)
	retentionRunner := retention.New(st, cfg.MaxPostAgeDays, cfg.MaxUnreadDays, log)
	profileBuilder := profile.New(st, llmClient, cfg.PromptBundlePath, log)
	suggestionEngine := suggest.New(st, llmClient, profileBuilder, cfg.PromptBundlePath, log)

	metrics := observability.New(st.QueueDepth, llmClient.CircuitState)

	sched := scheduler.New(st, cfg.LockTimeout, log)
	registerJobs(sched, cfg, log, st, ingestor, worker, retentionRunner, profileBuilder, suggestionEngine, metrics)
	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx, cfg.HeartbeatInterval)
		close(schedDone)
	}()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret, st, log)
	authHandler := handler.NewAuthHandler(authMiddleware, cfg.AppPassword, st, log)
	adminHandler := handler.NewAdminHandler(st, sched, llmClient, cfg.DatabasePath, cfg.MaxDBSizeMB, log)

	mux := router.NewRouter(router.Config{
		Auth:        authMiddleware,
		AuthHandler: authHandler,
		Admin:       adminHandler,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	<-schedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
}

// registerJobs wires the six scheduled background jobs described for
// the aggregator pipeline, each gated on scheduler leadership.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	log zerolog.Logger,
	st *store.Store,
	ingestor *ingest.Ingestor,
	worker *queue.Worker,
	retentionRunner *retention.Runner,
	profileBuilder *profile.Builder,
	suggestionEngine *suggest.Engine,
	metrics *observability.Metrics,
) {
	sched.AddJob(scheduler.Job{
		Name:     "update_feeds",
		Interval: time.Duration(cfg.FeedUpdateIntervalMinutes) * time.Minute,
		Run: func(ctx context.Context) {
			feeds, err := st.EligibleFeeds(ctx, cfg.FeedsPerCycle)
			if err != nil {
				log.Error().Err(err).Msg("update_feeds: failed to list eligible feeds")
				return
			}
			for i := range feeds {
				result := ingestor.IngestFeed(ctx, &feeds[i])
				metrics.PostsIngested.Add(float64(result.New))
				metrics.PostsSkipped.Add(float64(result.Skipped))
				metrics.IngestErrors.Add(float64(result.Errors))
			}
			if n, err := worker.RunBackfillSweep(ctx); err != nil {
				log.Error().Err(err).Msg("update_feeds: backfill sweep failed")
			} else if n > 0 {
				log.Info().Int("enqueued", n).Msg("update_feeds: backfill sweep enqueued orphaned posts")
			}
		},
	})

	var lastCleanup time.Time
	sched.AddJob(scheduler.Job{
		Name:     "cleanup_retention",
		Interval: 15 * time.Minute,
		Run: func(ctx context.Context) {
			next, err := scheduler.NextCleanupRun(cfg.CleanupHour, lastCleanup)
			if err != nil {
				log.Error().Err(err).Msg("cleanup_retention: failed to compute schedule")
				return
			}
			if time.Now().Before(next) {
				return
			}
			if err := retentionRunner.Run(ctx); err != nil {
				log.Error().Err(err).Msg("cleanup_retention: run failed")
				return
			}
			lastCleanup = time.Now()
		},
	})

	sched.AddJob(scheduler.Job{
		Name:     "health_check",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) {
			if err := st.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("health_check: database ping failed")
				return
			}
			size, err := st.FileSizeBytes(cfg.DatabasePath)
			if err != nil {
				log.Warn().Err(err).Msg("health_check: failed to stat database")
				return
			}
			limitBytes := int64(cfg.MaxDBSizeMB) * 1024 * 1024
			if size > limitBytes {
				log.Warn().Int64("size_bytes", size).Int64("limit_bytes", limitBytes).Msg("health_check: database size exceeds configured cap")
			}
		},
	})

	summaryCadence := time.Duration(60/maxInt(cfg.LLMMaxRPM, 1)) * time.Second
	if summaryCadence < 5*time.Second {
		summaryCadence = 5 * time.Second
	} else {
		summaryCadence += time.Second
	}
	sched.AddJob(scheduler.Job{
		Name:     "process_summaries",
		Interval: summaryCadence,
		Run: func(ctx context.Context) {
			outcome, err := worker.Tick(ctx)
			if err != nil {
				log.Error().Err(err).Msg("process_summaries: tick failed")
				return
			}
			switch outcome {
			case queue.OutcomeSummarized:
				metrics.SummariesOK.Inc()
			case queue.OutcomeFailed:
				metrics.SummariesFailed.Inc()
			}
		},
	})

	sched.AddJob(scheduler.Job{
		Name:     "update_user_profile",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) {
			rebuilt, err := profileBuilder.Rebuild(ctx)
			if err != nil {
				log.Error().Err(err).Msg("update_user_profile: rebuild failed")
				return
			}
			if rebuilt {
				log.Info().Msg("update_user_profile: profile rebuilt")
			}
		},
	})

	sched.AddJob(scheduler.Job{
		Name:     "process_suggestions",
		Interval: time.Hour,
		Run: func(ctx context.Context) {
			marked, err := suggestionEngine.Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("process_suggestions: run failed")
				return
			}
			metrics.SuggestionsMade.Add(float64(marked))
		},
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
