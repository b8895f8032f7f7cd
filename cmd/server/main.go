// Command server runs the interview backend HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/questions"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/repo/memory"
	mongorepo "github.com/fairyhunter13/ai-interviewer/internal/adapter/repo/mongo"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-interviewer/internal/app"
	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the argon2id hash for INTERVIEWER_PASSWORD_HASH and exit")
	flag.Parse()
	if *hashPassword != "" {
		h, err := httpserver.HashPassword(*hashPassword, httpserver.DefaultArgon2Params)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		slog.Warn("tracing disabled", slog.Any("error", err))
	} else {
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdownTracing(sctx)
		}()
	}

	repos, storePinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store init failed", slog.String("store", cfg.Store), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("store ready", slog.String("store", cfg.Store))

	// Redis is optional; without it the LLM budget is not shared.
	var redisPinger app.Pinger
	var limiter ratelimiter.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		redisPinger = app.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		limiter = ratelimiter.NewTokenBucket(rdb, map[string]ratelimiter.BucketConfig{
			ai.LimiterKey: ratelimiter.PerMinute(cfg.AIRateLimitPerMin),
		})
	}

	chainOpts := []ai.ChainOption{}
	if limiter != nil {
		chainOpts = append(chainOpts, ai.WithLimiter(limiter))
	}
	chain := ai.NewChain(ai.ProvidersFromConfig(ctx, cfg), chainOpts...)
	var aiClient domain.AIClient
	if chain.Empty() {
		slog.Warn("no llm provider configured, evaluations use the local heuristic")
	} else {
		aiClient = chain
		slog.Info("llm chain ready", slog.String("providers", chain.Provider()))
	}

	counter := tokencount.NewCounter()
	truncate := func(s string) string {
		out, cut := counter.Truncate(s, cfg.OpenAIModel, cfg.AIMaxAnswerTokens)
		if cut {
			slog.Debug("answer truncated for judge", slog.Int("max_tokens", cfg.AIMaxAnswerTokens))
		}
		return out
	}

	var events domain.EventPublisher = redpanda.NoopPublisher{}
	var eventsPinger app.Pinger
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.AttemptEventsTopic)
		if err != nil {
			slog.Error("event producer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = producer.Close() }()
		events = producer
		eventsPinger = producer
	}

	pool, err := config.LoadQuestionPool(cfg.QuestionPoolFile)
	if err != nil {
		slog.Error("question pool load failed", slog.Any("error", err))
		os.Exit(1)
	}
	extractor := tika.New(cfg.TikaURL, cfg.AIRequestTimeout)

	srv := httpserver.NewServer(
		cfg,
		usecase.NewUserService(repos.users, domain.SystemClock),
		usecase.NewSessionService(repos.users, repos.sessions, domain.SystemClock, cfg.SessionTTL),
		usecase.NewTrackerService(repos.users, repos.attempts, events, domain.SystemClock, cfg.TrackerAllowNewSession),
		usecase.NewDashboardService(repos.attempts),
		usecase.NewEvaluateService(aiClient, truncate),
		usecase.NewQuestionService(questions.NewPool(pool), aiClient, cfg.QuestionsFromLLM),
		usecase.NewResumeService(extractor),
		app.BuildReadinessChecks(storePinger, redisPinger, extractor, eventsPinger)...,
	)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		slog.Info("shutdown signal received", slog.String("signal", s.String()))
	case err := <-errCh:
		slog.Error("server error", slog.Any("error", err))
	}

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer scancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
	slog.Info("server stopped")
}

type repoSet struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	attempts domain.AttemptRepository
}

// openStore connects the configured backend and returns its repositories,
// a readiness pinger (nil for memory) and a close func.
func openStore(ctx context.Context, cfg config.Config) (repoSet, app.Pinger, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		client, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return repoSet{}, nil, nil, err
		}
		if err := mongorepo.EnsureIndexes(ctx, client.DB()); err != nil {
			_ = client.Close(context.Background())
			return repoSet{}, nil, nil, err
		}
		db := client.DB()
		closeFn := func() {
			cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ccancel()
			_ = client.Close(cctx)
		}
		return repoSet{
			users:    mongorepo.NewUserRepo(db),
			sessions: mongorepo.NewSessionRepo(db),
			attempts: mongorepo.NewAttemptRepo(db),
		}, client, closeFn, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return repoSet{}, nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return repoSet{}, nil, nil, err
		}
		go postgres.NewCleanupService(pool).RunPeriodic(ctx, cfg.CleanupInterval)
		return repoSet{
			users:    postgres.NewUserRepo(pool),
			sessions: postgres.NewSessionRepo(pool),
			attempts: postgres.NewAttemptRepo(pool),
		}, pool, pool.Close, nil
	default:
		store := memory.NewStore()
		slog.Warn("using in-memory store, data is lost on restart")
		return repoSet{
			users:    store.Users(),
			sessions: store.Sessions(),
			attempts: store.Attempts(),
		}, nil, func() {}, nil
	}
}
