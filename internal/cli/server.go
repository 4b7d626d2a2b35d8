package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	pgstore "classroom-quiz-service/internal/infra/postgres"
	rediscache "classroom-quiz-service/internal/infra/redis"
	"classroom-quiz-service/internal/logging"
	"classroom-quiz-service/internal/metrics"
	transport "classroom-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}

// quizSource is satisfied by both the memory and the Postgres quiz stores.
type quizSource interface {
	app.QuizCatalog
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		source   quizSource
		attempts app.AttemptRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		source = pgstore.NewQuizStore(pool)
		attempts = pgstore.NewAttemptStore(pool)
	} else {
		logger.Warn("postgres not configured, using in-memory stores with a sample quiz")
		source = memory.NewQuizStore(sampleQuizzes(time.Now()))
		attempts = memory.NewAttemptStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = rediscache.NewQuizRepository(redisClient, source, quizTTL, logger)
	} else {
		quizRepo = memory.NewQuizRepository(source, quizTTL)
	}

	// With Redis, events fan out through pub/sub so every instance's feed sees
	// them; otherwise the local broadcaster receives them directly.
	feed := app.NewBroadcaster()
	var events app.EventPublisher = feed
	if redisClient != nil {
		events = rediscache.NewEventPublisher(redisClient)
	}

	service := app.NewQuizService(quizRepo, source, attempts, events, feed, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authn := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	routerOpts := transport.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins}
	if cfg.RateLimit.PerMinute > 0 {
		routerOpts.SubmitLimiter = transport.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, authn, m, logger, routerOpts),
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisClient != nil {
		g.Go(func() error {
			return rediscache.NewEventRelay(redisClient, feed, logger).Run(gctx, nil)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// sampleQuizzes seeds the in-memory store with one quiz open for the next day.
func sampleQuizzes(now time.Time) map[string]domain.Quiz {
	start := now.Truncate(time.Hour)
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			SubjectID:       "subject-1",
			Title:           "Warm-up",
			Description:     "A short sample quiz",
			StartTime:       start,
			EndTime:         start.Add(24 * time.Hour),
			DurationMinutes: 15,
			CreatedBy:       "system",
			CreatedAt:       now,
			Questions: []domain.Question{
				{
					ID:      "q1",
					QuizID:  "quiz-1",
					Content: "What is 2 + 2?",
					Type:    domain.MultipleChoice,
					Key: domain.MultipleChoiceOptions{Options: []domain.Option{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
						{Text: "5"},
					}},
					Points: 1,
				},
				{
					ID:       "q2",
					QuizID:   "quiz-1",
					Position: 1,
					Content:  "Capital of France?",
					Type:     domain.ShortAnswer,
					Key:      domain.FreeformAnswer{Text: "Paris"},
					Points:   2,
				},
			},
		},
	}
}
