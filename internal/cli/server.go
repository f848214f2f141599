package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/backend"
	"gig-geni-service/internal/config"
	"gig-geni-service/internal/infra/memory"
	pgjournal "gig-geni-service/internal/infra/postgres"
	infraredis "gig-geni-service/internal/infra/redis"
	"gig-geni-service/internal/metrics"
	transport "gig-geni-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// quizCacheRepository is what both quiz caches offer the services.
type quizCacheRepository interface {
	app.QuizRepository
	app.QuizCache
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port, backendURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the journey and quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, *backendURL)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag, backendFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	baseURL := backendFlag
	if baseURL == "" {
		baseURL = cfg.Backend.BaseURL
	}
	if baseURL == "" {
		return errors.New("backend url not configured (set --backend-url, BACKEND_URL or backend.baseURL)")
	}

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(metrics.WithRegistry(registry))

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer redisClient.Close()
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)
	tokenTTL := config.TTLDuration(cfg.Redis.TokenTTL, 24*time.Hour)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var tokens backend.TokenStore
	if redisClient != nil {
		tokens = infraredis.NewTokenStore(redisClient, tokenTTL)
	} else {
		tokens = memory.NewTokenStore()
	}

	client := backend.NewClient(baseURL, &http.Client{
		Timeout: config.TTLDuration(cfg.Backend.Timeout, 15*time.Second),
	}, tokens, logger.Named("backend"), recorder)
	loader := backend.NewQuizLoader(client)

	var quizRepo quizCacheRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL, logger)
		store = infraredis.NewSessionStore(redisClient, sessionTTL, logger)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	var journal app.AttemptJournal = memory.NewAttemptJournal()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		journal = pgjournal.NewAttemptJournal(pool)
	}

	quizService := app.NewQuizService(store, quizRepo, client, client, journal, logger.Named("quiz"), app.WithMetrics(recorder))
	journeyService := app.NewJourneyService(client, logger.Named("journey"), app.WithQuizCache(quizRepo))

	handler := transport.NewRouter(transport.Routes{
		API:     transport.NewAPIHandler(journeyService, logger),
		WS:      transport.NewWSHandler(quizService, logger.Named("ws")),
		Tokens:  tokens,
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("starting gig-geni service", zap.String("port", finalPort), zap.String("backend", baseURL))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	return serve(ctx, server, stop, logger)
}

// serve runs server until it fails, a signal arrives on stop, or ctx ends.
// A listen failure is returned; otherwise the server is shut down gracefully.
func serve(ctx context.Context, server *http.Server, stop <-chan os.Signal, logger *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			logger.Error("failed to start server", zap.Error(err))
			return fmt.Errorf("listen on %s: %w", server.Addr, err)
		}
		return nil
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
