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

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizwhiz-service/internal/app"
	"quizwhiz-service/internal/config"
	"quizwhiz-service/internal/infra/memory"
	infranats "quizwhiz-service/internal/infra/nats"
	pgloader "quizwhiz-service/internal/infra/postgres"
	infraredis "quizwhiz-service/internal/infra/redis"
	"quizwhiz-service/internal/infra/sqlite"
	transport "quizwhiz-service/internal/transport/http"
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

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	clock := clockwork.NewRealClock()
	service := app.NewQuizService(deps.sessions, deps.quizzes,
		app.WithClock(clock),
		app.WithCreator(deps.creator),
		app.WithPublisher(deps.publishers),
	)
	scheduler := app.NewScheduler(service, clock,
		config.TTLDuration(cfg.Session.TickInterval, app.DefaultTickInterval),
		config.TTLDuration(cfg.Session.IdleTTL, app.DefaultIdleTTL),
	)

	wsHandler := transport.NewWSHandler(service, transport.DefaultConnectionConfig())
	router := transport.NewRouter(service, wsHandler, transport.RouterConfig{
		BaseURL:        cfg.Server.BaseURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// dependencies are the storage and mirror adapters chosen from config.
type dependencies struct {
	sessions   app.SessionRepository
	quizzes    app.QuizRepository
	creator    app.QuizCreator
	publishers app.Publishers
	closers    []func() error
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close dependency")
		}
	}
}

func buildDependencies(ctx context.Context, cfg config.Config) (*dependencies, error) {
	deps := &dependencies{}
	fail := func(err error) (*dependencies, error) {
		deps.close()
		return nil, err
	}
	questionTime := cfg.QuestionTimeSeconds()

	var loaders chainLoader
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return fail(err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		deps.closers = append(deps.closers, func() error { pool.Close(); return nil })
		loaders = append(loaders, pgloader.NewQuizLoader(pool, questionTime))
	}

	if cfg.SQLite.Path != "" {
		bank, err := openBank(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, bank.Close)
		loaders = append(loaders, bank)
		deps.creator = bank
	}
	if len(loaders) == 0 {
		return fail(errors.New("no quiz source configured: set sqlite.path or postgres.url"))
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		deps.closers = append(deps.closers, client.Close)
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		deps.quizzes = infraredis.NewQuizRepository(client, loaders, quizTTL)
		deps.sessions = infraredis.NewSessionStore(client, redisTTL)
		deps.publishers = append(deps.publishers, infraredis.NewSnapshotCache(client, redisTTL))
	} else {
		deps.quizzes = memory.NewQuizRepository(loaders, quizTTL)
		deps.sessions = memory.NewSessionStore()
	}

	if cfg.NATS.URL != "" {
		natsCfg := infranats.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err := infranats.NewPublisher(natsCfg)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, publisher.Close)
		deps.publishers = append(deps.publishers, publisher)
	}
	return deps, nil
}

// openBank opens the sqlite question bank and seeds it from CSV when empty.
func openBank(ctx context.Context, cfg config.Config) (*sqlite.QuestionBank, error) {
	bank, err := sqlite.Open(cfg.SQLite.Path, cfg.Quiz.QuestionsPerQuiz, cfg.QuestionTimeSeconds())
	if err != nil {
		return nil, err
	}
	count, err := bank.CountQuestions(ctx)
	if err != nil {
		bank.Close()
		return nil, err
	}
	if count > 0 || cfg.SQLite.CSV == "" {
		return bank, nil
	}
	f, err := os.Open(cfg.SQLite.CSV)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("csv", cfg.SQLite.CSV).Msg("question bank is empty and no CSV found; /create will fail until seeded")
		return bank, nil
	}
	if err != nil {
		bank.Close()
		return nil, err
	}
	defer f.Close()
	if _, err := bank.SeedCSV(ctx, f); err != nil {
		bank.Close()
		return nil, err
	}
	return bank, nil
}
