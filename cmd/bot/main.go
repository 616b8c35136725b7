package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greendale-game/airdrop-bot/internal/bot"
	"github.com/greendale-game/airdrop-bot/internal/database"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/internal/health"
	"github.com/greendale-game/airdrop-bot/internal/i18n"
	"github.com/greendale-game/airdrop-bot/internal/idempotency"
	"github.com/greendale-game/airdrop-bot/internal/jobs"
	jobhandlers "github.com/greendale-game/airdrop-bot/internal/jobs/handlers"
	"github.com/greendale-game/airdrop-bot/internal/lifecycle"
	"github.com/greendale-game/airdrop-bot/internal/locker"
	"github.com/greendale-game/airdrop-bot/internal/poller"
	"github.com/greendale-game/airdrop-bot/internal/registration"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/internal/session"
	"github.com/greendale-game/airdrop-bot/internal/tasks"
	"github.com/greendale-game/airdrop-bot/internal/user"
	"github.com/greendale-game/airdrop-bot/internal/usercache"
	"github.com/greendale-game/airdrop-bot/internal/verifier"
	"github.com/greendale-game/airdrop-bot/pkg/config"
	"github.com/greendale-game/airdrop-bot/pkg/graceful"
	"github.com/greendale-game/airdrop-bot/pkg/logger"
	"github.com/greendale-game/airdrop-bot/pkg/metrics"
	pkgredis "github.com/greendale-game/airdrop-bot/pkg/redis"

	_ "github.com/lib/pq"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting airdrop bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("server_port", cfg.Server.Port))

	config.Watch(v, func(*config.Config) {
		log.Info("configuration file changed, restart to apply")
	})

	if cfg.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			TracesSampleRate: cfg.Sentry.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	err = apperrors.WithRetry(ctx, func() error {
		if err := db.PingContext(ctx); err != nil {
			return apperrors.NewExternalError("postgres", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	var redisClient *pkgredis.Client
	err = apperrors.WithRetry(ctx, func() error {
		var rerr error
		redisClient, rerr = pkgredis.New(ctx, cfg.Redis)
		if rerr != nil {
			return apperrors.NewExternalError("redis", rerr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	translations, err := i18n.Load("en")
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	tr := translations.Translator("en")

	repo := repository.NewUserRepository(db, log)
	users := user.NewService(repo, usercache.NewCache(redisClient, cfg.Session.ProfileTTL), log)
	locks := locker.New(redisClient, log)
	sessions := session.NewStore(redisClient, cfg.Session.TTL)

	tb, err := bot.NewTelebot(*cfg)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	checker := metrics.InstrumentChecker(verifier.New(tb, cfg.Verification.Groups, log))
	flow := registration.NewFlow(users, checker, locks, tr, log, cfg.Referral, cfg.Twitter.PageLink)

	taskAPI := tasks.NewClient(cfg.TaskAPI)
	workflow := tasks.NewWorkflow(taskAPI, users, sessions, tr, log)

	tgBot := bot.New(*cfg, log, tb, flow, workflow, idempotency.NewRedisStore(redisClient, log))

	pollers := poller.New(flow, tgBot.Renderer(), cfg.Verification, log)
	flow.SetPollerStarter(pollers)

	go metrics.NewStepCollector(users, pollers).Run(ctx)

	checks := health.NewChecker(log)
	checks.AddCheck("database", health.NewDBChecker(db))
	checks.AddCheck("redis", health.NewRedisChecker(redisClient))
	checks.AddCheck("telegram", health.NewTelegramChecker(tb))

	mux := http.NewServeMux()
	mux.Handle("/healthz", checks.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	opsServer := graceful.NewServer(log, &http.Server{
		Addr:    cfg.Server.Port,
		Handler: mux,
	}, cfg.Server.ShutdownTimeout)

	go func() {
		if err := opsServer.ListenAndServe(ctx); err != nil {
			log.Error("ops server failed", slog.Any("error", err))
		}
	}()

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("telegram_bot", func(context.Context) error {
		tgBot.Stop()
		return nil
	})
	shutdown.Register("membership_pollers", pollers.Shutdown)

	if cfg.Jobs.Enabled {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		worker := jobs.NewWorker(redisOpt, map[string]int{
			jobs.QueueDefault: 6,
			jobs.QueueLow:     3,
		}, log)
		worker.RegisterHandler(jobs.TaskTypePendingReminder,
			jobhandlers.NewPendingReminderHandler(users, tgBot.Renderer(), tr, log))

		scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs, log)
		if err := scheduler.RegisterTasks(); err != nil {
			return fmt.Errorf("register scheduled jobs: %w", err)
		}

		go func() {
			if err := worker.Run(); err != nil {
				log.Error("job worker failed", slog.Any("error", err))
			}
		}()
		go scheduler.Run()

		shutdown.Register("job_worker", func(context.Context) error {
			worker.Shutdown()
			return nil
		})
		shutdown.Register("job_scheduler", func(context.Context) error {
			scheduler.Shutdown()
			return nil
		})
	}

	go tgBot.Start()
	log.Info("airdrop bot is running")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}
