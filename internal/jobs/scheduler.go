package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/greendale-game/airdrop-bot/pkg/config"
)

// Scheduler enqueues recurring tasks on their cron schedules.
type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	cfg            config.JobsConfig
	log            *slog.Logger
}

// NewScheduler builds a Scheduler over the shared Redis connection.
func NewScheduler(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		cfg:            cfg,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewPendingReminderTask(s.cfg.PendingReminderAfter)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.cfg.PendingReminderCron, task); err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered pending reminder task",
		slog.String("cron", s.cfg.PendingReminderCron))

	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
