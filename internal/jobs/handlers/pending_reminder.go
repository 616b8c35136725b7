// Package handlers implements the background job handlers.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/internal/i18n"
	"github.com/greendale-game/airdrop-bot/internal/jobs"
	"github.com/greendale-game/airdrop-bot/internal/repository"
)

// Notifier delivers a reply to a user outside a request cycle.
type Notifier interface {
	Notify(ctx context.Context, userID int64, reply *convo.Reply) error
}

// PendingReminderHandler reminds users whose Twitter verification has sat
// in the moderation queue for too long.
type PendingReminderHandler struct {
	repo     repository.UserRepository
	notifier Notifier
	tr       i18n.Translator
	log      *slog.Logger
}

func NewPendingReminderHandler(
	repo repository.UserRepository,
	notifier Notifier,
	tr i18n.Translator,
	log *slog.Logger,
) *PendingReminderHandler {
	return &PendingReminderHandler{
		repo:     repo,
		notifier: notifier,
		tr:       tr,
		log:      log.With(slog.String("component", "pending_reminder")),
	}
}

func (h *PendingReminderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.PendingReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "pending reminder: failed to decode payload",
			slog.String("task_type", t.Type()),
			slog.Any("error", err))
		return err
	}

	pendingSince := time.Now().UTC().Add(-payload.PendingFor)

	users, err := h.repo.ListPendingTwitter(ctx, pendingSince)
	if err != nil {
		h.log.ErrorContext(ctx, "pending reminder: list failed", slog.Any("error", err))
		return err
	}

	reminded := 0
	for _, u := range users {
		reply := convo.NewReply(h.tr.T("registration.pending_reminder"))
		if err := h.notifier.Notify(ctx, u.TelegramID, reply); err != nil {
			// A blocked bot or deleted account must not fail the batch.
			h.log.WarnContext(ctx, "pending reminder: notify failed",
				slog.Int64("user_id", u.TelegramID),
				slog.Any("error", err))
			continue
		}
		reminded++
	}

	h.log.InfoContext(ctx, "pending reminder: batch done",
		slog.Int("candidates", len(users)),
		slog.Int("reminded", reminded))

	return nil
}
