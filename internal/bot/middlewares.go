package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/bot/handlers"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/internal/idempotency"
	"github.com/greendale-game/airdrop-bot/pkg/logger"
	"github.com/greendale-game/airdrop-bot/pkg/metrics"
)

const idempotencyTTL = 10 * time.Minute

// RecoveryMiddleware catches panics, reports them through the centralized
// handler, and keeps the update loop alive.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))

					appErr := apperrors.NewStoreError(fmt.Errorf("panic recovered: %v", r))
					userMsg, _ := errHandler.Handle(context.Background(), appErr)
					if userMsg != "" {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// IdempotencyMiddleware drops Telegram redeliveries: each update id is
// processed at most once per TTL window.
func IdempotencyMiddleware(store idempotency.Store, log *slog.Logger) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c tele.Context) error {
			update := c.Update()
			sender := c.Sender()
			if update.ID == 0 || sender == nil {
				return next(c)
			}

			key := idempotency.UpdateKey(sender.ID, update.ID)
			first, err := store.MarkOnce(context.Background(), key, idempotencyTTL)
			if err != nil {
				// Deduplication is best effort: a Redis hiccup must not
				// drop the update.
				log.Warn("idempotency check failed, processing anyway",
					slog.Int("update_id", update.ID),
					slog.Any("error", err))
				return next(c)
			}

			if !first {
				log.Info("duplicate update skipped",
					slog.Int("update_id", update.ID),
					slog.Int64("user_id", sender.ID))
				return nil
			}

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware converts handler failures into a user-facing
// message and reports them.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c tele.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			ctx := logger.WithCorrelationID(context.Background())
			userMsg, _ := errHandler.Handle(ctx, err)

			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				metrics.RecordError(appErr.Code, string(appErr.Severity))
			} else {
				metrics.RecordError("unknown", "unknown")
			}

			if userMsg != "" {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c tele.Context) error {
			start := time.Now()

			var userID int64
			if sender := c.Sender(); sender != nil {
				userID = sender.ID
			}

			action := updateLabel(c)

			log.Info("handling update",
				slog.Int64("user_id", userID),
				slog.String("action", action))

			err := next(c)

			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err))

			return err
		}
	}
}

// MetricsMiddleware records update counters and latencies.
func MetricsMiddleware() handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)

			status := "ok"
			if err != nil {
				status = "error"
			}

			metrics.RecordUpdate(updateLabel(c), status, time.Since(start))
			return err
		}
	}
}

// updateLabel normalizes an update to a low-cardinality handler label:
// the command, the callback prefix, or "text".
func updateLabel(c tele.Context) string {
	if cb := c.Callback(); cb != nil {
		data := strings.TrimSpace(cb.Data)
		if i := strings.LastIndex(data, "_"); i >= 0 && isNumeric(data[i+1:]) {
			return data[:i+1]
		}
		return data
	}

	text := c.Text()
	if strings.HasPrefix(text, "/") {
		if i := strings.IndexByte(text, ' '); i > 0 {
			return text[:i]
		}
		return text
	}

	return "text"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
