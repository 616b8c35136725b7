package bot

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/bot/keyboard"
	"github.com/greendale-game/airdrop-bot/internal/convo"
)

// Renderer turns replies into Telegram messages. It serves both request
// handling (Respond) and out-of-band delivery from the poller and job
// handlers (Notify).
type Renderer struct {
	bot *tele.Bot
	kb  *keyboard.Builder
	log *slog.Logger
}

// NewRenderer constructs a Renderer.
func NewRenderer(bot *tele.Bot, kb *keyboard.Builder, log *slog.Logger) *Renderer {
	return &Renderer{
		bot: bot,
		kb:  kb,
		log: log.With(slog.String("component", "renderer")),
	}
}

// Respond delivers a reply within an update cycle. Callback-originated
// replies marked as edits replace the triggering message.
func (r *Renderer) Respond(c tele.Context, reply *convo.Reply) error {
	if reply == nil {
		return nil
	}

	if cb := c.Callback(); cb != nil {
		// Ack first so the client stops the loading spinner.
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			r.log.Debug("callback ack failed", slog.Any("error", err))
		}

		if reply.Edit {
			if err := c.Edit(reply.Text, r.sendOptions(reply)...); err == nil {
				return nil
			}
			// Message too old to edit or unchanged; fall through to a
			// fresh message.
		}

		return c.Send(reply.Text, r.sendOptions(reply)...)
	}

	if err := c.Notify(tele.Typing); err != nil {
		r.log.Debug("typing action failed", slog.Any("error", err))
	}

	return c.Send(reply.Text, r.sendOptions(reply)...)
}

// Notify sends a reply directly to a user, outside any update cycle.
func (r *Renderer) Notify(ctx context.Context, userID int64, reply *convo.Reply) error {
	if reply == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	recipient := &tele.User{ID: userID}
	if _, err := r.bot.Send(recipient, reply.Text, r.sendOptions(reply)...); err != nil {
		return fmt.Errorf("send notification to %d: %w", userID, err)
	}

	return nil
}

func (r *Renderer) sendOptions(reply *convo.Reply) []any {
	var opts []any
	if reply.HTML {
		opts = append(opts, tele.ModeHTML)
	}
	if markup := r.kb.Markup(reply); markup != nil {
		opts = append(opts, markup)
	}

	return opts
}
