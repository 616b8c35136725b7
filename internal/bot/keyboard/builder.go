// Package keyboard converts reply actions into Telegram inline keyboards.
package keyboard

import (
	"log/slog"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/convo"
)

// Builder renders action rows as inline keyboards.
type Builder struct {
	log *slog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{log: log.With(slog.String("component", "keyboard"))}
}

// Markup builds the inline keyboard for a reply, or nil when the reply has
// no actions.
func (b *Builder) Markup(reply *convo.Reply) *tele.ReplyMarkup {
	if reply == nil || len(reply.Actions) == 0 {
		return nil
	}

	rows := make([][]tele.InlineButton, 0, len(reply.Actions))
	for _, row := range reply.Actions {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, action := range row {
			buttons = append(buttons, tele.InlineButton{
				Text: action.Label,
				Data: action.Data,
			})

			b.log.Debug("keyboard action attached",
				slog.String("action_id", action.ID),
				slog.String("data", action.Data))
		}
		rows = append(rows, buttons)
	}

	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
