// Package handlers adapts Telegram updates to the conversation flows.
package handlers

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/convo"
)

// Handler processes one update.
type Handler func(c tele.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Responder delivers a reply back over the transport the update came from.
type Responder interface {
	Respond(c tele.Context, reply *convo.Reply) error
}

// EventFrom normalizes a telebot context into a transport-neutral event.
func EventFrom(c tele.Context) convo.Event {
	ev := convo.Event{}

	if sender := c.Sender(); sender != nil {
		ev.UserID = sender.ID
		ev.Username = sender.Username
		ev.FirstName = sender.FirstName
	}

	if cb := c.Callback(); cb != nil {
		ev.Action = strings.TrimSpace(cb.Data)
		return ev
	}

	ev.Text = c.Text()
	if msg := c.Message(); msg != nil {
		ev.Payload = msg.Payload
	}

	return ev
}
