package handlers

import (
	"context"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/pkg/logger"
)

// RegistrationFlow is the conversation surface of the registration flow.
type RegistrationFlow interface {
	Start(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	StartRegistration(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	CheckMembership(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	ProceedTwitter(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	ProceedWallet(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	HandleText(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	Info(ctx context.Context, ev convo.Event) (*convo.Reply, error)
}

// adapt turns a flow method into a transport handler.
func adapt(responder Responder, fn func(ctx context.Context, ev convo.Event) (*convo.Reply, error)) Handler {
	return func(c tele.Context) error {
		ctx := logger.WithCorrelationID(context.Background())

		reply, err := fn(ctx, EventFrom(c))
		if err != nil {
			return err
		}

		return responder.Respond(c, reply)
	}
}

// Start handles /start.
func Start(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.Start)
}

// Info handles /info.
func Info(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.Info)
}

// StartRegistration handles the registration button.
func StartRegistration(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.StartRegistration)
}

// CheckMembership handles the manual membership re-check button.
func CheckMembership(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.CheckMembership)
}

// ProceedTwitter handles the proceed-to-Twitter button.
func ProceedTwitter(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.ProceedTwitter)
}

// ProceedWallet handles the proceed-to-wallet button.
func ProceedWallet(flow RegistrationFlow, responder Responder) Handler {
	return adapt(responder, flow.ProceedWallet)
}
