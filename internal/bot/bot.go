// Package bot wires the Telegram transport: the telebot session, the
// update router with its middleware chain, and the renderer that turns
// conversation replies into messages.
package bot

import (
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/bot/handlers"
	"github.com/greendale-game/airdrop-bot/internal/bot/keyboard"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/internal/idempotency"
	"github.com/greendale-game/airdrop-bot/internal/registration"
	"github.com/greendale-game/airdrop-bot/internal/tasks"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

const (
	CommandStart = "/start"
	CommandInfo  = "/info"
	CommandTasks = "/tasks"
)

// Bot owns the telebot session and the routing of updates into the
// registration flow and task workflow.
type Bot struct {
	telebot  *tele.Bot
	log      *slog.Logger
	router   *Router
	renderer *Renderer
}

// NewTelebot builds the raw telebot session. It is created separately from
// the Bot so the membership verifier can share the session before the
// routing layer exists.
func NewTelebot(cfg config.Config) (*tele.Bot, error) {
	settings := tele.Settings{
		Token: cfg.Bot.Token,
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &tele.Webhook{
			Listen: cfg.Bot.WebhookListen,
		}
	} else {
		settings.Poller = &tele.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return tb, nil
}

// New wires the router, middleware chain and renderer onto an existing
// telebot session.
func New(
	cfg config.Config,
	log *slog.Logger,
	tb *tele.Bot,
	flow *registration.Flow,
	workflow *tasks.Workflow,
	idemStore idempotency.Store,
) *Bot {
	kb := keyboard.NewBuilder(log)
	renderer := NewRenderer(tb, kb, log)
	router := NewRouter(log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	b := &Bot{
		telebot:  tb,
		log:      log,
		router:   router,
		renderer: renderer,
	}

	b.setupRouter(flow, workflow, idemStore, errHandler)

	tb.Handle(tele.OnText, router.Route)
	tb.Handle(tele.OnCallback, router.Route)

	return b
}

// Renderer exposes the reply renderer, which also serves as the Notifier
// for the poller and job handlers.
func (b *Bot) Renderer() *Renderer {
	return b.renderer
}

// Telebot exposes the underlying session for health checks.
func (b *Bot) Telebot() *tele.Bot {
	return b.telebot
}

// Start runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	b.log.Info("stopping telegram bot")
	b.telebot.Stop()
}

func (b *Bot) setupRouter(
	flow *registration.Flow,
	workflow *tasks.Workflow,
	idemStore idempotency.Store,
	errHandler *apperrors.Handler,
) {
	b.router.Use(RecoveryMiddleware(b.log, errHandler))
	b.router.Use(IdempotencyMiddleware(idemStore, b.log))
	b.router.Use(ErrorHandlingMiddleware(errHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(MetricsMiddleware())

	b.router.RegisterCommand(CommandStart, handlers.Start(flow, b.renderer))
	b.router.RegisterCommand(CommandInfo, handlers.Info(flow, b.renderer))
	b.router.RegisterCommand(CommandTasks, handlers.TaskList(workflow, b.renderer))

	b.router.RegisterCallback(registration.ActionStartRegistration, handlers.StartRegistration(flow, b.renderer))
	b.router.RegisterCallback(registration.ActionCheckTelegram, handlers.CheckMembership(flow, b.renderer))
	b.router.RegisterCallback(registration.ActionProceedTwitter, handlers.ProceedTwitter(flow, b.renderer))
	b.router.RegisterCallback(registration.ActionProceedWallet, handlers.ProceedWallet(flow, b.renderer))
	b.router.RegisterCallback(registration.ActionViewTasks, handlers.TaskList(workflow, b.renderer))
	b.router.RegisterCallback(tasks.ActionTaskPrefix, handlers.TaskDetail(workflow, b.renderer))
	b.router.RegisterCallback(tasks.ActionProceedPrefix, handlers.TaskProceed(workflow, b.renderer))
	b.router.RegisterCallback(tasks.ActionSubmitPrefix, handlers.TaskRequestProof(workflow, b.renderer))

	b.router.SetTextHandler(handlers.Text(flow, workflow, b.renderer))
}
