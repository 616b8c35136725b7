package bot

import (
	"log/slog"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/bot/handlers"
)

// Router dispatches commands, callbacks, and plain text updates through the
// middleware chain.
type Router struct {
	mu          sync.RWMutex
	commands    map[string]handlers.Handler
	callbacks   map[string]handlers.Handler
	textHandler handlers.Handler
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	return &Router{
		commands:  make(map[string]handlers.Handler),
		callbacks: make(map[string]handlers.Handler),
		log:       log.With(slog.String("component", "router")),
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterCallback registers a handler for a callback data prefix. Longer
// prefixes win when several match.
func (r *Router) RegisterCallback(prefix string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[prefix] = h
}

// SetTextHandler installs the fallback for plain messages.
func (r *Router) SetTextHandler(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textHandler = h
}

// Use appends a middleware to the chain. Middlewares run in registration
// order around every routed handler.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Route directs the incoming update to the matching handler.
func (r *Router) Route(c tele.Context) error {
	if cb := c.Callback(); cb != nil {
		return r.routeCallback(c, strings.TrimSpace(cb.Data))
	}

	return r.routeMessage(c)
}

func (r *Router) routeCallback(c tele.Context, data string) error {
	handler := r.findCallbackHandler(data)
	if handler == nil {
		r.log.Info("no callback handler found", slog.String("data", data))
		return c.Respond(&tele.CallbackResponse{})
	}

	return r.execute(handler, c)
}

func (r *Router) routeMessage(c tele.Context) error {
	text := c.Text()

	if strings.HasPrefix(text, "/") {
		cmd := text
		if i := strings.IndexByte(text, ' '); i > 0 {
			cmd = text[:i]
		}

		if handler := r.getCommandHandler(cmd); handler != nil {
			return r.execute(handler, c)
		}
	}

	if handler := r.getTextHandler(); handler != nil {
		return r.execute(handler, c)
	}

	return nil
}

func (r *Router) execute(h handlers.Handler, c tele.Context) error {
	return r.applyMiddlewares(h)(c)
}

// findCallbackHandler picks the longest registered prefix that matches, so
// overlapping prefixes resolve to the most specific handler.
func (r *Router) findCallbackHandler(data string) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    handlers.Handler
		bestLen int
	)
	for prefix, handler := range r.callbacks {
		if strings.HasPrefix(data, prefix) && len(prefix) > bestLen {
			best = handler
			bestLen = len(prefix)
		}
	}

	return best
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[cmd]
}

func (r *Router) getTextHandler() handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textHandler
}

func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	middlewares := make([]handlers.Middleware, len(r.middlewares))
	copy(middlewares, r.middlewares)
	r.mu.RUnlock()

	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}
