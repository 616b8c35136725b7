// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/greendale-game/airdrop-bot/internal/registration"
	"github.com/greendale-game/airdrop-bot/internal/repository"
)

var (
	botUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of processed updates labeled by handler and status",
		},
		[]string{"handler", "status"},
	)
	updateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_duration_seconds",
			Help:    "Duration of update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
	registrationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_transitions_total",
			Help: "Total number of registration state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	membershipChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_checks_total",
			Help: "Total number of Telegram membership checks by result",
		},
		[]string{"result"},
	)
	activePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_membership_pollers",
			Help: "Number of running membership poll loops",
		},
	)
	usersByStep = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "users_by_step",
			Help: "Number of users per registration step",
		},
		[]string{"step"},
	)
)

func init() {
	registration.RegisterTransitionRecorder(RecordTransition)
}

// RecordUpdate increments update counters and records handling duration.
func RecordUpdate(handler, status string, duration time.Duration) {
	if handler == "" {
		handler = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botUpdatesTotal.WithLabelValues(handler, status).Inc()
	updateDurationSeconds.WithLabelValues(handler).Observe(duration.Seconds())
}

// RecordTransition tracks registration state transitions.
func RecordTransition(from, to registration.State) {
	registrationTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// RecordMembershipCheck tracks one membership check outcome: member,
// not_member, or error.
func RecordMembershipCheck(result string) {
	if result == "" {
		result = "unknown"
	}

	membershipChecksTotal.WithLabelValues(result).Inc()
}

// InstrumentChecker wraps a membership checker so every check outcome is
// counted.
func InstrumentChecker(inner registration.MembershipChecker) registration.MembershipChecker {
	return instrumentedChecker{inner: inner}
}

type instrumentedChecker struct {
	inner registration.MembershipChecker
}

func (c instrumentedChecker) IsMemberOfAll(ctx context.Context, userID int64) (bool, error) {
	member, err := c.inner.IsMemberOfAll(ctx, userID)

	switch {
	case err != nil:
		RecordMembershipCheck("error")
	case member:
		RecordMembershipCheck("member")
	default:
		RecordMembershipCheck("not_member")
	}

	return member, err
}

// PollerSource reports how many poll loops are running.
type PollerSource interface {
	Active() int
}

// StepCollector periodically gathers per-step user counts and the active
// poller gauge.
type StepCollector struct {
	repo    repository.UserRepository
	pollers PollerSource
}

// NewStepCollector builds a collector over the user store and the poller
// supervisor.
func NewStepCollector(repo repository.UserRepository, pollers PollerSource) *StepCollector {
	return &StepCollector{repo: repo, pollers: pollers}
}

// Run refreshes the gauges every 30 seconds until ctx is cancelled.
func (c *StepCollector) Run(ctx context.Context) {
	for {
		c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

func (c *StepCollector) collect(ctx context.Context) {
	if c.pollers != nil {
		activePollers.Set(float64(c.pollers.Active()))
	}

	counts, err := c.repo.CountByStep(ctx)
	if err != nil {
		return
	}

	for step, count := range counts {
		usersByStep.WithLabelValues(strconv.Itoa(step)).Set(float64(count))
	}
}
