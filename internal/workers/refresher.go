package workers

import (
	"context"
	"time"

	"memories-backend/internal/metrics"
	"memories-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// SummaryBuilder computes what a user should see after a refresh
type SummaryBuilder interface {
	RefreshSummary(ctx context.Context, userID string) (*services.RefreshSummary, error)
}

// Broadcaster reaches connected users
type Broadcaster interface {
	OnlineUsers() []string
	SendToUser(userID string, msg services.WSMessage) error
}

// Refresher periodically pushes a history summary to every connected user.
// Each run is bounded by a time budget; users not reached within it wait
// for the next tick.
type Refresher struct {
	summaries SummaryBuilder
	hub       Broadcaster
	interval  time.Duration
	budget    time.Duration
}

// NewRefresher creates a refresher
func NewRefresher(summaries SummaryBuilder, hub Broadcaster, interval, budget time.Duration) *Refresher {
	if budget <= 0 || budget > interval {
		budget = interval
	}
	return &Refresher{
		summaries: summaries,
		hub:       hub,
		interval:  interval,
		budget:    budget,
	}
}

// Run refreshes on every tick until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Dur("budget", r.budget).Msg("History refresher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("History refresher stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes the currently connected users and returns how many
// were processed before the budget ran out
func (r *Refresher) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	users := r.hub.OnlineUsers()
	processed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		r.refreshUser(ctx, userID)
		processed++
	}

	if processed < len(users) {
		metrics.RefreshRuns.WithLabelValues("budget_exceeded").Inc()
		log.Warn().
			Int("processed", processed).
			Int("total", len(users)).
			Dur("budget", r.budget).
			Msg("History refresh stopped at time budget")
		return processed
	}

	metrics.RefreshRuns.WithLabelValues("complete").Inc()
	log.Debug().Int("processed", processed).Msg("History refresh complete")
	return processed
}

func (r *Refresher) refreshUser(ctx context.Context, userID string) {
	summary, err := r.summaries.RefreshSummary(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to build history summary")
		return
	}
	msg := services.WSMessage{Type: services.EventHistoryRefresh, Data: summary}
	if err := r.hub.SendToUser(userID, msg); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("Failed to push history summary")
	}
}
