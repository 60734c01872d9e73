package worker

import (
	"context"
	"log/slog"
	"time"
)

// LeaderboardRefresher recomputes the cached leaderboard on a fixed interval
type LeaderboardRefresher interface {
	RefreshLeaderboard(ctx context.Context) error
}

// Refresher periodically rebuilds the claimed leaderboard cache and pushes
// the result to connected websocket clients.
type Refresher struct {
	service  LeaderboardRefresher
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRefresher creates a new leaderboard refresher
func NewRefresher(service LeaderboardRefresher, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		service:  service,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the periodic refresh loop
func (r *Refresher) Start() {
	r.logger.Info("starting leaderboard refresher", "interval", r.interval)

	go func() {
		defer close(r.doneCh)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		// Warm the cache immediately rather than waiting a full interval
		r.refresh()

		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.refresh()
			}
		}
	}()
}

// Stop signals the refresher to stop and waits for it to finish
func (r *Refresher) Stop() {
	r.logger.Info("stopping leaderboard refresher")
	close(r.stopCh)
	<-r.doneCh
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.service.RefreshLeaderboard(ctx); err != nil {
		r.logger.Error("leaderboard refresh failed", "error", err)
	}
}
