package users

import (
	"context"
	"log/slog"
	"time"
)

type purgeStore interface {
	ExpiredUnverified(ctx context.Context, now, cutoff time.Time) ([]string, error)
	PurgeUnverified(ctx context.Context, userID string) (bool, error)
}

// DefaultGrace is how long a new account gets to verify before it becomes a
// sweep candidate.
const DefaultGrace = 24 * time.Hour

// Sweeper periodically evicts accounts that never verified their email.
// Each account is deleted in its own guarded statement, so a sweep run
// tolerates individual failures and never undoes a verification that
// completed after the candidate query.
type Sweeper struct {
	store    purgeStore
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

func NewSweeper(store purgeStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		grace:    DefaultGrace,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	purged, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Info("unverified accounts purged", "count", purged)
	}
}

// Sweep runs one pass and returns how many accounts were purged. A failing
// delete is logged and skipped; the rest of the batch still runs.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	candidates, err := s.store.ExpiredUnverified(ctx, now, now.Add(-s.grace))
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, userID := range candidates {
		deleted, err := s.store.PurgeUnverified(ctx, userID)
		if err != nil {
			s.logger.Error("failed to purge account", "error", err, "user_id", userID)
			continue
		}
		if !deleted {
			// Verified between the candidate query and the delete.
			s.logger.Info("skipping account verified during sweep", "user_id", userID)
			continue
		}
		purged++
	}

	return purged, nil
}
