package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often StartSweeper evicts expired sessions.
const DefaultSweepInterval = time.Minute

// StartSweeper evicts expired sessions every interval until ctx is cancelled.
// The returned channel is closed once the worker has exited.
func StartSweeper(ctx context.Context, store Store, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, store)
			case <-ctx.Done():
				slog.Info("Session sweeper stopped")
				return
			}
		}
	}()

	return done
}

func sweep(ctx context.Context, store Store) {
	removed, err := store.Sweep(ctx)
	if err != nil {
		slog.Warn("Session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("Expired sessions evicted", "count", removed)
	}
}
