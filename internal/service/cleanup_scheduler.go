package service

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback observes the result of one scheduled cleanup run.
type CleanupCallback func(deleted int64, err error)

// StartCleanupScheduler deletes stale wishlists every interval until ctx is
// cancelled. It blocks, so launch it in its own goroutine. onRun may be nil.
func (s *WishlistService) StartCleanupScheduler(ctx context.Context, interval, retention time.Duration, onRun CleanupCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cleanup scheduler started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			n, err := s.CleanupOldWishlists(ctx, retention)
			if onRun != nil {
				onRun(n, err)
			}
		}
	}
}
