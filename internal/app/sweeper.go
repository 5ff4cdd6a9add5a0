package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expiredSessionPurger interface {
	PurgeExpired(ctx context.Context) error
}

// runSessionSweeper deletes expired sessions every interval until ctx is done
func runSessionSweeper(ctx context.Context, purger expiredSessionPurger, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := purger.PurgeExpired(ctx); err != nil {
				logger.Warn("Expired session sweep failed", zap.Error(err))
			}
		}
	}
}
