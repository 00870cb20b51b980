package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Evicter interface {
	EvictExpired(now time.Time) []int64
}

// RunJanitor evicts expired ended sessions every interval until ctx is done.
func RunJanitor(ctx context.Context, ev Evicter, interval time.Duration, now func() time.Time, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ids := ev.EvictExpired(now()); len(ids) > 0 {
				log.Info("evicted ended sessions", zap.Int("count", len(ids)))
			}
		}
	}
}
