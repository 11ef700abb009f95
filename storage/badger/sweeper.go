package badger

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often StartSweeper removes expired sessions.
const DefaultSweepInterval = time.Hour

// StartSweeper runs Sweep every interval until ctx is canceled or the returned
// stop function is called. A non-positive interval uses DefaultSweepInterval.
// stop blocks until the sweeper goroutine has exited.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.backend.IsClosed() {
					return
				}
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("session sweep failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
