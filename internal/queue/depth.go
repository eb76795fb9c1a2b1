package queue

import (
	"context"
	"time"
)

// DepthObserver receives sampled queue depths.
type DepthObserver interface {
	ObserveQueueDepth(queue string, visible, delayed, inFlight, dead int)
}

// SampleDepth reports the Stats of every queue to obs, once immediately and
// then every interval, until ctx is cancelled. Queues whose Stats fail are
// skipped for that round.
func SampleDepth(ctx context.Context, queues map[string]Queue, interval time.Duration, obs DepthObserver) {
	sample := func() {
		for name, q := range queues {
			s, err := q.Stats(ctx)
			if err != nil {
				continue
			}
			obs.ObserveQueueDepth(name, s.Visible, s.Delayed, s.InFlight, s.Dead)
		}
	}

	sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
