package reaper

import (
	"context"
	"time"

	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/pkg/log"
)

// DefaultPeriod is the sweep interval New uses when given a non-positive
// period. Retuning
// the interval per tick to the shortest currently-claimed TTL would
// require scanning every queue's claim set just to pick a period, which
// is more backing-store traffic than the sweep itself; a fixed 1s period
// keeps an expired claim's time-to-requeue bounded by ttl + 1s.
const DefaultPeriod = 1 * time.Second

// Reaper is the single per-process background sweeper: each tick it lists
// every known queue from the root index and issues Engine.ReapExpired
// against its claim set.
type Reaper struct {
	engine *queue.Engine
	period time.Duration
	log    log.Logger
}

// New builds a Reaper over engine. A zero period selects DefaultPeriod.
func New(engine *queue.Engine, period time.Duration, logger log.Logger) *Reaper {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reaper{engine: engine, period: period, log: logger}
}

// Run blocks, sweeping every period until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	names, err := r.engine.QueueNames(ctx)
	if err != nil {
		r.log.Warn("reaper: list queues failed", log.Err(err))
		return
	}
	for _, name := range names {
		n, err := r.engine.ReapExpired(ctx, name)
		if err != nil {
			r.log.Warn("reaper: sweep failed", log.Str("queue", name), log.Err(err))
			continue
		}
		if n > 0 {
			r.log.Debug("reaper: reclaimed expired claims", log.Str("queue", name), log.Int("count", n))
		}
	}
}
