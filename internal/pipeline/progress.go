package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmextract/internal/logger"
)

const progressInterval = 10 * time.Second

// Stats holds the run's live counters. Counters are atomics because pass-2
// workers bump them concurrently.
type Stats struct {
	NodesIndexed   atomic.Int64
	Features       atomic.Int64
	UnresolvedRefs atomic.Int64
	WaysDropped    atomic.Int64

	Pass1Duration time.Duration
	Pass2Duration time.Duration
}

// Summary is an immutable snapshot for reporting after the run.
type Summary struct {
	NodesIndexed   int64
	Features       int64
	UnresolvedRefs int64
	WaysDropped    int64
	Pass1Duration  time.Duration
	Pass2Duration  time.Duration
}

func (s *Stats) Summary() *Summary {
	return &Summary{
		NodesIndexed:   s.NodesIndexed.Load(),
		Features:       s.Features.Load(),
		UnresolvedRefs: s.UnresolvedRefs.Load(),
		WaysDropped:    s.WaysDropped.Load(),
		Pass1Duration:  s.Pass1Duration,
		Pass2Duration:  s.Pass2Duration,
	}
}

// startProgress logs the counter periodically with per-interval rates until
// the returned stop function is called.
func (p *Pipeline) startProgress(ctx context.Context, phase string, counter *atomic.Int64) func() {
	log := logger.Get()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		last := counter.Load()
		lastTime := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				current := counter.Load()
				rate := float64(current-last) / now.Sub(lastTime).Seconds()
				log.Info(phase+" progress",
					zap.Int64("count", current),
					zap.Int64("per_second", int64(rate)))
				last = current
				lastTime = now
			}
		}
	}()
	return func() { close(done) }
}
