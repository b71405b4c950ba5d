package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/stats"
)

// Bootstrapper performs process-level setup that §1 explicitly scopes the
// mechanism of out: resource limits and scheduling priority stay log-only
// stubs, while periodic stats collection is a concrete, always-on default.
type Bootstrapper interface {
	SetResourceLimits() error
	SetProcessPriority() error
	RunStats(ctx context.Context)
}

// defaultBootstrapper is the production Bootstrapper: rlimit/priority
// tuning are out of scope per §1, so they only log; stats collection runs
// for real via stats.Collector.
type defaultBootstrapper struct {
	counters *stats.Counters
	interval time.Duration
	log      zerolog.Logger
}

// NewBootstrapper builds the default Bootstrapper.
func NewBootstrapper(counters *stats.Counters, interval time.Duration, log zerolog.Logger) Bootstrapper {
	return &defaultBootstrapper{counters: counters, interval: interval, log: log}
}

func (b *defaultBootstrapper) SetResourceLimits() error {
	b.log.Debug().Msg("resource limit tuning not implemented, running with inherited limits")
	return nil
}

func (b *defaultBootstrapper) SetProcessPriority() error {
	b.log.Debug().Msg("process priority tuning not implemented, running at inherited priority")
	return nil
}

func (b *defaultBootstrapper) RunStats(ctx context.Context) {
	stats.NewCollector(b.counters, b.interval, b.log).Run(ctx)
}
