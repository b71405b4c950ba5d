package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Collector periodically logs a Counters snapshot, mirroring the teacher's
// metrics.Collector ticker loop (gateway/internal/metrics/collector.go) but
// logging instead of recomputing gauges, since our counters already update
// Prometheus inline on every event.
type Collector struct {
	counters *Counters
	interval time.Duration
	log      zerolog.Logger
}

// NewCollector builds a Collector logging counters every interval
// (defaulting to 60s).
func NewCollector(counters *Counters, interval time.Duration, log zerolog.Logger) *Collector {
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Collector{counters: counters, interval: interval, log: log}
}

// Run logs a snapshot immediately, then every interval, until ctx is
// canceled.
func (c *Collector) Run(ctx context.Context) {
	c.logSnapshot()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.logSnapshot()
		}
	}
}

func (c *Collector) logSnapshot() {
	s := c.counters.Snapshot()
	c.log.Info().
		Int64("bytes_rx", s.BytesRx).
		Int64("bytes_tx", s.BytesTx).
		Int64("connections_vm", s.ConnectionsVM).
		Int64("connections_admin", s.ConnectionsAdmin).
		Int64("active_vm", s.ConnectionsActiveVM).
		Int64("active_admin", s.ConnectionsActiveAdmin).
		Int64("vmotion_begins", s.VMotionBegins).
		Int64("vmotion_peers", s.VMotionPeers).
		Int64("vmotion_completes", s.VMotionCompletes).
		Int64("vmotion_aborts", s.VMotionAborts).
		Int64("vmotion_abandons", s.VMotionAbandons).
		Msg("vspc stats")
}
