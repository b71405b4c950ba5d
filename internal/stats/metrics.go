// Package stats implements §3's statistics counters: bytes and connections
// by kind, and the vMotion lifecycle counts, exposed both as Prometheus
// metrics and via periodic structured logging.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vspc_bytes_total",
			Help: "Total bytes transferred, by connection kind and direction",
		},
		[]string{"kind", "direction"},
	)

	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vspc_connections_total",
			Help: "Total connections received, by kind",
		},
		[]string{"kind"},
	)

	connectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vspc_connections_active",
			Help: "Currently active connections, by kind",
		},
		[]string{"kind"},
	)

	vmotionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vspc_vmotion_total",
			Help: "Total vMotion handoff events, by outcome",
		},
		[]string{"outcome"},
	)
)
