package stats

import "sync/atomic"

// Counters tracks the process's running totals, mirrored into Prometheus
// on every update and readable locally for the periodic log line without
// scraping Prometheus's own internal state back out.
type Counters struct {
	bytesRx, bytesTx                             int64
	connectionsVM, connectionsAdmin              int64
	connectionsActiveVM, connectionsActiveAdmin  int64
	vmotionBegins, vmotionPeers                  int64
	vmotionCompletes, vmotionAborts, vmotionAban int64
}

// New builds an empty Counters.
func New() *Counters { return &Counters{} }

func (c *Counters) BytesRx(kind string, n int) {
	atomic.AddInt64(&c.bytesRx, int64(n))
	bytesTotal.WithLabelValues(kind, "rx").Add(float64(n))
}

func (c *Counters) BytesTx(kind string, n int) {
	atomic.AddInt64(&c.bytesTx, int64(n))
	bytesTotal.WithLabelValues(kind, "tx").Add(float64(n))
}

func (c *Counters) ConnectionReceived(kind string) {
	connectionsTotal.WithLabelValues(kind).Inc()
	connectionsActive.WithLabelValues(kind).Inc()
	switch kind {
	case "admin":
		atomic.AddInt64(&c.connectionsAdmin, 1)
		atomic.AddInt64(&c.connectionsActiveAdmin, 1)
	default:
		atomic.AddInt64(&c.connectionsVM, 1)
		atomic.AddInt64(&c.connectionsActiveVM, 1)
	}
}

func (c *Counters) ConnectionClosed(kind string) {
	connectionsActive.WithLabelValues(kind).Dec()
	switch kind {
	case "admin":
		atomic.AddInt64(&c.connectionsActiveAdmin, -1)
	default:
		atomic.AddInt64(&c.connectionsActiveVM, -1)
	}
}

func (c *Counters) VMotionBegin() {
	atomic.AddInt64(&c.vmotionBegins, 1)
	vmotionTotal.WithLabelValues("begin").Inc()
}

func (c *Counters) VMotionPeer() {
	atomic.AddInt64(&c.vmotionPeers, 1)
	vmotionTotal.WithLabelValues("peer").Inc()
}

func (c *Counters) VMotionComplete() {
	atomic.AddInt64(&c.vmotionCompletes, 1)
	vmotionTotal.WithLabelValues("complete").Inc()
}

func (c *Counters) VMotionAbort() {
	atomic.AddInt64(&c.vmotionAborts, 1)
	vmotionTotal.WithLabelValues("abort").Inc()
}

func (c *Counters) VMotionAbandon() {
	atomic.AddInt64(&c.vmotionAban, 1)
	vmotionTotal.WithLabelValues("abandon").Inc()
}

// Snapshot is a point-in-time copy of every counter, for the periodic log
// line and the debug HTTP /status endpoint.
type Snapshot struct {
	BytesRx, BytesTx                               int64
	ConnectionsVM, ConnectionsAdmin                 int64
	ConnectionsActiveVM, ConnectionsActiveAdmin     int64
	VMotionBegins, VMotionPeers, VMotionCompletes   int64
	VMotionAborts, VMotionAbandons                  int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesRx:               atomic.LoadInt64(&c.bytesRx),
		BytesTx:               atomic.LoadInt64(&c.bytesTx),
		ConnectionsVM:         atomic.LoadInt64(&c.connectionsVM),
		ConnectionsAdmin:      atomic.LoadInt64(&c.connectionsAdmin),
		ConnectionsActiveVM:   atomic.LoadInt64(&c.connectionsActiveVM),
		ConnectionsActiveAdmin: atomic.LoadInt64(&c.connectionsActiveAdmin),
		VMotionBegins:         atomic.LoadInt64(&c.vmotionBegins),
		VMotionPeers:          atomic.LoadInt64(&c.vmotionPeers),
		VMotionCompletes:      atomic.LoadInt64(&c.vmotionCompletes),
		VMotionAborts:         atomic.LoadInt64(&c.vmotionAborts),
		VMotionAbandons:       atomic.LoadInt64(&c.vmotionAban),
	}
}
