package api

import (
	"sync"
	"time"
)

// Collector tracks worker-wide counters surfaced on /stats.
type Collector struct {
	mu                 sync.RWMutex
	requestsReconciled uint64
	proofsSubmitted    uint64
	transactionsSent   uint64
	transactionsFailed uint64
	requestsPurged     uint64
	uptime             time.Time
	lastRequestTime    time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{uptime: time.Now()}
}

func (c *Collector) IncrementRequestsReconciled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsReconciled++
	c.lastRequestTime = time.Now()
}

func (c *Collector) IncrementProofsSubmitted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proofsSubmitted++
}

func (c *Collector) IncrementTransactionsSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactionsSent++
}

func (c *Collector) IncrementTransactionsFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactionsFailed++
}

func (c *Collector) IncrementRequestsPurged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsPurged++
}

// Snapshot returns a point-in-time view of the counters for JSON
// encoding.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"requests_reconciled": c.requestsReconciled,
		"proofs_submitted":    c.proofsSubmitted,
		"transactions_sent":   c.transactionsSent,
		"transactions_failed": c.transactionsFailed,
		"requests_purged":     c.requestsPurged,
		"uptime_seconds":      time.Since(c.uptime).Seconds(),
		"last_request_unix":   c.lastRequestTime.Unix(),
	}
}
