package node

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// QueueUpdate is one observation of a queue account's raw body, either
// from the 30s reconciliation poll or a push notification.
type QueueUpdate struct {
	QueueAddr [32]byte
	Data      []byte
	Slot      uint64
}

// QueueUpdateSource abstracts how the worker learns that a queue
// account's contents may have changed. The streaming (push) and
// reconciliation (pull) halves described in spec §4.5 both implement
// this so Worker can treat them uniformly and merge their output.
type QueueUpdateSource interface {
	// Run starts the source and blocks until ctx is cancelled, sending
	// every observed update to updates. Implementations must not close
	// updates themselves; the caller owns the channel's lifetime only in
	// the sense of no longer reading from it.
	Run(ctx context.Context, updates chan<- QueueUpdate)
}

// pollingSource is the always-on reconciliation half: every interval it
// scans every queue account owned by programID via getProgramAccounts
// and emits one QueueUpdate per account. This is the fallback that
// guarantees forward progress even if no push subscription is active or
// a push notification was dropped (spec §4.5).
type pollingSource struct {
	rpc        RPCClient
	programID  [32]byte
	accountLen int
	interval   time.Duration
}

// NewPollingSource returns a QueueUpdateSource that reconciles every
// interval (spec §4.5 fixes this at 30s).
func NewPollingSource(rpc RPCClient, programID [32]byte, accountLen int, interval time.Duration) QueueUpdateSource {
	return &pollingSource{rpc: rpc, programID: programID, accountLen: accountLen, interval: interval}
}

func (p *pollingSource) Run(ctx context.Context, updates chan<- QueueUpdate) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.reconcile(ctx, updates)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcile(ctx, updates)
		}
	}
}

// queueListSource reconciles a fixed, known set of queue addresses —
// the ones this worker's identity actually owns — by polling each via
// getAccountInfo on every tick. This is what Worker actually runs; a
// single oracle only ever services its own queues (ProvideRandomness
// requires the calling identity to match the queue's derivation), so
// there is no need to scan the whole program's account space the way
// pollingSource does.
type queueListSource struct {
	rpc      RPCClient
	queues   []QueueConfig
	interval time.Duration
}

func newQueueListSource(rpc RPCClient, queues []QueueConfig, interval time.Duration) QueueUpdateSource {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &queueListSource{rpc: rpc, queues: queues, interval: interval}
}

func (q *queueListSource) Run(ctx context.Context, updates chan<- QueueUpdate) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	q.reconcile(ctx, updates)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reconcile(ctx, updates)
		}
	}
}

func (q *queueListSource) reconcile(ctx context.Context, updates chan<- QueueUpdate) {
	slot, err := q.rpc.GetSlot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reconciler: getSlot failed")
		return
	}
	for _, qc := range q.queues {
		data, err := q.rpc.GetAccountInfo(ctx, [32]byte(qc.Addr))
		if err != nil {
			log.Warn().Err(err).Str("queue", qc.Addr.String()).Msg("reconciler: getAccountInfo failed")
			continue
		}
		select {
		case updates <- QueueUpdate{QueueAddr: [32]byte(qc.Addr), Data: data, Slot: slot}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *pollingSource) reconcile(ctx context.Context, updates chan<- QueueUpdate) {
	slot, err := p.rpc.GetSlot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reconciler: getSlot failed")
		return
	}
	accounts, err := p.rpc.GetProgramAccounts(ctx, p.programID, p.accountLen)
	if err != nil {
		log.Warn().Err(err).Msg("reconciler: getProgramAccounts failed")
		return
	}
	for addr, data := range accounts {
		select {
		case updates <- QueueUpdate{QueueAddr: addr, Data: data, Slot: slot}:
		case <-ctx.Done():
			return
		}
	}
}
