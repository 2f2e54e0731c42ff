// Package node implements the off-chain oracle worker: the
// event-driven driver that watches an oracle's queue accounts, computes
// VRF proofs for newly queued requests, and submits the fulfillment
// transactions that deliver them on-chain (spec §4.5).
package node

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/queue"
	"github.com/ephemeral-labs/vrf-oracle/vrf"
	"github.com/ephemeral-labs/vrf-oracle/workerstore"
)

// StatsCollector is the subset of api.Collector the worker needs to
// report fulfillment activity on the /stats surface. Kept as an
// interface here (rather than importing package api, which imports
// node) so Worker and fulfiller can call it without a cycle.
type StatsCollector interface {
	IncrementRequestsReconciled()
	IncrementProofsSubmitted()
	IncrementTransactionsSent()
	IncrementTransactionsFailed()
	IncrementRequestsPurged()
}

// QueueConfig names one queue this worker's identity owns and services.
type QueueConfig struct {
	Addr  accounts.Pubkey
	Index uint8
}

// Config bundles everything Worker needs to run.
type Config struct {
	ProgramID      accounts.Pubkey
	Identity       accounts.Pubkey
	IdentityPDA    accounts.Pubkey
	OracleDataAddr accounts.Pubkey
	SigningKeypair ed25519.PrivateKey
	VRFSigningSeed []byte // 64-byte signing keypair bytes, per spec §4.1
	Queues         []QueueConfig
	ReconcileEvery time.Duration
	BlockhashEvery time.Duration
	MaxConcurrent  int
}

// Worker is the top-level off-chain driver: it merges push and pull
// queue updates, deduplicates against in-flight work, and spawns one
// fulfillment task per newly observed request.
type Worker struct {
	cfg         Config
	rpc         RPCClient
	blockhashes *BlockhashCache
	vrfManager  *vrf.Manager
	inflight    *InFlight
	latency     latencyObserver
	store       workerstore.Store
	collector   StatsCollector

	pull QueueUpdateSource
	push QueueUpdateSource // may be nil if no streaming endpoint configured

	sem chan struct{}
}

// NewWorker wires a Worker from its dependencies. push may be nil to
// run pull-only (the 30s reconciler always runs regardless, per spec
// §4.5 — push is an acceleration, never the sole update path). store
// and collector may both be nil: store disables crash-recovery
// persistence, collector disables /stats counters, neither is required
// for correctness of the in-memory fulfillment path.
func NewWorker(cfg Config, rpc RPCClient, blockhashes *BlockhashCache, latency latencyObserver, push QueueUpdateSource, store workerstore.Store, collector StatsCollector) (*Worker, error) {
	vrfManager, err := vrf.NewManager(cfg.VRFSigningSeed)
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Worker{
		cfg:         cfg,
		rpc:         rpc,
		blockhashes: blockhashes,
		vrfManager:  vrfManager,
		inflight:    NewInFlight(),
		latency:     latency,
		store:       store,
		collector:   collector,
		pull:        newQueueListSource(rpc, cfg.Queues, cfg.ReconcileEvery),
		push:        push,
		sem:         make(chan struct{}, maxConcurrent),
	}, nil
}

// Run blocks until ctx is cancelled, driving the blockhash cache, the
// reconciliation loop, and (if configured) the push subscription
// concurrently.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	updates := make(chan QueueUpdate, 64)

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.blockhashes.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.pull.Run(ctx, updates)
	}()

	if w.push != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.push.Run(ctx, updates)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.consume(ctx, updates)
	}()

	<-ctx.Done()
	w.inflight.CancelAll()
	wg.Wait()
}

func (w *Worker) consume(ctx context.Context, updates <-chan QueueUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			w.handleUpdate(ctx, u)
		}
	}
}

func (w *Worker) handleUpdate(ctx context.Context, u QueueUpdate) {
	if w.collector != nil {
		w.collector.IncrementRequestsReconciled()
	}

	view, err := accounts.QueueView(u.Data)
	if err != nil {
		log.Warn().Err(err).Str("queue", accounts.Pubkey(u.QueueAddr).String()).Msg("failed to bind queue view")
		return
	}

	// Diff this snapshot against the in-flight set: any id no longer
	// present either succeeded (this worker's own task) or was removed
	// by another actor (another instance's retry, a permissionless
	// purge). Either way the entry — and any still-running task chasing
	// it — is released here, per spec §9 ("successful confirmation must
	// not remove the entry; the next snapshot will, when it sees the id
	// gone").
	present := make(map[[32]byte]bool)
	view.IterItems(func(it queue.Item) bool {
		present[it.ID] = true
		return true
	})
	vanished := w.inflight.ReconcileSnapshot([32]byte(u.QueueAddr), present)
	for id, enqueueSlot := range vanished {
		if w.latency != nil {
			w.latency.Observe(accounts.Pubkey(u.QueueAddr).String(), enqueueSlot, u.Slot)
		}
		if w.store != nil {
			w.store.DeleteInFlight(accounts.Pubkey(id).String())
		}
	}

	idx := uint8(0)
	for _, qc := range w.cfg.Queues {
		if qc.Addr == accounts.Pubkey(u.QueueAddr) {
			idx = qc.Index
			break
		}
	}

	w.spawnFromView(ctx, accounts.Pubkey(u.QueueAddr), idx, view)
}

func (w *Worker) spawnFromView(ctx context.Context, queueAddr accounts.Pubkey, idx uint8, view *queue.View) {
	view.IterItems(func(it queue.Item) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if w.inflight.IsInFlight([32]byte(queueAddr), it.ID) {
			return true
		}
		requestKey := accounts.Pubkey(it.ID).String()
		// Crash recovery: if a prior process instance already delivered
		// this id (store.MarkProcessed, never cleaned up because it
		// crashed before the next reconcile pass), don't resubmit.
		if w.store != nil && w.store.IsProcessed(requestKey) {
			return true
		}

		taskCtx, cancel := context.WithCancel(ctx)
		if !w.inflight.TryStart([32]byte(queueAddr), it.ID, it.Slot, cancel) {
			cancel()
			return true
		}
		if w.store != nil {
			w.store.SaveInFlight(requestKey, workerstore.InFlightEntry{QueueAddr: queueAddr.String(), EnqueueSlot: it.Slot})
		}

		item := it
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			w.inflight.Finish([32]byte(queueAddr), it.ID)
			if w.store != nil {
				w.store.DeleteInFlight(requestKey)
			}
			cancel()
			return false
		}

		go func() {
			defer func() { <-w.sem }()
			defer cancel()

			f := &fulfiller{
				rpc:            w.rpc,
				blockhashes:    w.blockhashes,
				vrfManager:     w.vrfManager,
				signer:         w.cfg.SigningKeypair,
				programID:      w.cfg.ProgramID,
				identity:       w.cfg.Identity,
				identityPDA:    w.cfg.IdentityPDA,
				oracleDataAddr: w.cfg.OracleDataAddr,
				latency:        w.latency,
				store:          w.store,
				collector:      w.collector,
			}
			if err := f.fulfill(taskCtx, queueAddr, idx, item); err != nil {
				log.Error().Err(err).Str("request_id", accounts.Pubkey(item.ID).String()).Msg("fulfillment task gave up")
				// Failed exhaustion of attempts removes the entry so the
				// next snapshot can re-enqueue (spec §9); a successful
				// exit deliberately leaves it for handleUpdate's
				// ReconcileSnapshot diff to clear once the id actually
				// disappears from the queue.
				w.inflight.Finish([32]byte(queueAddr), item.ID)
				if w.store != nil {
					w.store.DeleteInFlight(requestKey)
				}
			}
		}()
		return true
	})
}
