package node

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/program"
	"github.com/ephemeral-labs/vrf-oracle/queue"
	"github.com/ephemeral-labs/vrf-oracle/vrf"
	"github.com/ephemeral-labs/vrf-oracle/workerstore"
)

const (
	maxFulfillmentAttempts = 100
	backoffStep            = 200 * time.Millisecond

	computeUnitsNormal       = 180_000
	computeUnitsHighPriority = 200_000

	// computeBudgetProgramID is Solana's well-known ComputeBudget111...
	// program; init below assigns its raw 32 address bytes.
)

var computeBudgetProgramID [32]byte

func init() {
	// ComputeBudget111111111111111111111111111111
	b := [32]byte{3, 6, 70, 111, 229, 33, 23, 50, 255, 236, 173, 186, 114, 195, 155, 231, 188, 140, 229, 187, 197, 247, 18, 107, 44, 67, 155, 58, 64, 0, 0, 0}
	computeBudgetProgramID = b
}

// setComputeUnitLimitData encodes a ComputeBudget SetComputeUnitLimit
// instruction: a one-byte discriminator (2) followed by a little-endian
// u32 unit count.
func setComputeUnitLimitData(units uint32) []byte {
	out := make([]byte, 5)
	out[0] = 2
	binary.LittleEndian.PutUint32(out[1:], units)
	return out
}

// fulfiller computes and submits the ProvideRandomness transaction for
// one queued request, retrying on transient failure per spec §4.5: up
// to 100 attempts with linear backoff, re-deciding purge-vs-provide
// against the live TTL on every attempt since an item can age out while
// retries are in flight.
type fulfiller struct {
	rpc            RPCClient
	blockhashes    *BlockhashCache
	vrfManager     *vrf.Manager
	signer         ed25519.PrivateKey
	programID      accounts.Pubkey
	identity       accounts.Pubkey
	identityPDA    accounts.Pubkey
	oracleDataAddr accounts.Pubkey
	latency        latencyObserver
	store          workerstore.Store // may be nil: disables crash-recovery persistence
	collector      StatsCollector    // may be nil: disables /stats counters

	// backoffUnit scales the linear per-attempt backoff; zero selects
	// backoffStep. Tests override it to keep the 100-attempt retry loop
	// fast.
	backoffUnit time.Duration
}

// latencyObserver is the subset of oracle/pull.LatencyTracker the
// fulfiller needs, kept as an interface so tests can substitute a stub.
type latencyObserver interface {
	Observe(queueKey string, enqueueSlot, responseSlot uint64)
}

// fulfill drives one item to completion: either a successful
// ProvideRandomness submission or a PurgeExpiredRequests call if the
// item ages past its TTL before it can be fulfilled. Returns once one
// of those transactions is confirmed, attempts are exhausted, or ctx is
// cancelled.
func (f *fulfiller) fulfill(ctx context.Context, queueAddr accounts.Pubkey, queueIndex uint8, item queue.Item) error {
	var lastErr error
	for attempt := 1; attempt <= maxFulfillmentAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		slot, err := f.rpc.GetSlot(ctx)
		if err != nil {
			lastErr = err
			f.wait(ctx, attempt)
			continue
		}

		if slot > item.Slot+program.QueueTTLSlots {
			if err := f.submitPurge(ctx, queueAddr); err != nil {
				lastErr = err
				f.wait(ctx, attempt)
				continue
			}
			return nil
		}

		if slot <= item.Slot {
			// Same-slot fulfillment is rejected on-chain; wait one tick.
			f.wait(ctx, attempt)
			continue
		}

		if err := f.submitProvide(ctx, queueAddr, queueIndex, item, slot); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("request_id", accounts.Pubkey(item.ID).String()).Msg("provideRandomness submission failed, retrying")
			f.blockhashes.ForceRefresh()
			f.wait(ctx, attempt)
			continue
		}
		return nil
	}
	return fmt.Errorf("fulfillment exhausted %d attempts: %w", maxFulfillmentAttempts, lastErr)
}

func (f *fulfiller) wait(ctx context.Context, attempt int) {
	unit := f.backoffUnit
	if unit == 0 {
		unit = backoffStep
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(attempt) * unit):
	}
}

func (f *fulfiller) submitProvide(ctx context.Context, queueAddr accounts.Pubkey, queueIndex uint8, item queue.Item, currentSlot uint64) error {
	output, proof, err := f.vrfManager.Prove(item.ID[:])
	if err != nil {
		return fmt.Errorf("vrf prove: %w", err)
	}

	args := program.ProvideRandomnessArgs{
		Input:  item.ID,
		Output: output,
		Proof: struct {
			RG, RH, S [32]byte
		}{RG: proof.RG, RH: proof.RH, S: proof.S},
	}
	data := program.EncodeTag(program.TagProvideRandomness, program.EncodeProvideRandomnessArgs(args))

	units := uint32(computeUnitsNormal)
	if item.PriorityRequest == 1 {
		units = computeUnitsHighPriority
	}

	ixAccounts := []AccountMeta{
		{Pubkey: f.identity, IsSigner: true, IsWritable: true},
		{Pubkey: queueAddr, IsSigner: false, IsWritable: true},
		{Pubkey: f.oracleDataAddr, IsSigner: false, IsWritable: false},
	}
	for _, m := range item.Metas {
		ixAccounts = append(ixAccounts, AccountMeta{Pubkey: m.Pubkey, IsWritable: m.IsWritable})
	}

	ixs := []Instruction{
		{ProgramID: computeBudgetProgramID, Accounts: nil, Data: setComputeUnitLimitData(units)},
		{ProgramID: f.programID, Accounts: ixAccounts, Data: data},
	}

	sig, err := f.sendAndConfirm(ctx, ixs)
	if err != nil {
		return err
	}

	log.Info().Str("signature", sig).Str("request_id", accounts.Pubkey(item.ID).String()).Msg("randomness delivered")
	if f.latency != nil {
		f.latency.Observe(queueAddr.String(), item.Slot, currentSlot)
	}
	if f.collector != nil {
		f.collector.IncrementProofsSubmitted()
	}
	if f.store != nil {
		f.store.MarkProcessed(accounts.Pubkey(item.ID).String())
	}
	return nil
}

func (f *fulfiller) submitPurge(ctx context.Context, queueAddr accounts.Pubkey) error {
	data := program.EncodeTag(program.TagPurgeExpiredRequests, nil)
	ixs := []Instruction{
		{ProgramID: f.programID, Accounts: []AccountMeta{
			{Pubkey: f.identity, IsSigner: true, IsWritable: true},
			{Pubkey: queueAddr, IsSigner: false, IsWritable: true},
		}, Data: data},
	}
	sig, err := f.sendAndConfirm(ctx, ixs)
	if err != nil {
		return err
	}
	log.Info().Str("signature", sig).Str("queue", queueAddr.String()).Msg("expired requests purged")
	if f.collector != nil {
		f.collector.IncrementRequestsPurged()
	}
	return nil
}

func (f *fulfiller) sendAndConfirm(ctx context.Context, ixs []Instruction) (string, error) {
	hash, _, ok := f.blockhashes.Get()
	if !ok {
		return "", fmt.Errorf("no cached blockhash yet")
	}
	raw, err := buildTransaction(f.signer, ixs, hash)
	if err != nil {
		return "", err
	}
	sig, err := f.rpc.SendTransaction(ctx, raw)
	if err != nil {
		if f.collector != nil {
			f.collector.IncrementTransactionsFailed()
		}
		return "", err
	}
	if f.collector != nil {
		f.collector.IncrementTransactionsSent()
	}

	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		confirmed, err := f.rpc.GetSignatureStatus(ctx, sig)
		if err != nil {
			if f.collector != nil {
				f.collector.IncrementTransactionsFailed()
			}
			return "", err
		}
		if confirmed {
			return sig, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if f.collector != nil {
		f.collector.IncrementTransactionsFailed()
	}
	return "", fmt.Errorf("transaction %s not confirmed within deadline", sig)
}
