package program

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/queue"
	"github.com/ephemeral-labs/vrf-oracle/vrf"
)

// Context carries the per-transaction facts handlers need that the
// Ledger itself doesn't track: which program is executing, the current
// slot and its recent hash, and which keys signed this instruction.
type Context struct {
	ProgramID      accounts.Pubkey
	CurrentSlot    uint64
	RecentSlotHash [32]byte
	UnixTime       int64
	Signers        map[accounts.Pubkey]bool
}

func (c Context) signed(pk accounts.Pubkey) bool { return c.Signers[pk] }

// CPIDescriptor describes the cross-program invocation a handler would
// issue, without actually executing it — there is no on-chain runtime
// here, so ProvideRandomness and the delegation handlers hand back a
// descriptor the caller (a test, or the external delegation collaborator)
// can inspect or replay against a real runtime.
type CPIDescriptor struct {
	ProgramID accounts.Pubkey
	Signer    accounts.Pubkey
	Metas     []queue.Meta
	Data      []byte
}

// Initialize creates the singleton Oracles registry. Fails if it
// already exists.
func Initialize(l *Ledger, ctx Context, payer accounts.Pubkey) error {
	addr, _, err := accounts.OraclesAddress(ctx.ProgramID)
	if err != nil {
		return err
	}
	if l.Exists(addr) {
		return Errf(InvalidArgument, "oracles registry already initialized")
	}
	body := make([]byte, accounts.DiscriminatorSize)
	accounts.WriteDiscriminator(body, accounts.DiscriminatorOracles)
	body = append(body, accounts.OraclesRegistry{}.Encode()...)
	if err := l.CreateAccount(addr, ctx.ProgramID, payer, len(body), 0); err != nil {
		return err
	}
	l.SetBody(addr, body)
	log.Info().Str("component", "program").Str("registry", addr.String()).Msg("oracles registry initialized")
	return nil
}

// ModifyOracle adds or removes an oracle identity. Only the fixed admin
// key may call this.
func ModifyOracle(l *Ledger, ctx Context, admin accounts.Pubkey, args ModifyOracleArgs) error {
	if !ctx.signed(admin) || admin != AdminPubkey {
		return Err(Unauthorized)
	}

	registryAddr, _, err := accounts.OraclesAddress(ctx.ProgramID)
	if err != nil {
		return err
	}
	registry, err := accounts.Body(l.Body(registryAddr), accounts.DiscriminatorOracles)
	if err != nil {
		return err
	}
	reg, err := accounts.DecodeOraclesRegistry(registry)
	if err != nil {
		return Errf(InvalidArgument, "%v", err)
	}

	oracleAddr, _, err := accounts.OracleDataAddress(ctx.ProgramID, args.Identity)
	if err != nil {
		return err
	}

	if args.Add {
		if reg.Contains(args.Identity) {
			return Errf(InvalidArgument, "identity %s already registered", args.Identity)
		}
		data := accounts.OracleData{VRFPubkey: args.VRFPubkey, RegistrationSlot: ctx.CurrentSlot, OpenQueue: 0}
		body := make([]byte, accounts.DiscriminatorSize)
		accounts.WriteDiscriminator(body, accounts.DiscriminatorOracle)
		body = append(body, data.Encode()...)
		if err := l.CreateAccount(oracleAddr, ctx.ProgramID, admin, len(body), 0); err != nil {
			return err
		}
		l.SetBody(oracleAddr, body)
		reg = reg.Add(args.Identity)
	} else {
		oracleBody, err := accounts.Body(l.Body(oracleAddr), accounts.DiscriminatorOracle)
		if err != nil {
			return err
		}
		data, err := accounts.DecodeOracleData(oracleBody)
		if err != nil {
			return Errf(InvalidArgument, "%v", err)
		}
		if data.OpenQueue != 0 {
			return Err(QueueNotEmpty)
		}
		l.CloseAccount(oracleAddr, admin)
		reg = reg.Remove(args.Identity)
	}

	newRegistryBody := make([]byte, accounts.DiscriminatorSize)
	accounts.WriteDiscriminator(newRegistryBody, accounts.DiscriminatorOracles)
	newRegistryBody = append(newRegistryBody, reg.Encode()...)
	l.SetBody(registryAddr, newRegistryBody)

	log.Info().Str("component", "program").Str("identity", args.Identity.String()).Bool("add", args.Add).Msg("oracle registry modified")
	return nil
}

// InitializeOracleQueue creates a new Queue PDA for identity at the
// given index, subject to the registration-slot delay.
func InitializeOracleQueue(l *Ledger, ctx Context, payer, identity accounts.Pubkey, args InitializeOracleQueueArgs) error {
	if !ctx.signed(identity) {
		return Err(Unauthorized)
	}

	oracleAddr, _, err := accounts.OracleDataAddress(ctx.ProgramID, identity)
	if err != nil {
		return err
	}
	oracleBody, err := accounts.Body(l.Body(oracleAddr), accounts.DiscriminatorOracle)
	if err != nil {
		return err
	}
	data, err := accounts.DecodeOracleData(oracleBody)
	if err != nil {
		return Errf(InvalidArgument, "%v", err)
	}
	if ctx.CurrentSlot < data.RegistrationSlot+RegistrationDelaySlots {
		return Errf(Unauthorized, "identity registered too recently (slot %d, needs %d)", data.RegistrationSlot, RegistrationDelaySlots)
	}

	queueAddr, _, err := accounts.QueueAddress(ctx.ProgramID, identity, args.Index)
	if err != nil {
		return err
	}
	if l.Exists(queueAddr) {
		return Errf(InvalidArgument, "queue %d already exists for identity %s", args.Index, identity)
	}
	qdata, err := accounts.NewQueueAccountData(int(args.Size), args.Index)
	if err != nil {
		return err
	}
	if err := l.CreateAccount(queueAddr, ctx.ProgramID, payer, len(qdata), 0); err != nil {
		return err
	}
	l.SetBody(queueAddr, qdata)

	data.OpenQueue++
	newOracleBody := make([]byte, accounts.DiscriminatorSize)
	accounts.WriteDiscriminator(newOracleBody, accounts.DiscriminatorOracle)
	newOracleBody = append(newOracleBody, data.Encode()...)
	l.SetBody(oracleAddr, newOracleBody)

	log.Info().Str("component", "program").Str("queue", queueAddr.String()).Uint8("index", args.Index).Msg("oracle queue initialized")
	return nil
}

// requestID computes the 32-byte request id per spec §3.
func requestID(callerSeed [32]byte, slot uint64, recentSlotHash [32]byte, discriminator []byte, callbackProgramID accounts.Pubkey, unixTime int64, logicalIndex uint32) [32]byte {
	h := sha256.New()
	h.Write(callerSeed[:])
	var slotLE [8]byte
	binary.LittleEndian.PutUint64(slotLE[:], slot)
	h.Write(slotLE[:])
	h.Write(recentSlotHash[:])
	h.Write(discriminator)
	h.Write(callbackProgramID[:])
	var timeLE [8]byte
	binary.LittleEndian.PutUint64(timeLE[:], uint64(unixTime))
	h.Write(timeLE[:])
	var idxLE [4]byte
	binary.LittleEndian.PutUint32(idxLE[:], logicalIndex)
	h.Write(idxLE[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// requestRandomness is the shared body of RequestRandomness and
// RequestHighPriorityRandomness; priority and the fee charged are the
// only difference between the two instructions.
func requestRandomness(l *Ledger, ctx Context, payer, identityPDA, queueAddr accounts.Pubkey, args RequestArgs, priority uint8, fee uint64) error {
	expectedIdentityPDA, _, err := accounts.IdentityAddress(args.CallbackProgramID)
	if err != nil {
		return err
	}
	if identityPDA != expectedIdentityPDA {
		return Errf(InvalidCallbackAccounts, "identity PDA does not match callback program %s", args.CallbackProgramID)
	}
	if !ctx.signed(identityPDA) {
		return Err(Unauthorized)
	}
	if len(args.CallbackDiscriminator) > MaxCallbackDiscriminatorLen {
		return Err(ArgumentSizeTooLarge)
	}

	body, err := accounts.Body(l.Body(queueAddr), accounts.DiscriminatorQueue)
	if err != nil {
		return err
	}
	view, err := queue.NewView(body)
	if err != nil {
		return err
	}

	metas := make([]queue.Meta, len(args.CallbackMetas))
	for i, m := range args.CallbackMetas {
		metas[i] = queue.Meta{Pubkey: m.Pubkey, IsWritable: m.IsWritable}
	}

	id := requestID(args.CallerSeed, ctx.CurrentSlot, ctx.RecentSlotHash, args.CallbackDiscriminator, args.CallbackProgramID, ctx.UnixTime, view.ItemCount())

	if _, err := view.AddItem(ctx.CurrentSlot, id, args.CallbackProgramID, args.CallbackDiscriminator, metas, args.CallbackArgs, priority); err != nil {
		return err
	}
	l.SetBody(queueAddr, append([]byte{}, accountWithDiscriminator(accounts.DiscriminatorQueue, body)...))

	if queueAddr != DefaultEphemeralQueue {
		if err := l.TransferInbound(payer, queueAddr, fee); err != nil {
			return err
		}
	}

	log.Debug().Str("component", "program").Str("request_id", accounts.Pubkey(id).String()).Uint8("priority", priority).Msg("randomness requested")
	return nil
}

func accountWithDiscriminator(d accounts.Discriminator, body []byte) []byte {
	out := make([]byte, accounts.DiscriminatorSize+len(body))
	accounts.WriteDiscriminator(out, d)
	copy(out[accounts.DiscriminatorSize:], body)
	return out
}

// RequestRandomness appends a normal-priority request.
func RequestRandomness(l *Ledger, ctx Context, payer, identityPDA, queueAddr accounts.Pubkey, args RequestArgs) error {
	return requestRandomness(l, ctx, payer, identityPDA, queueAddr, args, 0, VRFLamportsCost)
}

// RequestHighPriorityRandomness appends a high-priority request.
func RequestHighPriorityRandomness(l *Ledger, ctx Context, payer, identityPDA, queueAddr accounts.Pubkey, args RequestArgs) error {
	return requestRandomness(l, ctx, payer, identityPDA, queueAddr, args, 1, VRFHighPriorityLamportsCost)
}

// ProvideRandomness verifies an oracle's VRF proof for a queued request,
// dispatches the callback CPI through dispatch, and only then removes
// the item and books the oracle's fee. dispatch is called with the item
// and ledger still untouched; if it returns an error, ProvideRandomness
// returns that error without removing the item or transferring any
// lamports, so a failed callback cannot leak a fee. dispatch may be nil,
// in which case the CPI is treated as trivially successful (used by
// callers, such as tests of the rejection paths above, that never reach
// a valid proof).
func ProvideRandomness(l *Ledger, ctx Context, identity, queueAddr, oracleDataAddr accounts.Pubkey, queueIndex uint8, args ProvideRandomnessArgs, dispatch func(CPIDescriptor) error) (CPIDescriptor, error) {
	if !ctx.signed(identity) {
		return CPIDescriptor{}, Err(Unauthorized)
	}
	expectedQueueAddr, _, err := accounts.QueueAddress(ctx.ProgramID, identity, queueIndex)
	if err != nil {
		return CPIDescriptor{}, err
	}
	if queueAddr != expectedQueueAddr {
		return CPIDescriptor{}, Errf(InvalidQueueIndex, "queue address does not match seeds for index %d", queueIndex)
	}

	body, err := accounts.Body(l.Body(queueAddr), accounts.DiscriminatorQueue)
	if err != nil {
		return CPIDescriptor{}, err
	}
	view, err := queue.NewView(body)
	if err != nil {
		return CPIDescriptor{}, err
	}

	item, ok := view.FindItemByID(args.Input)
	if !ok {
		return CPIDescriptor{}, Err(RandomnessRequestNotFound)
	}
	if ctx.CurrentSlot <= item.Slot {
		return CPIDescriptor{}, Err(OracleMustProvideInDifferentSlot)
	}
	for _, m := range item.Metas {
		if m.Pubkey == identity {
			return CPIDescriptor{}, Err(InvalidCallbackAccounts)
		}
	}

	oracleBody, err := accounts.Body(l.Body(oracleDataAddr), accounts.DiscriminatorOracle)
	if err != nil {
		return CPIDescriptor{}, err
	}
	oracleData, err := accounts.DecodeOracleData(oracleBody)
	if err != nil {
		return CPIDescriptor{}, Errf(InvalidArgument, "%v", err)
	}

	ok = vrf.Verify(vrf.PublicKey(oracleData.VRFPubkey), args.Input[:], vrf.Output(args.Output), vrf.Proof{RG: args.Proof.RG, RH: args.Proof.RH, S: args.Proof.S})
	if !ok {
		return CPIDescriptor{}, Err(InvalidProof)
	}

	identityPDA, _, err := accounts.IdentityAddress(ctx.ProgramID)
	if err != nil {
		return CPIDescriptor{}, err
	}

	outputHash := sha256.Sum256(args.Output[:])
	cpiData := append(append([]byte{}, item.Discriminator...), outputHash[:]...)
	cpiData = append(cpiData, item.Args...)

	cpi := CPIDescriptor{
		ProgramID: item.CallbackProgramID,
		Signer:    identityPDA,
		Metas:     item.Metas,
		Data:      cpiData,
	}

	// The callback must succeed before anything is committed: a failed
	// CPI leaves the queue item and the fee untouched, so the oracle can
	// retry exactly as if it had never submitted a proof.
	if dispatch != nil {
		if err := dispatch(cpi); err != nil {
			return CPIDescriptor{}, Errf(CallbackDispatchFailed, "%v", err)
		}
	}

	if _, err := view.RemoveByID(args.Input); err != nil {
		return CPIDescriptor{}, err
	}
	l.SetBody(queueAddr, accountWithDiscriminator(accounts.DiscriminatorQueue, body))

	if queueAddr != DefaultEphemeralQueue {
		fee := VRFLamportsCost
		if item.PriorityRequest == 1 {
			fee = VRFHighPriorityLamportsCost
		}
		if err := l.TransferFromProgramOwned(ctx.ProgramID, queueAddr, identity, fee); err != nil {
			return CPIDescriptor{}, err
		}
	}

	log.Info().Str("component", "program").Str("request_id", accounts.Pubkey(args.Input).String()).Str("callback", item.CallbackProgramID.String()).Msg("randomness provided")
	return cpi, nil
}

// CloseOracleQueue closes an empty queue, refunding its rent to
// identity and decrementing the oracle's open-queue counter.
func CloseOracleQueue(l *Ledger, ctx Context, identity, queueAddr, oracleDataAddr accounts.Pubkey, queueIndex uint8) error {
	if !ctx.signed(identity) {
		return Err(Unauthorized)
	}
	expectedQueueAddr, _, err := accounts.QueueAddress(ctx.ProgramID, identity, queueIndex)
	if err != nil {
		return err
	}
	if queueAddr != expectedQueueAddr {
		return Errf(InvalidQueueIndex, "queue address does not match seeds for index %d", queueIndex)
	}

	body, err := accounts.Body(l.Body(queueAddr), accounts.DiscriminatorQueue)
	if err != nil {
		return err
	}
	view, err := queue.NewView(body)
	if err != nil {
		return err
	}
	if view.ItemCount() != 0 {
		return Err(QueueNotEmpty)
	}

	// Load and decode the oracle data before mutating anything: if this
	// fails, the queue must be left untouched rather than closed with no
	// way to update open_queue's counter to match.
	oracleBody, err := accounts.Body(l.Body(oracleDataAddr), accounts.DiscriminatorOracle)
	if err != nil {
		return err
	}
	data, err := accounts.DecodeOracleData(oracleBody)
	if err != nil {
		return Errf(InvalidArgument, "%v", err)
	}

	l.CloseAccount(queueAddr, identity)

	if data.OpenQueue > 0 {
		data.OpenQueue--
	}
	newOracleBody := accountWithDiscriminator(accounts.DiscriminatorOracle, data.Encode())
	l.SetBody(oracleDataAddr, newOracleBody)

	log.Info().Str("component", "program").Str("queue", queueAddr.String()).Msg("oracle queue closed")
	return nil
}

// PurgeExpiredRequests removes every item older than QueueTTLSlots,
// paying the configured incentive recipient from the queue's
// accumulated fees. Permissionless by design.
func PurgeExpiredRequests(l *Ledger, ctx Context, queueAddr accounts.Pubkey, policy PurgePolicy, recipient accounts.Pubkey) (int, error) {
	body, err := accounts.Body(l.Body(queueAddr), accounts.DiscriminatorQueue)
	if err != nil {
		return 0, err
	}
	view, err := queue.NewView(body)
	if err != nil {
		return 0, err
	}

	var expired []queue.Item
	view.IterItems(func(it queue.Item) bool {
		if ctx.CurrentSlot-it.Slot > QueueTTLSlots {
			expired = append(expired, it)
		}
		return true
	})

	for _, it := range expired {
		if _, err := view.RemoveByID(it.ID); err != nil {
			return 0, err
		}
	}
	l.SetBody(queueAddr, accountWithDiscriminator(accounts.DiscriminatorQueue, body))

	if queueAddr != DefaultEphemeralQueue && policy != PurgePayNobody && !recipient.IsZero() {
		for _, it := range expired {
			fee := VRFLamportsCost
			if it.PriorityRequest == 1 {
				fee = VRFHighPriorityLamportsCost
			}
			if l.Lamports(queueAddr) < fee {
				break
			}
			if err := l.TransferFromProgramOwned(ctx.ProgramID, queueAddr, recipient, fee); err != nil {
				return len(expired), err
			}
		}
	}

	log.Debug().Str("component", "program").Int("purged", len(expired)).Msg("expired requests purged")
	return len(expired), nil
}

// DelegateOracleQueue validates the local precondition for handing a
// queue's ownership to the external delegation program and returns the
// hand-off descriptor. No delegation protocol state is modeled (see
// Non-goals).
func DelegateOracleQueue(ctx Context, identity, delegationProgramID, queueAddr accounts.Pubkey) (CPIDescriptor, error) {
	if !ctx.signed(identity) {
		return CPIDescriptor{}, Err(Unauthorized)
	}
	return CPIDescriptor{ProgramID: delegationProgramID, Signer: identity, Metas: []queue.Meta{{Pubkey: queueAddr, IsWritable: true}}}, nil
}

// UndelegateOracleQueue is DelegateOracleQueue's inverse.
func UndelegateOracleQueue(ctx Context, identity, delegationProgramID, queueAddr accounts.Pubkey) (CPIDescriptor, error) {
	if !ctx.signed(identity) {
		return CPIDescriptor{}, Err(Unauthorized)
	}
	return CPIDescriptor{ProgramID: delegationProgramID, Signer: identity, Metas: []queue.Meta{{Pubkey: queueAddr, IsWritable: true}}}, nil
}

// ProcessUndelegation is invoked only by the delegation program itself
// once it has finished returning a queue's state.
func ProcessUndelegation(ctx Context, delegationProgramID, queueAddr accounts.Pubkey) (CPIDescriptor, error) {
	if !ctx.signed(delegationProgramID) {
		return CPIDescriptor{}, Err(Unauthorized)
	}
	return CPIDescriptor{ProgramID: delegationProgramID, Metas: []queue.Meta{{Pubkey: queueAddr, IsWritable: true}}}, nil
}
