package program

import "github.com/ephemeral-labs/vrf-oracle/accounts"

// Protocol constants fixed by spec §6.
const (
	// RegistrationDelaySlots is how long an oracle must wait after
	// admission before it may initialize its first queue.
	RegistrationDelaySlots uint64 = 200

	// QueueTTLSlots is the age past which a queued request is purgeable,
	// fixed at ~1 hour of slots at 400ms/slot.
	QueueTTLSlots uint64 = 9000

	// VRFLamportsCost is the fee collected for a normal randomness
	// request.
	VRFLamportsCost uint64 = 10_000

	// VRFHighPriorityLamportsCost is the fee collected for a
	// high-priority randomness request.
	VRFHighPriorityLamportsCost uint64 = 50_000

	// MaxCallbackDiscriminatorLen bounds callback_discriminator, shared
	// with the queue engine's own MaxCallbackDiscLen.
	MaxCallbackDiscriminatorLen = 8
)

// DefaultEphemeralQueue is the well-known queue pubkey exempt from fee
// collection (used by integration tests and local development so that
// exercising the request path costs nothing).
var DefaultEphemeralQueue = accounts.Pubkey{}

// AdminPubkey gates ModifyOracle. WithTestAdmin overrides it; that
// function is an ordinary exported one and is not confined to test
// builds.
var AdminPubkey accounts.Pubkey

// WithTestAdmin overrides AdminPubkey for the duration of tests that
// need a deterministic admin key. Production entrypoints must never
// call this; it exists only so _test.go files can set a known admin
// without touching the package-level default used by cmd/vrfd.
func WithTestAdmin(pk accounts.Pubkey) (restore func()) {
	prev := AdminPubkey
	AdminPubkey = pk
	return func() { AdminPubkey = prev }
}

// PurgePolicy selects who is paid the accumulated fee when
// PurgeExpiredRequests removes an item.
type PurgePolicy int

const (
	PurgePayOracle PurgePolicy = iota
	PurgePayCaller
	PurgePayNobody
)
