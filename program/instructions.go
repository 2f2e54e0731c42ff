package program

import (
	"encoding/binary"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/queue"
)

// Instruction tags, fixed by spec §4.3/§6.
const (
	TagInitialize                     uint8 = 0
	TagModifyOracle                   uint8 = 1
	TagInitializeOracleQueue          uint8 = 2
	TagRequestHighPriorityRandomness  uint8 = 3
	TagProvideRandomness              uint8 = 4
	TagDelegateOracleQueue            uint8 = 5
	TagUndelegateOracleQueue          uint8 = 6
	TagCloseOracleQueue               uint8 = 7
	TagRequestRandomness              uint8 = 8
	TagPurgeExpiredRequests           uint8 = 9
	TagProcessUndelegation            uint8 = 196
)

// instructionPrefixSize is the 8-byte-aligned tag prefix: one tag byte
// plus 7 zero bytes (spec §6).
const instructionPrefixSize = 8

// DecodeTag reads the leading tag byte, rejecting instruction data
// shorter than the fixed prefix.
func DecodeTag(data []byte) (uint8, []byte, error) {
	if len(data) < instructionPrefixSize {
		return 0, nil, Err(InvalidInstructionData)
	}
	return data[0], data[instructionPrefixSize:], nil
}

// EncodeTag writes the 8-byte-aligned tag prefix followed by payload.
func EncodeTag(tag uint8, payload []byte) []byte {
	out := make([]byte, instructionPrefixSize+len(payload))
	out[0] = tag
	copy(out[instructionPrefixSize:], payload)
	return out
}

// CallbackMeta is the wire form of one callback account reference, as
// carried in a request instruction's variable body. is_signer is part
// of the wire form (unlike queue.Meta, which elides it — see spec §3)
// and is decoded, but the request handlers do not read it: only
// is_writable is persisted into the queue item.
type CallbackMeta struct {
	Pubkey     accounts.Pubkey
	IsSigner   bool
	IsWritable bool
}

// RequestArgs is the decoded variable body shared by RequestRandomness
// and RequestHighPriorityRandomness (spec §6).
type RequestArgs struct {
	CallerSeed            [32]byte
	CallbackProgramID      accounts.Pubkey
	CallbackDiscriminator []byte
	CallbackMetas         []CallbackMeta
	CallbackArgs          []byte
}

func EncodeRequestArgs(a RequestArgs) []byte {
	size := 32 + 32 + 4 + len(a.CallbackDiscriminator) + 4 + len(a.CallbackMetas)*34 + 4 + len(a.CallbackArgs)
	out := make([]byte, size)
	off := 0
	copy(out[off:off+32], a.CallerSeed[:])
	off += 32
	copy(out[off:off+32], a.CallbackProgramID[:])
	off += 32
	binary.LittleEndian.PutUint32(out[off:], uint32(len(a.CallbackDiscriminator)))
	off += 4
	off += copy(out[off:], a.CallbackDiscriminator)
	binary.LittleEndian.PutUint32(out[off:], uint32(len(a.CallbackMetas)))
	off += 4
	for _, m := range a.CallbackMetas {
		copy(out[off:off+32], m.Pubkey[:])
		off += 32
		out[off] = boolByte(m.IsSigner)
		off++
		out[off] = boolByte(m.IsWritable)
		off++
	}
	binary.LittleEndian.PutUint32(out[off:], uint32(len(a.CallbackArgs)))
	off += 4
	copy(out[off:], a.CallbackArgs)
	return out
}

func DecodeRequestArgs(data []byte) (RequestArgs, error) {
	var a RequestArgs
	off := 0
	if len(data) < off+32+32+4 {
		return a, Err(InvalidInstructionData)
	}
	copy(a.CallerSeed[:], data[off:off+32])
	off += 32
	copy(a.CallbackProgramID[:], data[off:off+32])
	off += 32

	discLen, n, err := readU32Len(data, off)
	if err != nil {
		return a, err
	}
	off = n
	if discLen > MaxCallbackDiscriminatorLen {
		return a, Err(ArgumentSizeTooLarge)
	}
	if len(data) < off+int(discLen) {
		return a, Err(InvalidInstructionData)
	}
	a.CallbackDiscriminator = append([]byte(nil), data[off:off+int(discLen)]...)
	off += int(discLen)

	metasLen, n, err := readU32Len(data, off)
	if err != nil {
		return a, err
	}
	off = n
	if metasLen > queue.MaxMetas {
		return a, Err(ArgumentSizeTooLarge)
	}
	if len(data) < off+int(metasLen)*34 {
		return a, Err(InvalidInstructionData)
	}
	a.CallbackMetas = make([]CallbackMeta, metasLen)
	for i := range a.CallbackMetas {
		copy(a.CallbackMetas[i].Pubkey[:], data[off:off+32])
		off += 32
		a.CallbackMetas[i].IsSigner = data[off] == 1
		off++
		a.CallbackMetas[i].IsWritable = data[off] == 1
		off++
	}

	argsLen, n, err := readU32Len(data, off)
	if err != nil {
		return a, err
	}
	off = n
	if argsLen > queue.MaxArgsLen {
		return a, Err(ArgumentSizeTooLarge)
	}
	if len(data) < off+int(argsLen) {
		return a, Err(InvalidInstructionData)
	}
	a.CallbackArgs = append([]byte(nil), data[off:off+int(argsLen)]...)
	return a, nil
}

func readU32Len(data []byte, off int) (uint32, int, error) {
	if len(data) < off+4 {
		return 0, 0, Err(InvalidInstructionData)
	}
	return binary.LittleEndian.Uint32(data[off:]), off + 4, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ProvideRandomnessArgs is the packed payload of a ProvideRandomness
// instruction: the request id being fulfilled and the VRF proof over
// it.
type ProvideRandomnessArgs struct {
	Input  [32]byte
	Output [32]byte
	Proof  struct {
		RG [32]byte
		RH [32]byte
		S  [32]byte
	}
}

func EncodeProvideRandomnessArgs(a ProvideRandomnessArgs) []byte {
	out := make([]byte, 32+32+32+32+32)
	copy(out[0:32], a.Input[:])
	copy(out[32:64], a.Output[:])
	copy(out[64:96], a.Proof.RG[:])
	copy(out[96:128], a.Proof.RH[:])
	copy(out[128:160], a.Proof.S[:])
	return out
}

func DecodeProvideRandomnessArgs(data []byte) (ProvideRandomnessArgs, error) {
	var a ProvideRandomnessArgs
	if len(data) < 160 {
		return a, Err(InvalidInstructionData)
	}
	copy(a.Input[:], data[0:32])
	copy(a.Output[:], data[32:64])
	copy(a.Proof.RG[:], data[64:96])
	copy(a.Proof.RH[:], data[96:128])
	copy(a.Proof.S[:], data[128:160])
	return a, nil
}

// InitializeOracleQueueArgs is the packed payload for InitializeOracleQueue.
type InitializeOracleQueueArgs struct {
	Index uint8
	Size  uint32
}

func EncodeInitializeOracleQueueArgs(a InitializeOracleQueueArgs) []byte {
	out := make([]byte, 8)
	out[0] = a.Index
	binary.LittleEndian.PutUint32(out[1:5], a.Size)
	return out
}

func DecodeInitializeOracleQueueArgs(data []byte) (InitializeOracleQueueArgs, error) {
	var a InitializeOracleQueueArgs
	if len(data) < 5 {
		return a, Err(InvalidInstructionData)
	}
	a.Index = data[0]
	a.Size = binary.LittleEndian.Uint32(data[1:5])
	return a, nil
}

// ModifyOracleArgs is the packed payload for ModifyOracle.
type ModifyOracleArgs struct {
	Add       bool
	Identity  accounts.Pubkey
	VRFPubkey [32]byte
}

func EncodeModifyOracleArgs(a ModifyOracleArgs) []byte {
	out := make([]byte, 1+32+32)
	out[0] = boolByte(a.Add)
	copy(out[1:33], a.Identity[:])
	copy(out[33:65], a.VRFPubkey[:])
	return out
}

func DecodeModifyOracleArgs(data []byte) (ModifyOracleArgs, error) {
	var a ModifyOracleArgs
	if len(data) < 65 {
		return a, Err(InvalidInstructionData)
	}
	a.Add = data[0] == 1
	copy(a.Identity[:], data[1:33])
	copy(a.VRFPubkey[:], data[33:65])
	return a, nil
}
