// Package program implements the on-chain VRF request lifecycle: the
// 11-instruction dispatcher, its handlers, and the fee/lamport
// discipline they share. See spec §4.3, §4.4, §6, §7.
package program

import "fmt"

// ErrorCode is a stable, numeric program error, surfaced to callers and
// compared with errors.Is rather than string-matched.
type ErrorCode int

const (
	Unauthorized ErrorCode = iota
	RandomnessRequestNotFound
	InvalidProof
	QueueNotEmpty
	InvalidCallbackAccounts
	InvalidQueueIndex
	ArgumentSizeTooLarge
	OracleMustProvideInDifferentSlot
	AccountDataTooSmall
	InsufficientFunds
	InvalidArgument
	InvalidInstructionData
	NotEnoughAccountKeys
	CallbackDispatchFailed
)

func (c ErrorCode) String() string {
	switch c {
	case Unauthorized:
		return "Unauthorized"
	case RandomnessRequestNotFound:
		return "RandomnessRequestNotFound"
	case InvalidProof:
		return "InvalidProof"
	case QueueNotEmpty:
		return "QueueNotEmpty"
	case InvalidCallbackAccounts:
		return "InvalidCallbackAccounts"
	case InvalidQueueIndex:
		return "InvalidQueueIndex"
	case ArgumentSizeTooLarge:
		return "ArgumentSizeTooLarge"
	case OracleMustProvideInDifferentSlot:
		return "OracleMustProvideInDifferentSlot"
	case AccountDataTooSmall:
		return "AccountDataTooSmall"
	case InsufficientFunds:
		return "InsufficientFunds"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidInstructionData:
		return "InvalidInstructionData"
	case NotEnoughAccountKeys:
		return "NotEnoughAccountKeys"
	case CallbackDispatchFailed:
		return "CallbackDispatchFailed"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// ProgramError wraps a stable error code with handler-local context. Two
// ProgramErrors compare equal under errors.Is when their codes match,
// regardless of the wrapped detail.
type ProgramError struct {
	Code   ErrorCode
	Detail string
}

func (e *ProgramError) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is makes errors.Is(err, Err(SomeCode)) match any ProgramError carrying
// the same code, independent of Detail.
func (e *ProgramError) Is(target error) bool {
	other, ok := target.(*ProgramError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// Err constructs a bare ProgramError for use as an errors.Is target, e.g.
// errors.Is(err, program.Err(program.InvalidProof)).
func Err(code ErrorCode) *ProgramError { return &ProgramError{Code: code} }

// Errf constructs a ProgramError with a formatted detail message.
func Errf(code ErrorCode, format string, args ...any) *ProgramError {
	return &ProgramError{Code: code, Detail: fmt.Sprintf(format, args...)}
}
