// Package apierr defines the typed error taxonomy shared by every backend
// component. Validators and database layers never panic and never return a
// bare error: every failure surfaces as one of the variants below so the
// caller (the backend, and ultimately an RPC transport it never sees) can
// map it to a stable code instead of pattern-matching error strings.
package apierr

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BlockchainError is returned by block/transaction lookup and horizon
// operations in chainstore and backend.
type BlockchainError struct {
	Kind    BlockchainErrorKind
	Current uint64
	// Requested is populated for BlockOutOfRange.
	Requested uint64
}

type BlockchainErrorKind int

const (
	BlockNotFound BlockchainErrorKind = iota
	TransactionNotFound
	BlockOutOfRange
	DataUnavailable
)

func (e *BlockchainError) Error() string {
	switch e.Kind {
	case BlockNotFound:
		return "block not found"
	case TransactionNotFound:
		return "transaction not found"
	case BlockOutOfRange:
		return fmt.Sprintf("block out of range: current %d, requested %d", e.Current, e.Requested)
	default:
		return "data unavailable"
	}
}

func NewBlockNotFound() error      { return &BlockchainError{Kind: BlockNotFound} }
func NewTransactionNotFound() error { return &BlockchainError{Kind: TransactionNotFound} }
func NewDataUnavailable() error    { return &BlockchainError{Kind: DataUnavailable} }
func NewBlockOutOfRange(current, requested uint64) error {
	return &BlockchainError{Kind: BlockOutOfRange, Current: current, Requested: requested}
}

// InvalidTransactionError enumerates the pool-admission and execution-time
// validation failures of spec §4.8. Exactly one variant is returned per
// failed rule; validators never return a generic error for a well-formed
// transaction.
type InvalidTransactionError struct {
	Variant InvalidTxVariant
	Detail  string
}

type InvalidTxVariant int

const (
	InvalidChainId InvalidTxVariant = iota
	IncompatibleEIP155
	NonceTooLow
	NonceTooHigh
	GasTooLow
	GasTooHigh
	FeeCapTooLow
	TipAboveFeeCap
	NoBlobHashes
	TooManyBlobs
	BlobTransactionValidationError
	BlobFeeCapTooLow
	InsufficientFunds
)

func (e *InvalidTransactionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Variant, e.Detail)
	}
	return e.Variant.String()
}

func (v InvalidTxVariant) String() string {
	switch v {
	case InvalidChainId:
		return "invalid chain id"
	case IncompatibleEIP155:
		return "incompatible EIP-155 transaction"
	case NonceTooLow:
		return "nonce too low"
	case NonceTooHigh:
		return "nonce too high"
	case GasTooLow:
		return "intrinsic gas too low"
	case GasTooHigh:
		return "gas limit too high"
	case FeeCapTooLow:
		return "max fee per gas below block base fee"
	case TipAboveFeeCap:
		return "max priority fee per gas above max fee per gas"
	case NoBlobHashes:
		return "blob transaction without blobs"
	case TooManyBlobs:
		return "too many blobs"
	case BlobTransactionValidationError:
		return "blob sidecar failed KZG validation"
	case BlobFeeCapTooLow:
		return "max fee per blob gas below block blob gas price"
	case InsufficientFunds:
		return "insufficient funds for gas * price + value"
	default:
		return "invalid transaction"
	}
}

func NewInvalidTx(variant InvalidTxVariant, detail string) error {
	return &InvalidTransactionError{Variant: variant, Detail: detail}
}

// DatabaseError is returned by state (C4) and fork (C7) on a read failure.
type DatabaseError struct {
	Kind    DatabaseErrorKind
	Address common.Address
	Hash    common.Hash
	Err     error
}

type DatabaseErrorKind int

const (
	MissingAccount DatabaseErrorKind = iota
	MissingCode
	ProviderFailure
)

func (e *DatabaseError) Error() string {
	switch e.Kind {
	case MissingAccount:
		return fmt.Sprintf("missing account %s", e.Address)
	case MissingCode:
		return fmt.Sprintf("missing code %s", e.Hash)
	default:
		return fmt.Sprintf("remote provider error: %v", e.Err)
	}
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func NewMissingAccount(addr common.Address) error {
	return &DatabaseError{Kind: MissingAccount, Address: addr}
}

func NewMissingCode(hash common.Hash) error {
	return &DatabaseError{Kind: MissingCode, Hash: hash}
}

func NewProviderFailure(err error) error {
	return &DatabaseError{Kind: ProviderFailure, Err: err}
}

// ForkProviderError wraps a transport-level failure from the remote
// provider backing a Fork client. Callers may retry exactly once when the
// interface documents the read as idempotent; ForkProviderError itself
// carries no retry state, it only classifies the failure.
type ForkProviderError struct {
	Kind ForkErrorKind
	Err  error
}

type ForkErrorKind int

const (
	ForkTransport ForkErrorKind = iota
	ForkDecodeError
	ForkBlockNotFound
)

func (e *ForkProviderError) Error() string {
	return fmt.Sprintf("fork provider error: %v", e.Err)
}

func (e *ForkProviderError) Unwrap() error { return e.Err }

func NewForkProviderError(kind ForkErrorKind, err error) error {
	return &ForkProviderError{Kind: kind, Err: err}
}

// EIPUnsupportedAtHardfork signals a precondition failure such as
// submitting a 1559 transaction before London is active.
type EIPUnsupportedAtHardfork struct {
	EIP  string
	Fork string
}

func (e *EIPUnsupportedAtHardfork) Error() string {
	return fmt.Sprintf("%s is not active at %s", e.EIP, e.Fork)
}

func NewEIPUnsupported(eip, fork string) error {
	return &EIPUnsupportedAtHardfork{EIP: eip, Fork: fork}
}

// FailedToDecodeStateDump wraps state-dump decode errors (a corrupt gzip
// stream, malformed JSON) and the encode errors of producing a dump.
type FailedToDecodeStateDump struct {
	Err error
}

func (e *FailedToDecodeStateDump) Error() string {
	return fmt.Sprintf("failed to decode state dump: %v", e.Err)
}

func (e *FailedToDecodeStateDump) Unwrap() error { return e.Err }

func NewFailedToDecodeStateDump(err error) error {
	return &FailedToDecodeStateDump{Err: err}
}

// RpcError is the invalid-params / internal-error surface callers (an RPC
// transport outside this module's scope) map requests onto.
type RpcError struct {
	Code    int
	Message string
}

func (e *RpcError) Error() string { return e.Message }

func NewRpcError(code int, message string) error {
	return &RpcError{Code: code, Message: message}
}

// As* helpers let callers classify an error without importing the concrete
// type, matching the "typed error variant, not string matching" contract.
func AsInvalidTransaction(err error) (*InvalidTransactionError, bool) {
	var t *InvalidTransactionError
	ok := errors.As(err, &t)
	return t, ok
}

func AsBlockchainError(err error) (*BlockchainError, bool) {
	var t *BlockchainError
	ok := errors.As(err, &t)
	return t, ok
}

func AsDatabaseError(err error) (*DatabaseError, bool) {
	var t *DatabaseError
	ok := errors.As(err, &t)
	return t, ok
}
