// Package txvalidator implements C8: the pool-admission rule table that
// decides whether a transaction is allowed to enter the pending set, ahead
// of ever reaching the executor.
package txvalidator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

// Validator applies the spec §4.8 rule table to a transaction against the
// account it would be sent from and the block it would be included in.
type Validator struct {
	chainConfig *params.ChainConfig
	// DisablePoolBalanceChecks, when set, skips the InsufficientFunds rule.
	// Nothing in this module sets it: the executor's validator keeps the
	// default, and calls and simulations do not go through Validate.
	DisablePoolBalanceChecks bool
}

func New(chainConfig *params.ChainConfig) *Validator {
	return &Validator{chainConfig: chainConfig}
}

// Context carries the block-level facts a validation decision depends on,
// everything the transaction itself cannot supply.
type Context struct {
	BlockNumber   uint64
	BlockTime     uint64
	BaseFee       *big.Int
	BlobBaseFee   *big.Int
	IsEIP155      bool
	MaxBlobsPerTx int
}

// Validate runs every applicable rule in spec §4.8's order, returning the
// first violation as a typed *apierr.InvalidTransactionError, or nil if the
// transaction may be admitted.
func (v *Validator) Validate(ctx context.Context, db state.DB, tx *types.Transaction, bctx Context) error {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	if err != nil {
		return apierr.NewInvalidTx(apierr.InvalidChainId, err.Error())
	}

	if bctx.IsEIP155 && tx.Protected() && tx.ChainId().Cmp(v.chainConfig.ChainID) != 0 {
		return apierr.NewInvalidTx(apierr.IncompatibleEIP155, "chain id mismatch")
	}

	info, _, err := db.BasicRef(ctx, from)
	if err != nil {
		return err
	}

	if tx.Nonce() < info.Nonce {
		return apierr.NewInvalidTx(apierr.NonceTooLow, "")
	}
	if tx.Nonce() > info.Nonce+maxFutureNonceSpan {
		return apierr.NewInvalidTx(apierr.NonceTooHigh, "")
	}

	intrinsic, err := core.IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, true, true, true)
	if err != nil {
		return apierr.NewInvalidTx(apierr.GasTooLow, err.Error())
	}
	if tx.Gas() < intrinsic {
		return apierr.NewInvalidTx(apierr.GasTooLow, "")
	}
	if tx.Gas() > params.MaxGasLimit {
		return apierr.NewInvalidTx(apierr.GasTooHigh, "")
	}

	if tx.Type() >= types.DynamicFeeTxType {
		if bctx.BaseFee != nil && tx.GasFeeCap().Cmp(bctx.BaseFee) < 0 {
			return apierr.NewInvalidTx(apierr.FeeCapTooLow, "")
		}
		if tx.GasTipCap().Cmp(tx.GasFeeCap()) > 0 {
			return apierr.NewInvalidTx(apierr.TipAboveFeeCap, "")
		}
	}

	if tx.Type() == types.BlobTxType {
		hashes := tx.BlobHashes()
		if len(hashes) == 0 {
			return apierr.NewInvalidTx(apierr.NoBlobHashes, "")
		}
		limit := bctx.MaxBlobsPerTx
		if limit == 0 {
			limit = params.MaxBlobGasPerBlock / params.BlobTxBlobGasPerBlob
		}
		if len(hashes) > limit {
			return apierr.NewInvalidTx(apierr.TooManyBlobs, "")
		}
		if tx.BlobTxSidecar() != nil {
			if err := tx.BlobTxSidecar().ValidateBlobCommitmentHashes(hashes); err != nil {
				return apierr.NewInvalidTx(apierr.BlobTransactionValidationError, err.Error())
			}
		}
		if bctx.BlobBaseFee != nil && tx.BlobGasFeeCap().Cmp(bctx.BlobBaseFee) < 0 {
			return apierr.NewInvalidTx(apierr.BlobFeeCapTooLow, "")
		}
	}

	if !v.DisablePoolBalanceChecks {
		cost, err := transactionCost(tx)
		if err != nil {
			return apierr.NewInvalidTx(apierr.InsufficientFunds, err.Error())
		}
		if info.Balance.Cmp(cost) < 0 {
			return apierr.NewInvalidTx(apierr.InsufficientFunds, "")
		}
	}

	return nil
}

// maxFutureNonceSpan bounds how far ahead of the account's current nonce a
// transaction may queue; a dev node has no mempool reordering horizon
// longer than this to worry about.
const maxFutureNonceSpan = 1 << 16

func transactionCost(tx *types.Transaction) (*uint256.Int, error) {
	gas, overflow := new(uint256.Int).SetFromBig(tx.GasFeeCap())
	if overflow {
		return nil, errOverflow
	}
	gas.Mul(gas, uint256.NewInt(tx.Gas()))

	value, overflow := new(uint256.Int).SetFromBig(tx.Value())
	if overflow {
		return nil, errOverflow
	}

	total := new(uint256.Int).Add(gas, value)

	if tx.Type() == types.BlobTxType {
		blobFee, overflow := new(uint256.Int).SetFromBig(tx.BlobGasFeeCap())
		if overflow {
			return nil, errOverflow
		}
		blobFee.Mul(blobFee, uint256.NewInt(tx.BlobGas()))
		total.Add(total, blobFee)
	}
	return total, nil
}

var errOverflow = overflowError{}

type overflowError struct{}

func (overflowError) Error() string { return "value does not fit in 256 bits" }
