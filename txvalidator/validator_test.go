package txvalidator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

func signedLegacyTx(t *testing.T, chainID *big.Int, nonce uint64, gasPrice int64) (*types.Transaction, *state.Mem) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	to := crypto.PubkeyToAddress(key.PublicKey)
	tx := types.MustSignNewTx(key, types.NewEIP155Signer(chainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(gasPrice),
	})

	from := crypto.PubkeyToAddress(key.PublicKey)
	db := state.NewMem()
	db.SetBalance(from, uint256.NewInt(1_000_000_000_000_000_000))
	return tx, db
}

func TestValidateAcceptsWellFormedTransaction(t *testing.T) {
	chainConfig := &params.ChainConfig{ChainID: big.NewInt(1337)}
	tx, db := signedLegacyTx(t, big.NewInt(1337), 0, 1_000_000_000)

	v := New(chainConfig)
	err := v.Validate(context.Background(), db, tx, Context{IsEIP155: true})
	require.NoError(t, err)
}

func TestValidateRejectsNonceTooLow(t *testing.T) {
	chainConfig := &params.ChainConfig{ChainID: big.NewInt(1337)}
	tx, db := signedLegacyTx(t, big.NewInt(1337), 0, 1_000_000_000)

	signer, err := types.Sender(types.NewEIP155Signer(big.NewInt(1337)), tx)
	require.NoError(t, err)
	db.SetNonce(signer, 5)

	v := New(chainConfig)
	err = v.Validate(context.Background(), db, tx, Context{IsEIP155: true})
	require.Error(t, err)
	invalid, ok := apierr.AsInvalidTransaction(err)
	require.True(t, ok)
	require.Equal(t, apierr.NonceTooLow, invalid.Variant)
}

func TestValidateRejectsInsufficientFunds(t *testing.T) {
	chainConfig := &params.ChainConfig{ChainID: big.NewInt(1337)}
	tx, db := signedLegacyTx(t, big.NewInt(1337), 0, 1_000_000_000)

	signer, err := types.Sender(types.NewEIP155Signer(big.NewInt(1337)), tx)
	require.NoError(t, err)
	db.SetBalance(signer, uint256.NewInt(1))

	v := New(chainConfig)
	err = v.Validate(context.Background(), db, tx, Context{IsEIP155: true})
	require.Error(t, err)
}

func TestValidateSkipsBalanceCheckWhenDisabled(t *testing.T) {
	chainConfig := &params.ChainConfig{ChainID: big.NewInt(1337)}
	tx, db := signedLegacyTx(t, big.NewInt(1337), 0, 1_000_000_000)

	signer, err := types.Sender(types.NewEIP155Signer(big.NewInt(1337)), tx)
	require.NoError(t, err)
	db.SetBalance(signer, uint256.NewInt(0))

	v := New(chainConfig)
	v.DisablePoolBalanceChecks = true
	err = v.Validate(context.Background(), db, tx, Context{IsEIP155: true})
	require.NoError(t, err)
}
