package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/mitchellh/cli"

	"github.com/zenanetwork/zenadev/backend"
)

// defaultDevKeyHex is the well-known first default test account private key
// used by most EVM dev nodes (anvil, hardhat): public and intentionally
// reused, so a fresh chain's funded account is reproducible without ever
// printing a secret.
const defaultDevKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// MineCommand builds an in-memory backend from flags and mines a fixed
// number of blocks, printing a one-line summary per block. This is the
// "scripted block mining" driver the CLI exists for; nothing here opens a
// socket, since the backend has no transport of its own.
type MineCommand struct {
	UI cli.Ui
}

func (c *MineCommand) Help() string {
	return `Usage: zenadev mine [options]

  Construct an in-memory dev chain and mine a fixed number of blocks.

Options:

  -blocks     Number of blocks to mine (default 1)
  -interval   Pause between blocks, e.g. "2s" (default 0, mine immediately)
  -chain-id   Chain ID for the dev chain (default 1337)
  -base-fee   Genesis base fee in wei (default 1000000000)
  -balance    Wei balance to seed the default dev account with
              (default 10000000000000000000000, i.e. 10000 ether)`
}

func (c *MineCommand) Synopsis() string {
	return "Mine a batch of blocks on an in-memory dev chain"
}

func (c *MineCommand) Run(args []string) int {
	var (
		blocks   int
		interval time.Duration
		chainID  uint64
		baseFee  uint64
		balance  string
	)

	flags := flag.NewFlagSet("mine", flag.ContinueOnError)
	flags.IntVar(&blocks, "blocks", 1, "number of blocks to mine")
	flags.DurationVar(&interval, "interval", 0, "pause between blocks")
	flags.Uint64Var(&chainID, "chain-id", 1337, "chain id")
	flags.Uint64Var(&baseFee, "base-fee", 1_000_000_000, "genesis base fee, wei")
	flags.StringVar(&balance, "balance", "10000000000000000000000", "seed balance for the default dev account, wei")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	bal, ok := new(big.Int).SetString(balance, 10)
	if !ok {
		c.UI.Error(fmt.Sprintf("invalid -balance %q", balance))
		return 1
	}

	key, err := crypto.HexToECDSA(defaultDevKeyHex)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	cfg := backend.Config{
		ChainConfig: devChainConfig(chainID),
		GenesisAlloc: map[common.Address]backend.GenesisAccount{
			addr: {Balance: uint256.MustFromBig(bal)},
		},
		GenesisBaseFee: baseFee,
		PruneStateHistory: backend.PruneStateHistory{
			Enabled:          true,
			MaxMemoryHistory: 256,
		},
		PrintLogs: true,
	}

	b, err := backend.New(cfg)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	c.UI.Output(fmt.Sprintf("dev account %s funded with %s wei", addr.Hex(), bal.String()))

	for i := 0; i < blocks; i++ {
		result, err := b.MineBlock(context.Background(), nil)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		c.UI.Output(fmt.Sprintf("mined block %d  hash=%s  txs=%d  gasUsed=%d",
			result.Block.NumberU64(), result.Block.Hash(), len(result.Block.Transactions()), result.Block.GasUsed()))

		if interval > 0 && i != blocks-1 {
			time.Sleep(interval)
		}
	}

	return 0
}

// devChainConfig activates every block-numbered hardfork from Homestead
// through London at block zero: a dev node has no staged rollout. No
// timestamp-based fork (Shanghai, Cancun and later) is configured.
func devChainConfig(chainID uint64) *params.ChainConfig {
	zero := big.NewInt(0)
	return &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(chainID),
		HomesteadBlock:      zero,
		EIP150Block:         zero,
		EIP155Block:         zero,
		EIP158Block:         zero,
		ByzantiumBlock:      zero,
		ConstantinopleBlock: zero,
		PetersburgBlock:     zero,
		IstanbulBlock:       zero,
		BerlinBlock:         zero,
		LondonBlock:         zero,
	}
}
