// Package fork implements C7: a read-through client over a remote JSON-RPC
// provider, used to answer any question about state or history older than
// the point the dev chain forked from. Concurrent identical requests are
// coalesced with singleflight, and raw storage-slot and code payloads are
// memoized in a fastcache so repeated reads skip the remote round trip.
// Blocks, transactions, receipts, accounts, logs and traces are not
// memoized: each request for them that is not coalesced reaches the provider.
package fork

import (
	"context"
	"math/big"
	"strconv"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/singleflight"

	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

// Provider is the remote RPC surface the client reads through. It is
// declared here rather than pulled from an RPC package, so the fork client
// never commits to a concrete transport (HTTP, IPC, an in-process test
// double all satisfy it identically).
type Provider interface {
	BlockByHash(ctx context.Context, hash common.Hash, full bool) (*types.Block, error)
	BlockByNumber(ctx context.Context, number uint64, full bool) (*types.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockReceipts(ctx context.Context, number uint64) (types.Receipts, error)
	Logs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]*types.Log, error)

	AccountAt(ctx context.Context, addr common.Address, blockNumber uint64) (state.Info, bool, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, blockNumber uint64) (common.Hash, error)
	CodeByHash(ctx context.Context, codeHash common.Hash) ([]byte, error)

	ChainID(ctx context.Context) (*big.Int, error)

	TraceTransaction(ctx context.Context, hash common.Hash, tracer string) ([]byte, error)
	TraceBlock(ctx context.Context, number uint64, tracer string) ([]byte, error)
}

// Client is the C7 Fork Client. It satisfies state.RemoteSource, so a
// Forked StateDB can be built directly on top of one.
type Client struct {
	provider Provider
	group    singleflight.Group
	raw      *fastcache.Cache

	forkBlockNumber uint64
	forkBlockHash   common.Hash
	chainID         *big.Int
}

const defaultRawCacheBytes = 32 * 1024 * 1024

// New constructs a Client pinned at forkBlockNumber/forkBlockHash.
func New(provider Provider, forkBlockNumber uint64, forkBlockHash common.Hash, chainID *big.Int) *Client {
	return &Client{
		provider:        provider,
		raw:             fastcache.New(defaultRawCacheBytes),
		forkBlockNumber: forkBlockNumber,
		forkBlockHash:   forkBlockHash,
		chainID:         chainID,
	}
}

// Reset repoints the client at a new provider and fork height
// (backend.ResetFork builds a new Client instead of calling this). The
// raw-payload cache is dropped since none of it is valid for
// the new chain/height pair.
func (c *Client) Reset(provider Provider, forkBlockNumber uint64, forkBlockHash common.Hash, chainID *big.Int) {
	c.provider = provider
	c.raw = fastcache.New(defaultRawCacheBytes)
	c.forkBlockNumber = forkBlockNumber
	c.forkBlockHash = forkBlockHash
	c.chainID = chainID
}

// PredatesFork reports whether `number` is strictly before the fork point:
// such blocks exist only upstream and are always read through the provider.
func (c *Client) PredatesFork(number uint64) bool {
	return number < c.forkBlockNumber
}

// PredatesForkInclusive reports whether `number` is at or before the fork
// point, used for checks that must also treat the fork block itself as
// immutable remote history (e.g. state reads pinned exactly at the fork).
func (c *Client) PredatesForkInclusive(number uint64) bool {
	return number <= c.forkBlockNumber
}

func (c *Client) ForkBlockNumber() uint64 { return c.forkBlockNumber }
func (c *Client) ForkBlockHash() common.Hash { return c.forkBlockHash }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.provider.ChainID(ctx)
	if err != nil {
		return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) BlockByHash(ctx context.Context, hash common.Hash, full bool) (*types.Block, error) {
	key := "bh:" + hash.Hex()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		b, err := c.provider.BlockByHash(ctx, hash, full)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkBlockNotFound, err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Block), nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64, full bool) (*types.Block, error) {
	key := "bn:" + strconv.FormatUint(number, 10)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		b, err := c.provider.BlockByNumber(ctx, number, full)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkBlockNotFound, err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Block), nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	v, err, _ := c.group.Do("tx:"+hash.Hex(), func() (interface{}, error) {
		tx, err := c.provider.TransactionByHash(ctx, hash)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return tx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Transaction), nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	v, err, _ := c.group.Do("rc:"+hash.Hex(), func() (interface{}, error) {
		r, err := c.provider.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Receipt), nil
}

func (c *Client) BlockReceipts(ctx context.Context, number uint64) (types.Receipts, error) {
	v, err, _ := c.group.Do("brc:"+strconv.FormatUint(number, 10), func() (interface{}, error) {
		r, err := c.provider.BlockReceipts(ctx, number)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.Receipts), nil
}

func (c *Client) Logs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]*types.Log, error) {
	logs, err := c.provider.Logs(ctx, fromBlock, toBlock, addresses, topics)
	if err != nil {
		return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
	}
	return logs, nil
}

// AccountAt, StorageAt and CodeByHash implement state.RemoteSource, pinning
// every read at the fork block: a Forked StateDB never asks for state at
// any other remote height.
func (c *Client) AccountAt(ctx context.Context, addr common.Address) (state.Info, bool, error) {
	key := "acct:" + addr.Hex()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		info, found, err := c.provider.AccountAt(ctx, addr, c.forkBlockNumber)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return accountResult{info: info, found: found}, nil
	})
	if err != nil {
		return state.Info{}, false, err
	}
	res := v.(accountResult)
	return res.info, res.found, nil
}

type accountResult struct {
	info  state.Info
	found bool
}

func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	key := "slot:" + addr.Hex() + ":" + slot.Hex()
	if raw := c.raw.Get(nil, []byte(key)); raw != nil {
		return common.BytesToHash(raw), nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := c.provider.StorageAt(ctx, addr, slot, c.forkBlockNumber)
		if err != nil {
			return common.Hash{}, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return value, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	value := v.(common.Hash)
	c.raw.Set([]byte(key), value.Bytes())
	return value, nil
}

func (c *Client) CodeByHash(ctx context.Context, codeHash common.Hash) ([]byte, error) {
	key := "code:" + codeHash.Hex()
	if raw := c.raw.Get(nil, []byte(key)); raw != nil {
		return raw, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		code, err := c.provider.CodeByHash(ctx, codeHash)
		if err != nil {
			return nil, apierr.NewForkProviderError(apierr.ForkTransport, err)
		}
		return code, nil
	})
	if err != nil {
		return nil, err
	}
	code := v.([]byte)
	if len(code) > 0 {
		c.raw.Set([]byte(key), code)
	}
	return code, nil
}

func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash, tracer string) ([]byte, error) {
	out, err := c.provider.TraceTransaction(ctx, hash, tracer)
	if err != nil {
		return nil, apierr.NewForkProviderError(apierr.ForkDecodeError, err)
	}
	return out, nil
}

func (c *Client) TraceBlock(ctx context.Context, number uint64, tracer string) ([]byte, error) {
	out, err := c.provider.TraceBlock(ctx, number, tracer)
	if err != nil {
		return nil, apierr.NewForkProviderError(apierr.ForkDecodeError, err)
	}
	return out, nil
}
