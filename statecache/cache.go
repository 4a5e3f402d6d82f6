// Package statecache implements C5: the historical state cache that lets the
// backend answer calls and traces pinned at a past block without replaying
// the whole chain. It keeps a bounded in-memory tier (an LRU/ARC cache, the
// same family the zenanet consensus engines use for their signature caches)
// and an optional on-disk tier (pebble) for installations that want history
// to survive a restart.
package statecache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru"

	"github.com/zenanetwork/zenadev/internal/apierr"
	"github.com/zenanetwork/zenadev/state"
)

// DiskStore is the subset of a pebble.DB the cache needs for its optional
// on-disk tier. Declared here, not imported from a storage package, so the
// cache never has to know which on-disk engine backs it.
type DiskStore interface {
	Get(key []byte) (value []byte, closer func() error, err error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

const defaultMemoryEntries = 256

// Config controls the cache's capacity and eviction behavior.
type Config struct {
	// MemoryEntries bounds the in-memory tier. Zero selects a sane default.
	MemoryEntries int
	// Disk, if non-nil, backs a second tier consulted on a memory miss and
	// written through on every Insert.
	Disk DiskStore
	// MaxDiskEntries bounds the disk tier's retention (max_persisted_states);
	// zero means unbounded.
	MaxDiskEntries int
}

// Cache is the C5 historical state cache. Every method is safe for
// concurrent use; the memory tier's own locking is relied on, plus an
// additional RWMutex guarding the block-number-to-hash index.
type Cache struct {
	mu sync.RWMutex

	mem            *lru.ARCCache
	disk           DiskStore
	maxDiskEntries int
	diskOrder      []uint64

	numberToHash map[uint64][]byte // block hash recorded by Insert; diskKey is by number
}

// New constructs a Cache. Capacity adapts to the configured (or later
// observed) block production rate via Retune: fast interval mining wants a
// deep history window, slow/manual mining can get by with a shallow one.
func New(cfg Config) (*Cache, error) {
	n := cfg.MemoryEntries
	if n <= 0 {
		n = defaultMemoryEntries
	}
	mem, err := lru.NewARC(n)
	if err != nil {
		return nil, fmt.Errorf("statecache: %w", err)
	}
	return &Cache{
		mem:            mem,
		disk:           cfg.Disk,
		maxDiskEntries: cfg.MaxDiskEntries,
		numberToHash:   make(map[uint64][]byte),
	}, nil
}

// Retune resizes the in-memory tier. Called by the backend whenever the
// interval-mining period changes: a short interval produces blocks fast
// enough that keeping only a shallow window in memory would force most
// historical calls onto the (slower) disk tier, so the window widens as the
// interval shrinks.
func (c *Cache) Retune(entries int) error {
	if entries <= 0 {
		entries = defaultMemoryEntries
	}
	mem, err := lru.NewARC(entries)
	if err != nil {
		return fmt.Errorf("statecache: retune: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.mem.Keys() {
		if v, ok := c.mem.Peek(k); ok {
			mem.Add(k, v)
		}
	}
	c.mem = mem
	return nil
}

// Insert records the state captured right after block `number` with hash
// `hash` was mined. If a disk tier is configured the capture is written
// through so it survives eviction from memory.
func (c *Cache) Insert(number uint64, hash [32]byte, capture state.Capture) error {
	c.mu.Lock()
	c.numberToHash[number] = hash[:]
	c.mem.Add(number, capture)
	disk := c.disk
	c.mu.Unlock()

	if disk == nil {
		return nil
	}
	blob, err := encodeCapture(capture)
	if err != nil {
		return err
	}
	if err := disk.Set(diskKey(number), blob); err != nil {
		return err
	}
	return c.trackDiskInsert(number)
}

// trackDiskInsert evicts the oldest persisted entry once MaxDiskEntries is
// exceeded, keeping the disk tier a rolling window rather than growing
// without bound across a long-running node.
func (c *Cache) trackDiskInsert(number uint64) error {
	if c.maxDiskEntries <= 0 {
		return nil
	}

	c.mu.Lock()
	c.diskOrder = append(c.diskOrder, number)
	var evict uint64
	shouldEvict := false
	if len(c.diskOrder) > c.maxDiskEntries {
		evict = c.diskOrder[0]
		c.diskOrder = c.diskOrder[1:]
		shouldEvict = true
	}
	disk := c.disk
	c.mu.Unlock()

	if shouldEvict && disk != nil {
		return disk.Delete(diskKey(evict))
	}
	return nil
}

// GetState returns the capture for `number`, consulting the disk tier (and
// repopulating memory) on a memory miss.
func (c *Cache) GetState(number uint64) (state.Capture, bool, error) {
	c.mu.RLock()
	if v, ok := c.mem.Get(number); ok {
		c.mu.RUnlock()
		return v.(state.Capture), true, nil
	}
	disk := c.disk
	c.mu.RUnlock()

	if disk == nil {
		return state.Capture{}, false, nil
	}
	return c.GetOnDiskState(number)
}

// GetOnDiskState skips the memory lookup and reads the disk tier directly,
// then adds what it finds to the memory tier. It exists as its own
// operation because disk reads are a distinct, slower code path callers may
// want to account for separately (e.g. when deciding whether to widen the
// in-memory window via Retune).
func (c *Cache) GetOnDiskState(number uint64) (state.Capture, bool, error) {
	if c.disk == nil {
		return state.Capture{}, false, nil
	}
	blob, closer, err := c.disk.Get(diskKey(number))
	if err != nil {
		if isNotFound(err) {
			return state.Capture{}, false, nil
		}
		return state.Capture{}, false, apierr.NewProviderFailure(err)
	}
	if closer != nil {
		defer closer()
	}
	capture, err := decodeCapture(blob)
	if err != nil {
		return state.Capture{}, false, err
	}

	c.mu.Lock()
	c.mem.Add(number, capture)
	c.mu.Unlock()
	return capture, true, nil
}

// Evict drops a single block's entry from both tiers, used when a reorg
// unwinds past it.
func (c *Cache) Evict(number uint64) {
	c.mu.Lock()
	c.mem.Remove(number)
	delete(c.numberToHash, number)
	disk := c.disk
	c.mu.Unlock()

	if disk != nil {
		_ = disk.Delete(diskKey(number))
	}
}

// SerializedStates dumps every in-memory entry using the same JSON+gzip
// envelope state dumps use on the wire, keyed by block number.
func (c *Cache) SerializedStates() (map[uint64][]byte, error) {
	c.mu.RLock()
	numbers := c.mem.Keys()
	c.mu.RUnlock()

	out := make(map[uint64][]byte, len(numbers))
	for _, k := range numbers {
		number := k.(uint64)
		c.mu.RLock()
		v, ok := c.mem.Get(number)
		c.mu.RUnlock()
		if !ok {
			continue
		}
		blob, err := encodeCapture(v.(state.Capture))
		if err != nil {
			return nil, err
		}
		out[number] = blob
	}
	return out, nil
}

// LoadStates restores entries previously produced by SerializedStates.
func (c *Cache) LoadStates(snapshots map[uint64][]byte) error {
	for number, blob := range snapshots {
		capture, err := decodeCapture(blob)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.mem.Add(number, capture)
		c.mu.Unlock()
	}
	return nil
}

func diskKey(number uint64) []byte {
	return []byte(fmt.Sprintf("statecache/%020d", number))
}

func encodeCapture(capture state.Capture) ([]byte, error) {
	raw, err := json.Marshal(capture)
	if err != nil {
		return nil, apierr.NewFailedToDecodeStateDump(err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, apierr.NewFailedToDecodeStateDump(err)
	}
	if err := gw.Close(); err != nil {
		return nil, apierr.NewFailedToDecodeStateDump(err)
	}
	return buf.Bytes(), nil
}

// gzipMagic is the two leading bytes of every gzip stream (RFC 1952 §2.3.1).
var gzipMagic = [2]byte{0x1f, 0x8b}

func decodeCapture(blob []byte) (state.Capture, error) {
	raw := blob
	if len(blob) >= 2 && blob[0] == gzipMagic[0] && blob[1] == gzipMagic[1] {
		gr, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return state.Capture{}, apierr.NewFailedToDecodeStateDump(err)
		}
		defer gr.Close()

		var capture state.Capture
		if err := json.NewDecoder(gr).Decode(&capture); err != nil {
			return state.Capture{}, apierr.NewFailedToDecodeStateDump(err)
		}
		return capture, nil
	}

	var capture state.Capture
	if err := json.Unmarshal(raw, &capture); err != nil {
		return state.Capture{}, apierr.NewFailedToDecodeStateDump(err)
	}
	return capture, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}
