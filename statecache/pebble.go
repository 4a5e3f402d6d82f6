package statecache

import "github.com/cockroachdb/pebble"

// PebbleDiskStore adapts a *pebble.DB to the DiskStore interface, the
// concrete disk tier behind cache_path: historical state survives a
// restart the same way the teacher's own chain database does, just keyed
// by block number instead of a trie path.
type PebbleDiskStore struct {
	db *pebble.DB
}

// OpenPebbleDiskStore opens (creating if necessary) a pebble store at path
// for use as a Cache's disk tier.
func OpenPebbleDiskStore(path string) (*PebbleDiskStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDiskStore{db: db}, nil
}

func (p *PebbleDiskStore) Get(key []byte) ([]byte, func() error, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		return nil, nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, closer.Close, nil
}

func (p *PebbleDiskStore) Set(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDiskStore) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

// Close releases the underlying pebble handle. Callers that built the
// store via OpenPebbleDiskStore own this lifecycle; Cache itself never
// closes its disk tier.
func (p *PebbleDiskStore) Close() error {
	return p.db.Close()
}
