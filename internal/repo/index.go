package repo

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"sit/internal/sitlog"
	"sit/internal/tree"
)

// CommitIndex is a disposable, badger-backed accelerator mapping commit
// order and id to byte offsets in the history file. It is never
// authoritative: Repository.Commit rebuilds it from a full parse after
// appending a commit record; nothing else rebuilds it, and its entries
// are not checked against the file's current size or modification
// time. A lookup miss falls back to a linear scan, and every result is only ever used
// to skip re-scanning the file, never to change fold semantics (spec.md
// §9's "log as source of truth" note, and the explicit Non-goal ruling
// out constant-time random-access checkout).
type CommitIndex struct {
	db *badger.DB
}

// OpenCommitIndex opens (creating if absent) a badger database at dir to
// back the commit index.
func OpenCommitIndex(dir string) (*CommitIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening commit index: %w", err)
	}
	return &CommitIndex{db: db}, nil
}

func (ix *CommitIndex) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

type commitEntry struct {
	ID          string
	Order       int
	StartOffset int64
	EndOffset   int64
}

// Rebuild replaces the index contents with the commit records found in
// positioned, keyed both by order and by id.
func (ix *CommitIndex) Rebuild(positioned []sitlog.Positioned) error {
	return ix.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		order := 0
		for _, p := range positioned {
			if p.Record.Cue != "commit" {
				continue
			}
			order++
			id := commitRecordField(p.Record, "id")
			entry := commitEntry{ID: id, Order: order, StartOffset: p.StartOffset, EndOffset: p.EndOffset}
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte("order:"+itoa(order)), data); err != nil {
				return err
			}
			if err := txn.Set([]byte("id:"+id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByOrder returns the indexed commit entry for a 1-based order, if
// present.
func (ix *CommitIndex) FindByOrder(order int) (commitEntry, bool) {
	return ix.lookup("order:" + itoa(order))
}

// FindByIDSubstring scans the id-keyed entries for the first whose id
// contains query, matching findCommit's substring rule in spec.md §4.R.
// Badger has no substring index; this walks the small id: prefix range,
// which is proportional to commit count, not file size.
func (ix *CommitIndex) FindByIDSubstring(query string) (commitEntry, bool) {
	var found commitEntry
	var ok bool
	_ = ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("id:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			id := string(it.Item().Key()[len("id:"):])
			if !containsSubstring(id, query) {
				continue
			}
			var entry commitEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			// Keys iterate in id order; keep the earliest commit by order.
			if !ok || entry.Order < found.Order {
				found, ok = entry, true
			}
		}
		return nil
	})
	return found, ok
}

func (ix *CommitIndex) lookup(key string) (commitEntry, bool) {
	var entry commitEntry
	found := false
	_ = ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, found
}

func commitRecordField(r sitlog.Record, name string) string {
	if !r.HasBody {
		return ""
	}
	for _, line := range strings.Split(r.Body, "\n") {
		key, value, ok := strings.Cut(line, " ")
		if ok && key == name {
			return value
		}
	}
	return ""
}

func containsSubstring(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// zstdCache is a badger-backed, zstd-compressed implementation of
// scan.Persister, letting the in-process LRU scan cache survive across
// CLI invocations. Entries are re-verified against live file size and
// modTime by scan.Cache itself; this type only marshals/unmarshals.
type zstdCache struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	mu  sync.Mutex
}

// OpenScanCache opens a badger database at dir to back the durable half
// of the scan cache.
func OpenScanCache(dir string) (*zstdCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening scan cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zstdCache{db: db, enc: enc, dec: dec}, nil
}

func (c *zstdCache) Close() error {
	if c == nil {
		return nil
	}
	c.enc.Close()
	c.dec.Close()
	return c.db.Close()
}

type cachePayload struct {
	Size    int64
	ModTime time.Time
	Node    tree.Node
}

// Load implements scan.Persister.
func (c *zstdCache) Load(path string) (int64, time.Time, tree.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var payload cachePayload
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("scan:" + path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decompressed, err := c.dec.DecodeAll(val, nil)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(decompressed, &payload); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil || !found {
		return 0, time.Time{}, tree.Node{}, false
	}
	return payload.Size, payload.ModTime, payload.Node, true
}

// Save implements scan.Persister.
func (c *zstdCache) Save(path string, size int64, modTime time.Time, node tree.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cachePayload{Size: size, ModTime: modTime, Node: node})
	if err != nil {
		return
	}
	compressed := c.enc.EncodeAll(data, nil)
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("scan:"+path), compressed)
	})
}
