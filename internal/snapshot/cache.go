package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"schemamap/internal/introspection"
)

var schemasBucket = []byte("schemas")

// DefaultMaxEntries bounds how many fingerprints a cache retains.
const DefaultMaxEntries = 16

// CacheOptions configures a Cache.
type CacheOptions struct {
	Path string
	// MaxEntries evicts the oldest entries past this count; zero uses
	// DefaultMaxEntries.
	MaxEntries int
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
}

// Cache stores introspected schemas keyed by fingerprint.
type Cache struct {
	db         *bolt.DB
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	StoredAt time.Time             `msgpack:"stored_at"`
	Schema   *introspection.Schema `msgpack:"schema"`
}

// OpenCache opens or creates the cache database at opts.Path.
func OpenCache(opts CacheOptions) (*Cache, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", opts.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(schemasBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

// Get returns the schema stored under fingerprint. A missing entry yields
// ok == false and no error.
func (c *Cache) Get(fingerprint string) (schema *introspection.Schema, ok bool, err error) {
	if fingerprint == "" {
		return nil, false, nil
	}
	var raw []byte
	err = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(schemasBucket).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		// bbolt reuses the page memory after the transaction.
		raw = append([]byte(nil), data...)
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}

	var entry cacheEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached schema: %w", err)
	}
	if entry.Schema == nil {
		return nil, false, nil
	}
	entry.Schema.Normalize()
	return entry.Schema, true, nil
}

// Put stores schema under fingerprint and evicts the oldest entries beyond
// the configured limit.
func (c *Cache) Put(fingerprint string, schema *introspection.Schema) error {
	if fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	if schema == nil {
		return errors.New("schema is required")
	}
	data, err := msgpack.Marshal(cacheEntry{StoredAt: c.now().UTC(), Schema: schema})
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(schemasBucket)
		if err := bucket.Put([]byte(fingerprint), data); err != nil {
			return err
		}
		return c.evict(bucket)
	})
}

func (c *Cache) evict(bucket *bolt.Bucket) error {
	type aged struct {
		key      []byte
		storedAt time.Time
	}
	var entries []aged
	err := bucket.ForEach(func(k, v []byte) error {
		var head struct {
			StoredAt time.Time `msgpack:"stored_at"`
		}
		if err := msgpack.Unmarshal(v, &head); err != nil {
			// Unreadable entries go first.
			head.StoredAt = time.Time{}
		}
		entries = append(entries, aged{key: append([]byte(nil), k...), storedAt: head.StoredAt})
		return nil
	})
	if err != nil {
		return err
	}
	if len(entries) <= c.maxEntries {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].storedAt.Before(entries[j].storedAt) })
	for _, e := range entries[:len(entries)-c.maxEntries] {
		if err := bucket.Delete(e.key); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of cached schemas.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(schemasBucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Close releases the cache file lock.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
