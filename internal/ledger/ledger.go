// Package ledger records which content-addressed cache keys already have a
// validated on-disk raw segment, so a repeated generate call over the same
// plan triggers zero downloads for keys it has already produced. Only the
// Fetcher consults it before doing work and updates it after a segment
// passes validation; the Transcoder does not use it and re-encodes every
// canonical segment on each call.
package ledger

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the key has no recorded path, or its recorded path
// no longer exists on disk.
var ErrNotFound = errors.New("ledger: not found")

// Ledger maps a cache key to the on-disk path of its validated segment.
type Ledger interface {
	Lookup(ctx context.Context, key string) (string, error)
	Record(ctx context.Context, key, path string) error
	Close() error
}

// BadgerLedger persists the cache-key ledger on disk so it survives
// process restarts, using Badger's LSM-tree KV store.
type BadgerLedger struct {
	db *badger.DB
}

// OpenBadger opens (creating if absent) a Badger-backed ledger at dir.
func OpenBadger(dir string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerLedger{db: db}, nil
}

// Lookup returns the recorded path for key, verifying it still exists on
// disk; a stale record (file since removed) is treated as ErrNotFound
// rather than returned, since a vanished file is not usable regardless of
// what the ledger remembers.
func (l *BadgerLedger) Lookup(_ context.Context, key string) (string, error) {
	var path string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			path = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Record stores path under key.
func (l *BadgerLedger) Record(_ context.Context, key, path string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(path))
	})
}

// Close releases the underlying Badger database.
func (l *BadgerLedger) Close() error {
	return l.db.Close()
}

// RedisLedger is an optional cross-instance ledger layer backed by Redis
// (or a miniredis instance in tests), for deployments running more than
// one stitcher process against a shared fetch/transcode cache directory.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger wraps an existing go-redis client. ttl of zero means
// records never expire.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

// Lookup returns the recorded path for key, verifying it still exists on
// disk.
func (l *RedisLedger) Lookup(ctx context.Context, key string) (string, error) {
	path, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Record stores path under key with the configured TTL.
func (l *RedisLedger) Record(ctx context.Context, key, path string) error {
	return l.client.Set(ctx, key, path, l.ttl).Err()
}

// Close closes the underlying Redis client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
