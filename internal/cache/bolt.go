package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var cacheBucket = []byte("provider_cache")

// Bolt is a file-backed Store on top of bbolt.
//
// Each entry is stored as an 8-byte big-endian expiry (unix seconds, zero
// for no expiry) followed by the payload. Expired entries are dropped
// lazily on read.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBolt opens (or creates) the cache file at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Bolt{db: db, now: time.Now}, nil
}

// Close releases the underlying bbolt file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expired bool

	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(cacheBucket).Get([]byte(key))
		if raw == nil || len(raw) < 8 {
			return nil
		}

		expiry := int64(binary.BigEndian.Uint64(raw[:8]))
		if expiry > 0 && expiry <= b.now().Unix() {
			expired = true
			return nil
		}

		value = make([]byte, len(raw)-8)
		copy(value, raw[8:])
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}

	if expired {
		// best effort; a failed cleanup only delays the next miss
		_ = b.Del(key)
	}
	if value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

func (b *Bolt) Set(key string, value []byte, ttl time.Duration) error {
	var expiry int64
	if ttl > 0 {
		expiry = b.now().Add(ttl).Unix()
	}

	raw := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(raw[:8], uint64(expiry))
	copy(raw[8:], value)

	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

func (b *Bolt) Del(key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}
