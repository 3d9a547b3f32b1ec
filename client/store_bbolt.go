package client

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var sessionBucket = []byte("session")

// BoltStore is a KV backed by a bbolt file, used by the CLI to keep a
// session across invocations.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the store file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		k, v := tx.Bucket(sessionBucket).Cursor().Seek([]byte(key))
		if k != nil && string(k) == key {
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) Put(_ context.Context, entries map[string][]byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucket)
		for k, v := range entries {
			if err := bkt.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) Delete(_ context.Context, keys ...string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucket)
		for _, k := range keys {
			if err := bkt.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}
