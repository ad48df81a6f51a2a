package session

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionBucket = []byte("session")

// BoltStore keeps the session entries in a single bbolt file. It is the
// on-disk counterpart of browser local storage for command-line use.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get implements [Store].
func (s *BoltStore) Get(_ context.Context, key Key) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get([]byte(key))
		if v != nil {
			// v is only valid inside the transaction.
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, found, nil
}

// Set implements [Store].
func (s *BoltStore) Set(_ context.Context, key Key, value string) error {
	return s.update(func(b *bolt.Bucket) error {
		return b.Put([]byte(key), []byte(value))
	})
}

// Remove implements [Store].
func (s *BoltStore) Remove(_ context.Context, key Key) error {
	return s.update(func(b *bolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

// Apply implements [BatchStore] in one read-write transaction.
func (s *BoltStore) Apply(_ context.Context, set map[Key]string, remove []Key) error {
	return s.update(func(b *bolt.Bucket) error {
		for _, k := range remove {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		for k, v := range set {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyIf implements [CompareStore]; the guard is read in the same
// read-write transaction as the batch.
func (s *BoltStore) ApplyIf(_ context.Context, guard Key, expect string, set map[Key]string, remove []Key) error {
	var changed bool
	err := s.update(func(b *bolt.Bucket) error {
		if v := b.Get([]byte(guard)); v == nil || string(v) != expect {
			changed = true
			return nil
		}
		for _, k := range remove {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		for k, v := range set {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		return ErrSessionChanged
	}
	return nil
}

func (s *BoltStore) update(fn func(*bolt.Bucket) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(sessionBucket))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
