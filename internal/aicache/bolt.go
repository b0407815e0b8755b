package aicache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var suggestionsBucket = []byte("ai_suggestions")

// Bolt is a Cache persisted in a BoltDB file so responses survive restarts.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the cache file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ai cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(suggestionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ai cache bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(_ context.Context, key string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(suggestionsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("ai cache get: %w", err)
	}
	return e, found, nil
}

func (b *Bolt) Set(_ context.Context, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ai cache marshal: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(suggestionsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("ai cache set: %w", err)
	}
	return nil
}

func (b *Bolt) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(suggestionsBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(suggestionsBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("ai cache clear: %w", err)
	}
	return nil
}
