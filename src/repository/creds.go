package repository

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	cfg "photogallery/src/configuration"
)

// MemoryPath selects the in-memory state store.
const MemoryPath = ":memory:"

var stateBucket = []byte("state")

// NewStateStore opens the client-local store named by config.State.Path.
// The store holds the session token and UI preferences.
func NewStateStore(config *cfg.Properties) (StateStore, error) {
	if config == nil {
		return nil, errors.New("config is not valid")
	}
	if config.State.Path == "" || config.State.Path == MemoryPath {
		return NewInMemoryDB(), nil
	}
	return OpenBoltStore(config.State.Path)
}

type (
	// StateStore is the flat key/value store behind the client context.
	StateStore interface {
		Get(key string) (string, bool, error)
		Set(key, value string) error
		Delete(key string) error
		Clear() error
		Close() error
	}
	InMemoryDB struct {
		mu    sync.RWMutex
		table map[string]string
	}
	BoltStore struct {
		db *bolt.DB
	}
)

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{table: make(map[string]string)}
}

func (i *InMemoryDB) Get(key string) (string, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.table[key]
	return v, ok, nil
}

func (i *InMemoryDB) Set(key, value string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table[key] = value
	return nil
}

func (i *InMemoryDB) Delete(key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.table, key)
	return nil
}

func (i *InMemoryDB) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table = make(map[string]string)
	return nil
}

func (i *InMemoryDB) Close() error { return nil }

// OpenBoltStore opens or creates the bolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create state directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open state %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create state bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stateBucket).Get([]byte(key))
		if v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, errors.Wrapf(err, "get %s", key)
}

func (b *BoltStore) Set(key, value string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), []byte(value))
	})
	return errors.Wrapf(err, "set %s", key)
}

func (b *BoltStore) Delete(key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete([]byte(key))
	})
	return errors.Wrapf(err, "delete %s", key)
}

// Clear drops every entry by recreating the bucket.
func (b *BoltStore) Clear() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(stateBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(stateBucket)
		return err
	})
	return errors.Wrap(err, "clear state")
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
