package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ismaild/vumi/interfaces"
)

// BadgerStore is a KeyStore backed by BadgerDB. The message-id
// correlation mapping survives gateway restarts; TTLs are enforced by
// badger itself.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open keystore at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			v, err := decodeEntry(data)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keystore get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *BadgerStore) Set(_ context.Context, key, value string) error {
	data, err := encodeEntry(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	data, err := encodeEntry(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Expire re-writes the key's entry with a fresh TTL. A missing key is
// a no-op.
func (s *BadgerStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	return s.SetWithTTL(ctx, key, value, ttl)
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ interfaces.KeyStore = (*BadgerStore)(nil)
