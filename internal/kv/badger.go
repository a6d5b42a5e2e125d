package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger implements Backend and Swapper on an embedded Badger database.
// Compare-and-set relies on Badger's optimistic transactions: a concurrent
// commit on the same key makes ours fail with ErrConflict.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens a Badger database in dir. An empty dir opens an in-memory
// database.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return val, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

var errMismatch = errors.New("value changed")

func (b *Badger) CompareAndSet(_ context.Context, key string, old, value []byte) (bool, error) {
	err := b.db.Update(func(txn *badger.Txn) error {
		var cur []byte
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if cur, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if !bytes.Equal(cur, old) {
			return errMismatch
		}
		return txn.Set([]byte(key), value)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errMismatch), errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, fmt.Errorf("kv: cas %s: %w", key, err)
	}
}

func (b *Badger) Available(context.Context) bool {
	return !b.db.IsClosed()
}

var (
	_ Backend = (*Badger)(nil)
	_ Swapper = (*Badger)(nil)
)
