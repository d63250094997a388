package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleKV is a KV backed by a pebble database.
type PebbleKV struct {
	db *pebble.DB
}

// OpenPebble opens or creates a pebble database in dir.
func OpenPebble(dir string) (*PebbleKV, error) {
	return openPebble(dir, &pebble.Options{})
}

// OpenPebbleInMemory opens a pebble database on an in-memory filesystem.
func OpenPebbleInMemory() (*PebbleKV, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(dir string, opts *pebble.Options) (*PebbleKV, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database %q: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("Opened pebble store")
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = closer.Close()
	}()
	return bytes.Clone(v), nil
}

func (p *PebbleKV) Apply(writes []Write) error {
	batch := p.db.NewBatch()
	defer func() {
		_ = batch.Close()
	}()
	for _, w := range writes {
		var err error
		if w.Value == nil {
			err = batch.Delete(w.Key, nil)
		} else {
			err = batch.Set(w.Key, w.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage write: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (p *PebbleKV) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(bytes.Clone(iter.Key()), bytes.Clone(iter.Value())); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func (p *PebbleKV) Close() error {
	return p.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the prefix,
// or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
