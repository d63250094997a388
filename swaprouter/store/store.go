package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "store").Logger()
}

var (
	poolPrefix  = []byte("pool/")
	pairPrefix  = []byte("pair/")
	statePrefix = []byte("state/")
)

// PoolStore implements registry.PoolStore on top of a KV.
//
// Besides the pool records it keeps one bucket per normalized token pair, keyed
// by the blake3 digest of the pair, listing the ids of the pools trading it.
type PoolStore struct {
	kv KV
}

func NewPoolStore(kv KV) *PoolStore {
	return &PoolStore{kv: kv}
}

// SavePools writes all pools, their pair bucket entries and the state records in one batch.
func (s *PoolStore) SavePools(pools []*registry.Pool, records ...registry.StateRecord) error {
	writes := make([]Write, 0, 2*len(pools)+len(records))
	for _, p := range pools {
		record, err := EncodePool(p)
		if err != nil {
			return err
		}
		writes = append(writes,
			Write{Key: poolKey(p.ID), Value: record},
			Write{Key: pairKey(p.TokenA, p.TokenB, p.ID), Value: []byte{}},
		)
	}
	for _, rec := range records {
		if rec.Value == nil {
			return fmt.Errorf("state record %q has no value", rec.Name)
		}
		writes = append(writes, Write{Key: stateKey(rec.Name), Value: rec.Value})
	}
	if err := s.kv.Apply(writes); err != nil {
		return fmt.Errorf("failed to write %d pools: %w", len(pools), err)
	}
	log.Debug().Int("pools", len(pools)).Int("records", len(records)).Msg("Saved pools")
	return nil
}

// LoadState returns the named state record, or nil when it was never saved.
func (s *PoolStore) LoadState(name string) ([]byte, error) {
	value, err := s.kv.Get(stateKey(name))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %q: %w", name, err)
	}
	return value, nil
}

// LoadPools returns every stored pool ordered by id.
func (s *PoolStore) LoadPools() ([]*registry.Pool, error) {
	var pools []*registry.Pool
	err := s.kv.Scan(poolPrefix, func(key, value []byte) error {
		p, err := DecodePool(value)
		if err != nil {
			return fmt.Errorf("failed to decode pool at key %x: %w", key, err)
		}
		pools = append(pools, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// PoolIDsForPair returns the ids of the stored pools trading the pair, in id order.
func (s *PoolStore) PoolIDsForPair(a, b common.Address) ([]uint64, error) {
	prefix := pairBucket(a, b)
	var ids []uint64
	err := s.kv.Scan(prefix, func(key, _ []byte) error {
		ids = append(ids, binary.BigEndian.Uint64(key[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PoolStore) Close() error {
	return s.kv.Close()
}

func poolKey(id uint64) []byte {
	key := make([]byte, len(poolPrefix)+8)
	copy(key, poolPrefix)
	binary.BigEndian.PutUint64(key[len(poolPrefix):], id)
	return key
}

func stateKey(name string) []byte {
	key := make([]byte, 0, len(statePrefix)+len(name))
	key = append(key, statePrefix...)
	return append(key, name...)
}

func pairBucket(a, b common.Address) []byte {
	pair := registry.NewTokenPair(a, b)
	var raw [2 * common.AddressLength]byte
	copy(raw[:common.AddressLength], pair.Token0.Bytes())
	copy(raw[common.AddressLength:], pair.Token1.Bytes())
	digest := blake3.Sum256(raw[:])

	bucket := make([]byte, 0, len(pairPrefix)+len(digest))
	bucket = append(bucket, pairPrefix...)
	return append(bucket, digest[:]...)
}

func pairKey(a, b common.Address, id uint64) []byte {
	bucket := pairBucket(a, b)
	key := make([]byte, len(bucket)+8)
	copy(key, bucket)
	binary.BigEndian.PutUint64(key[len(bucket):], id)
	return key
}
