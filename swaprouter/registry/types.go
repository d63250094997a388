package registry

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolType tags the pricing curve of a pool. Only ConstantProduct is priced by
// the router, other values are stored as given.
type PoolType uint8

const (
	PoolTypeConstantProduct PoolType = iota
	PoolTypeStable
	PoolTypeConcentrated
)

func (t PoolType) String() string {
	switch t {
	case PoolTypeConstantProduct:
		return "constant_product"
	case PoolTypeStable:
		return "stable"
	case PoolTypeConcentrated:
		return "concentrated"
	}
	return "unknown"
}

/*
Pool is one liquidity pool known to the registry.

ID is dense and assigned at creation, it is never reused. TokenA differs from
TokenB and FeeBps never exceeds the configured maximum. CreatedAt and LastUpdated
are unix seconds, RefreshedAtBlock is the block of the last reserve refresh and
drives the refresh rate limit.
*/
type Pool struct {
	ID               uint64
	PoolAddress      common.Address
	TokenA           common.Address
	TokenB           common.Address
	ReserveA         *uint256.Int
	ReserveB         *uint256.Int
	FeeBps           uint32
	PoolType         PoolType
	ChainID          uint64
	IsVerified       bool
	IsActive         bool
	CreatedAt        uint64
	LastUpdated      uint64
	RefreshedAtBlock uint64
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	c := *p
	c.ReserveA = p.ReserveA.Clone()
	c.ReserveB = p.ReserveB.Clone()
	return &c
}

// Orient returns the reserves seen from tokenIn. ok is false when tokenIn is
// not one of the pool's tokens.
func (p *Pool) Orient(tokenIn common.Address) (reserveIn, reserveOut *uint256.Int, ok bool) {
	switch tokenIn {
	case p.TokenA:
		return p.ReserveA, p.ReserveB, true
	case p.TokenB:
		return p.ReserveB, p.ReserveA, true
	}
	return nil, nil, false
}

// TokenPair is an unordered pair normalized so that Token0 sorts before Token1.
type TokenPair struct {
	Token0 common.Address
	Token1 common.Address
}

// NewTokenPair normalizes (a, b) to (min, max).
func NewTokenPair(a, b common.Address) TokenPair {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return TokenPair{Token0: a, Token1: b}
}

// PoolStats are derived figures for one pool. TVL and fees assume a unit price
// per whole token (18 decimals).
type PoolStats struct {
	TVL            *uint256.Int
	Volume24h      *uint256.Int
	Fees24h        *uint256.Int
	PriceImpact1k  uint64
	UtilizationBps uint64
}

// ReserveProvider supplies the current reserves of a pool.
type ReserveProvider interface {
	Reserves(ctx context.Context, pool, tokenA, tokenB common.Address) (reserveA, reserveB *uint256.Int, err error)
}

// StateRecord is a named blob persisted in the same batch as pools.
type StateRecord struct {
	Name  string
	Value []byte
}

// PoolStore persists pools. SavePools is called before a mutation becomes visible
// and must write all pools and records or none; an error aborts the mutation.
// LoadState returns nil when no record with that name was saved.
type PoolStore interface {
	SavePools(pools []*Pool, records ...StateRecord) error
	LoadPools() ([]*Pool, error)
	LoadState(name string) ([]byte, error)
}
