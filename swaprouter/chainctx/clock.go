// Package chainctx supplies the block context the router core reads: the current
// block number and the current timestamp in unix seconds.
package chainctx

import (
	"sync"
	"time"
)

// BlockContext is the host environment view of the chain.
type BlockContext interface {
	BlockNumber() uint64
	Timestamp() uint64
}

// WallClock derives block numbers from wall time using a fixed block interval
// counted from a genesis time.
type WallClock struct {
	genesis   time.Time
	blockTime time.Duration
	now       func() time.Time
}

// NewWallClock creates a WallClock. A non positive blockTime defaults to 12s.
func NewWallClock(genesis time.Time, blockTime time.Duration) *WallClock {
	if blockTime <= 0 {
		blockTime = 12 * time.Second
	}
	return &WallClock{genesis: genesis, blockTime: blockTime, now: time.Now}
}

func (c *WallClock) BlockNumber() uint64 {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.blockTime)
}

func (c *WallClock) Timestamp() uint64 {
	ts := c.now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// ManualClock is a BlockContext driven explicitly, used by tests and replays.
type ManualClock struct {
	mu    sync.RWMutex
	block uint64
	ts    uint64
}

func NewManualClock(block, ts uint64) *ManualClock {
	return &ManualClock{block: block, ts: ts}
}

func (c *ManualClock) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block
}

func (c *ManualClock) Timestamp() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ts
}

// Advance moves the clock forward by the given number of blocks and seconds.
func (c *ManualClock) Advance(blocks, seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block += blocks
	c.ts += seconds
}

// Set moves the clock to an absolute position.
func (c *ManualClock) Set(block, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = block
	c.ts = ts
}
