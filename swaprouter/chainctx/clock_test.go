package chainctx

import (
	"testing"
	"time"

	"github.com/zeebo/assert"
)

func TestWallClockBlockNumber(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	c := NewWallClock(genesis, 0)
	c.now = func() time.Time { return genesis.Add(10 * 12 * time.Second) }

	assert.Equal(t, c.BlockNumber(), uint64(10))
	assert.Equal(t, c.Timestamp(), uint64(1_700_000_120))

	c.now = func() time.Time { return genesis.Add(-time.Hour) }
	assert.Equal(t, c.BlockNumber(), uint64(0))
}

func TestManualClockAdvance(t *testing.T) {
	c := NewManualClock(100, 1_000)
	c.Advance(5, 60)
	assert.Equal(t, c.BlockNumber(), uint64(105))
	assert.Equal(t, c.Timestamp(), uint64(1_060))

	c.Set(1, 2)
	assert.Equal(t, c.BlockNumber(), uint64(1))
	assert.Equal(t, c.Timestamp(), uint64(2))
}
