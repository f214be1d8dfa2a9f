package framecache

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/logger"
)

func frame(n int64) *decoder.Frame {
	return &decoder.Frame{Number: n}
}

func fill(c *Cache, from, to int64) {
	for n := from; n <= to; n++ {
		c.Insert(frame(n))
	}
}

func TestGetAndInsert(t *testing.T) {
	c := New(4, logger.NullLogger{})

	_, ok := c.Get(3)
	assert.False(t, ok)

	c.Insert(frame(3))
	f, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Number)

	c.Insert(nil)
	assert.Equal(t, 1, c.Len())

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
}

func TestEvictsBehindFirstWhenPlayingForward(t *testing.T) {
	c := New(5, logger.NullLogger{})
	c.SetPosition(10, true)
	fill(c, 6, 10)
	c.Insert(frame(11))
	c.Insert(frame(12))

	// 6 and 7 are furthest behind.
	assert.Equal(t, []int64{8, 9, 10, 11, 12}, c.Frames())
	assert.Equal(t, uint64(2), c.Stats().Evictions)
}

func TestEvictsAheadFurthestWhenNothingBehind(t *testing.T) {
	c := New(3, logger.NullLogger{})
	c.SetPosition(10, true)
	fill(c, 10, 14)

	assert.Equal(t, []int64{10, 11, 12}, c.Frames())
}

func TestBackwardDirectionKeepsLowerFrames(t *testing.T) {
	c := New(4, logger.NullLogger{})
	c.SetPosition(20, false)
	// Decode-forward from a sync point up to the target.
	fill(c, 10, 20)

	assert.Equal(t, []int64{17, 18, 19, 20}, c.Frames())

	// Frames above the position are behind when going backward.
	c.Insert(frame(21))
	assert.Equal(t, []int64{17, 18, 19, 20}, c.Frames())
}

func TestCurrentPositionNeverEvicted(t *testing.T) {
	c := New(1, logger.NullLogger{})
	c.SetPosition(5, true)
	c.Insert(frame(5))
	c.Insert(frame(6))
	c.Insert(frame(100))
	c.Insert(frame(0))

	assert.Equal(t, []int64{5}, c.Frames())
}

func TestCapacityOneKeepsLatestTowardTarget(t *testing.T) {
	c := New(1, logger.NullLogger{})
	c.SetPosition(9, true)
	fill(c, 0, 9)

	f, ok := c.Get(9)
	require.True(t, ok)
	assert.Equal(t, int64(9), f.Number)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidateAll(t *testing.T) {
	c := New(8, logger.NullLogger{})
	fill(c, 0, 5)
	_, _ = c.Get(1)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestNear(t *testing.T) {
	c := New(8, logger.NullLogger{})
	assert.False(t, c.Near(0, 100))

	fill(c, 50, 52)
	assert.True(t, c.Near(51, 0))
	assert.True(t, c.Near(60, 8))
	assert.False(t, c.Near(61, 8))
	assert.True(t, c.Near(42, 8))
	assert.False(t, c.Near(41, 8))
}

func TestNewClampsCapacity(t *testing.T) {
	c := New(0, nil)
	assert.Equal(t, 1, c.Cap())
}

func TestStatsRange(t *testing.T) {
	c := New(8, logger.NullLogger{})
	s := c.Stats()
	assert.Equal(t, int64(-1), s.MinFrame)
	assert.Equal(t, int64(-1), s.MaxFrame)

	fill(c, 3, 7)
	c.SetPosition(5, false)
	s = c.Stats()
	assert.Equal(t, 5, s.Entries)
	assert.Equal(t, 8, s.Capacity)
	assert.Equal(t, int64(3), s.MinFrame)
	assert.Equal(t, int64(7), s.MaxFrame)
	assert.Equal(t, int64(5), s.Position)
	assert.False(t, s.Forward)
}

func TestNeverExceedsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, capacity := range []int{1, 2, 7, 48} {
		c := New(capacity, logger.NullLogger{})
		for i := 0; i < 2000; i++ {
			switch rng.Intn(10) {
			case 0:
				c.SetPosition(rng.Int63n(500), rng.Intn(2) == 0)
			case 1:
				if rng.Intn(20) == 0 {
					c.InvalidateAll()
				}
			default:
				c.Insert(frame(rng.Int63n(500)))
			}
			require.LessOrEqual(t, c.Len(), capacity)
		}
	}
}

func TestSelectVictimsOrdering(t *testing.T) {
	cands := []candidate{
		{frame: 12, behind: false, distance: 2},
		{frame: 2, behind: true, distance: 8},
		{frame: 30, behind: false, distance: 20},
		{frame: 9, behind: true, distance: 1},
	}
	got := selectVictims(cands, 3)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].frame)
	assert.Equal(t, int64(9), got[1].frame)
	assert.Equal(t, int64(30), got[2].frame)

	assert.Len(t, selectVictims(cands, 10), 4)
}
