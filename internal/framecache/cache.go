// Package framecache holds a bounded window of decoded frames around the
// playback position.
package framecache

import (
	"sort"
	"sync"

	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/metrics"
)

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Position  int64  `json:"position"`
	Forward   bool   `json:"forward"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	MinFrame  int64  `json:"min_frame"`
	MaxFrame  int64  `json:"max_frame"`
}

// Cache maps frame numbers to decoded frames. When more than capacity
// frames are resident, frames behind the playback direction are evicted
// before frames ahead of it, furthest from the position first. The frame
// at the current position is never evicted.
type Cache struct {
	capacity int
	frames   map[int64]*decoder.Frame

	position int64
	forward  bool

	hits      uint64
	misses    uint64
	evictions uint64

	mu     sync.Mutex
	logger logger.Logger
}

// New creates a cache. Capacities below 1 are raised to 1.
func New(capacity int, log logger.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = logger.NullLogger{}
	}
	return &Cache{
		capacity: capacity,
		frames:   make(map[int64]*decoder.Frame, capacity+1),
		forward:  true,
		logger:   log.WithField("component", "frame_cache"),
	}
}

func (c *Cache) Get(n int64) (*decoder.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.frames[n]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	metrics.RecordCacheLookup(ok)
	return f, ok
}

// Contains reports residency without counting as a lookup.
func (c *Cache) Contains(n int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.frames[n]
	return ok
}

// Insert stores f under its frame number, replacing any previous entry,
// and evicts until the cache is back within capacity. The inserted frame
// itself may be the one evicted when it lies furthest behind.
func (c *Cache) Insert(f *decoder.Frame) {
	if f == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames[f.Number] = f
	if len(c.frames) > c.capacity {
		c.evictLocked(len(c.frames) - c.capacity)
	}
	metrics.SetCacheEntries(len(c.frames))
}

// SetPosition moves the reference point used for eviction. It does not
// evict anything by itself.
func (c *Cache) SetPosition(n int64, forward bool) {
	c.mu.Lock()
	c.position = n
	c.forward = forward
	c.mu.Unlock()
}

// InvalidateAll drops every resident frame. Counters survive.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.frames) > 0 {
		c.logger.WithField("entries", len(c.frames)).Debug("Invalidating frame cache")
	}
	c.frames = make(map[int64]*decoder.Frame, c.capacity+1)
	metrics.SetCacheEntries(0)
}

// Near reports whether any resident frame lies within window frames of n.
func (c *Cache) Near(n, window int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.frames {
		if abs(k-n) <= window {
			return true
		}
	}
	return false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *Cache) Cap() int {
	return c.capacity
}

// Frames returns the resident frame numbers in ascending order.
func (c *Cache) Frames() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedKeysLocked()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:   len(c.frames),
		Capacity:  c.capacity,
		Position:  c.position,
		Forward:   c.forward,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		MinFrame:  -1,
		MaxFrame:  -1,
	}
	if keys := c.sortedKeysLocked(); len(keys) > 0 {
		s.MinFrame = keys[0]
		s.MaxFrame = keys[len(keys)-1]
	}
	return s
}

type candidate struct {
	frame    int64
	behind   bool
	distance int64
}

// evictLocked removes count frames chosen by selectVictims.
func (c *Cache) evictLocked(count int) {
	cands := make([]candidate, 0, len(c.frames))
	for n := range c.frames {
		if n == c.position {
			continue
		}
		cands = append(cands, candidate{
			frame:    n,
			behind:   c.isBehind(n),
			distance: abs(n - c.position),
		})
	}

	for _, v := range selectVictims(cands, count) {
		delete(c.frames, v.frame)
		c.evictions++
		metrics.IncCacheEviction(v.behind)
	}
}

func (c *Cache) isBehind(n int64) bool {
	if c.forward {
		return n < c.position
	}
	return n > c.position
}

// selectVictims orders candidates behind-first, then by distance
// descending, and returns up to count of them.
func selectVictims(cands []candidate, count int) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].behind != cands[j].behind {
			return cands[i].behind
		}
		if cands[i].distance != cands[j].distance {
			return cands[i].distance > cands[j].distance
		}
		return cands[i].frame < cands[j].frame
	})

	if count > len(cands) {
		count = len(cands)
	}
	return cands[:count]
}

func (c *Cache) sortedKeysLocked() []int64 {
	keys := make([]int64, 0, len(c.frames))
	for n := range c.frames {
		keys = append(keys, n)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
