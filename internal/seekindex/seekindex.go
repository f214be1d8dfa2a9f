// Package seekindex records sync points (keyframes) as forward decoding
// discovers them, so that later seeks can start at the closest known one.
package seekindex

import (
	"sort"
	"time"
)

// SyncPoint is a frame the decoder can start from.
type SyncPoint struct {
	Frame     int64         `json:"frame"`
	Timestamp time.Duration `json:"timestamp"`
}

// Table is an ordered set of sync points: strictly increasing in Frame and
// non-decreasing in Timestamp. It is owned by the player worker and not
// safe for concurrent use.
type Table struct {
	points []SyncPoint
}

func New() *Table {
	return &Table{}
}

// Record adds a sync point. Recording a frame that is already present is a
// no-op. It reports false when the entry would break ordering against its
// neighbours, in which case the table is unchanged.
func (t *Table) Record(frame int64, ts time.Duration) bool {
	if frame < 0 {
		return false
	}
	i := t.search(frame)
	if i < len(t.points) && t.points[i].Frame == frame {
		return t.points[i].Timestamp == ts
	}
	if i > 0 && t.points[i-1].Timestamp > ts {
		return false
	}
	if i < len(t.points) && t.points[i].Timestamp < ts {
		return false
	}

	t.points = append(t.points, SyncPoint{})
	copy(t.points[i+1:], t.points[i:])
	t.points[i] = SyncPoint{Frame: frame, Timestamp: ts}
	return true
}

// NearestAtOrBefore returns the greatest sync point with Frame <= frame.
// When none exists it returns the earliest known point (or frame 0 at time
// 0 on an empty table) and false; the caller should then start decoding
// from the beginning of the stream.
func (t *Table) NearestAtOrBefore(frame int64) (SyncPoint, bool) {
	i := t.search(frame + 1)
	if i == 0 {
		if len(t.points) > 0 {
			return t.points[0], false
		}
		return SyncPoint{}, false
	}
	return t.points[i-1], true
}

// search returns the index of the first point with Frame >= frame.
func (t *Table) search(frame int64) int {
	return sort.Search(len(t.points), func(i int) bool {
		return t.points[i].Frame >= frame
	})
}

func (t *Table) Reset() {
	t.points = t.points[:0]
}

func (t *Table) Len() int {
	return len(t.points)
}

// Last returns the highest recorded sync point.
func (t *Table) Last() (SyncPoint, bool) {
	if len(t.points) == 0 {
		return SyncPoint{}, false
	}
	return t.points[len(t.points)-1], true
}

// Points returns a copy of the table in frame order.
func (t *Table) Points() []SyncPoint {
	out := make([]SyncPoint, len(t.points))
	copy(out, t.points)
	return out
}
