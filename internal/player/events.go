package player

import (
	"sync"
	"sync/atomic"

	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/metrics"
)

// EventType names an event on the wire.
type EventType string

const (
	EventFrameReady       EventType = "frame_ready"
	EventDurationKnown    EventType = "duration_known"
	EventNativeRateKnown  EventType = "native_rate_known"
	EventResolutionKnown  EventType = "resolution_known"
	EventPlayStateChanged EventType = "play_state_changed"
	EventLoadStarted      EventType = "load_started"
	EventLoadProgress     EventType = "load_progress"
	EventLoadComplete     EventType = "load_complete"
	EventSpeedChanged     EventType = "speed_changed"
	EventError            EventType = "error"
)

// Event is published by the worker to every subscriber.
type Event interface {
	Type() EventType
}

// FrameReady carries a decoded frame for display.
type FrameReady struct {
	Number    int64          `json:"frame"`
	Timecode  string         `json:"timecode"`
	Keyframe  bool           `json:"keyframe"`
	Frame     *decoder.Frame `json:"-"`
	SessionID string         `json:"session_id"`
}

type DurationKnown struct {
	TotalFrames int64 `json:"total_frames"`
	// Exact is set once the end of the stream has been reached.
	Exact bool `json:"exact"`
}

type NativeRateKnown struct {
	FPS float64 `json:"fps"`
}

type ResolutionKnown struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type PlayStateChanged struct {
	Stopped   bool      `json:"stopped"`
	Direction Direction `json:"direction"`
}

// LoadStarted announces a load and the value LoadProgress counts up to.
type LoadStarted struct {
	Path string `json:"path"`
	Max  int    `json:"max"`
}

type LoadProgress struct {
	Percent int `json:"percent"`
}

type LoadComplete struct {
	Path       string  `json:"path"`
	NativeRate float64 `json:"native_rate"`
	SessionID  string  `json:"session_id"`
}

type SpeedChanged struct {
	Rate    float64 `json:"rate"`
	Percent int     `json:"percent"`
}

// Error reports a fatal failure. Transient decode glitches are never
// published.
type Error struct {
	Kind    decoder.ErrorKind `json:"-"`
	KindStr string            `json:"kind"`
	Message string            `json:"message"`
}

func (FrameReady) Type() EventType       { return EventFrameReady }
func (DurationKnown) Type() EventType    { return EventDurationKnown }
func (NativeRateKnown) Type() EventType  { return EventNativeRateKnown }
func (ResolutionKnown) Type() EventType  { return EventResolutionKnown }
func (PlayStateChanged) Type() EventType { return EventPlayStateChanged }
func (LoadStarted) Type() EventType      { return EventLoadStarted }
func (LoadProgress) Type() EventType     { return EventLoadProgress }
func (LoadComplete) Type() EventType     { return EventLoadComplete }
func (SpeedChanged) Type() EventType     { return EventSpeedChanged }
func (Error) Type() EventType            { return EventError }

func newErrorEvent(err error) Error {
	kind := decoder.KindOf(err)
	return Error{Kind: kind, KindStr: kind.String(), Message: err.Error()}
}

// broker fans events out to subscribers without ever blocking the
// publisher.
type broker struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	limit  int
	closed bool
}

func newBroker(limit int) *broker {
	if limit < 1 {
		limit = 1
	}
	return &broker{subs: make(map[*subscription]struct{}), limit: limit}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	s := &subscription{
		out:     make(chan Event),
		notify:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		limit:   b.limit,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	s.wg.Add(1)
	go s.pump()

	return s.out, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		s.close()
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.enqueue(ev)
	}
}

func (b *broker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broker) close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

// subscription is a capped FIFO drained by its own goroutine. When the
// queue is full the oldest FrameReady is dropped; other events are kept
// even past the cap.
type subscription struct {
	mu    sync.Mutex
	queue []Event
	limit int

	dropped atomic.Int64
	closed  atomic.Bool

	out     chan Event
	notify  chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

func (s *subscription) enqueue(ev Event) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	if len(s.queue) >= s.limit {
		for i, q := range s.queue {
			if _, ok := q.(FrameReady); ok {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.dropped.Add(1)
				metrics.IncEventsDropped()
				break
			}
		}
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	ev := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) pump() {
	defer s.wg.Done()
	defer close(s.out)

	for {
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.closeCh:
				return
			}
		}

		select {
		case s.out <- ev:
		case <-s.closeCh:
			return
		}
	}
}

func (s *subscription) close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.closeCh)
	s.wg.Wait()
}
