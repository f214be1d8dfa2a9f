package player

import (
	"context"
	"sync"
)

type opCode int

const (
	opLoad opCode = iota
	opPlay
	opPlayReverse
	opStop
	opSeek
	opStepForward
	opStepBackward
	opSpeedUp
	opSlowDown
)

func (o opCode) String() string {
	switch o {
	case opLoad:
		return "load"
	case opPlay:
		return "play"
	case opPlayReverse:
		return "play_reverse"
	case opStop:
		return "stop"
	case opSeek:
		return "seek"
	case opStepForward:
		return "step_forward"
	case opStepBackward:
		return "step_backward"
	case opSpeedUp:
		return "speed_up"
	case opSlowDown:
		return "slow_down"
	default:
		return "unknown"
	}
}

type request struct {
	op    opCode
	frame int64
	path  string
	ctx   context.Context
	reply chan error
}

// inbox is the FIFO of transport requests. notify holds at most one
// wake-up so producers never block.
type inbox struct {
	mu     sync.Mutex
	queue  []*request
	closed bool
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) push(r *request) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, r)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns every queued request in arrival order.
func (b *inbox) drain() []*request {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

// pending reports whether a request is waiting. The decode loop polls it
// between frames.
func (b *inbox) pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

// close rejects further pushes and returns the requests that will never
// be served.
func (b *inbox) close() []*request {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	q := b.queue
	b.queue = nil
	return q
}
