// Package player is the playback controller. A single worker goroutine owns
// the decoder stream, the frame cache, the seek index and the playback
// state; the methods on Player only enqueue requests and wait for the
// worker to commit the resulting transition. Decoded frames are delivered
// asynchronously as FrameReady events.
package player

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/framecache"
	"github.com/fishannotator/reel/internal/logger"
)

var (
	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("player closed")
	// ErrNoStream is returned by transport operations that need a loaded
	// video while the player is Idle.
	ErrNoStream = errors.New("no video loaded")
)

// Options configures a Player. Opener is required.
type Options struct {
	Config config.PlayerConfig
	Opener decoder.Opener
	// Clock drives playback ticks; the wall clock when nil.
	Clock  clockwork.Clock
	Logger logger.Logger
}

type Player struct {
	cfg    config.PlayerConfig
	opener decoder.Opener
	clock  clockwork.Clock
	logger logger.Logger

	inbox  *inbox
	events *broker

	// mu guards the published snapshot, the last delivered frame and the
	// cache handle, which the worker swaps on load.
	mu        sync.RWMutex
	snap      Snapshot
	lastFrame *decoder.Frame
	cache     *framecache.Cache

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the worker. Call Close to stop it.
func New(opts Options) (*Player, error) {
	if opts.Opener == nil {
		return nil, errors.New("player: opener is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NullLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		cfg:    opts.Config,
		opener: opts.Opener,
		clock:  opts.Clock,
		logger: opts.Logger.WithField("component", "player"),
		inbox:  newInbox(),
		events: newBroker(opts.Config.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		snap:   Snapshot{State: Idle, Rate: 1, Delivered: -1},
	}

	w := newWorker(p)
	go w.run()

	return p, nil
}

// Load opens path and, on success, leaves the player Stopped at frame 0
// with rate 1. Any previously loaded video is released first, so a failed
// load leaves the player Idle. The returned error is a *decoder.DecodeError
// for open failures.
func (p *Player) Load(ctx context.Context, path string) error {
	return p.do(ctx, &request{op: opLoad, path: path})
}

// Play starts forward playback from the current frame.
func (p *Player) Play(ctx context.Context) error {
	return p.do(ctx, &request{op: opPlay})
}

// PlayReverse starts backward playback from the current frame.
func (p *Player) PlayReverse(ctx context.Context) error {
	return p.do(ctx, &request{op: opPlayReverse})
}

// Stop halts playback and cancels any pending decode work. The last
// delivered frame stays current.
func (p *Player) Stop(ctx context.Context) error {
	return p.do(ctx, &request{op: opStop})
}

// Seek moves to frame, clamped to [0, last known frame]. The frame itself
// arrives later as a FrameReady event; a newer seek supersedes it.
func (p *Player) Seek(ctx context.Context, frame int64) error {
	return p.do(ctx, &request{op: opSeek, frame: frame})
}

// StepForward moves one frame ahead. It stops playback first and is a
// no-op at the last frame.
func (p *Player) StepForward(ctx context.Context) error {
	return p.do(ctx, &request{op: opStepForward})
}

// StepBackward moves one frame back. It stops playback first and is a
// no-op at frame 0.
func (p *Player) StepBackward(ctx context.Context) error {
	return p.do(ctx, &request{op: opStepBackward})
}

// SpeedUp doubles the rate multiplier up to the configured maximum.
func (p *Player) SpeedUp(ctx context.Context) error {
	return p.do(ctx, &request{op: opSpeedUp})
}

// SlowDown halves the rate multiplier down to the configured minimum.
func (p *Player) SlowDown(ctx context.Context) error {
	return p.do(ctx, &request{op: opSlowDown})
}

// Snapshot returns the most recently published playback state.
func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// LastFrame returns the frame from the latest FrameReady event.
func (p *Player) LastFrame() (*decoder.Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastFrame, p.lastFrame != nil
}

// CacheStats reports on the cache of the current load.
func (p *Player) CacheStats() (framecache.Stats, bool) {
	p.mu.RLock()
	c := p.cache
	p.mu.RUnlock()
	if c == nil {
		return framecache.Stats{}, false
	}
	return c.Stats(), true
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Slow subscribers lose FrameReady events, never others.
func (p *Player) Subscribe() (<-chan Event, func()) {
	return p.events.subscribe()
}

// Done is closed once the worker has exited.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Close stops the worker, releases the stream and ends all subscriptions.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		for _, r := range p.inbox.close() {
			r.reply <- ErrClosed
		}
		p.cancel()
		<-p.done
		p.events.close()
	})
	return nil
}

func (p *Player) do(ctx context.Context, r *request) error {
	r.ctx = ctx
	r.reply = make(chan error, 1)
	if !p.inbox.push(r) {
		return ErrClosed
	}

	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		// The worker may have replied just before exiting.
		select {
		case err := <-r.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

func (p *Player) setSnapshot(s Snapshot) {
	p.mu.Lock()
	p.snap = s
	p.mu.Unlock()
}

func (p *Player) setLastFrame(f *decoder.Frame) {
	p.mu.Lock()
	p.lastFrame = f
	p.mu.Unlock()
}
