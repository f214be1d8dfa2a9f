package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/framecache"
	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/metrics"
	"github.com/fishannotator/reel/internal/seekindex"
)

// unknownLastFrame bounds positions when the container does not report a
// frame count; the real bound is learned at end of stream.
const unknownLastFrame = math.MaxInt32

var errSuperseded = errors.New("superseded by a newer request")

// worker owns everything below. None of it is touched from other
// goroutines except through Player.mu.
type worker struct {
	p       *Player
	cfg     config.PlayerConfig
	log     logger.Logger
	sampled *logger.Sampled

	stream    decoder.Stream
	info      decoder.Info
	cache     *framecache.Cache
	index     *seekindex.Table
	sessionID string

	state     State
	frame     int64
	dir       Direction
	rate      float64
	lastKnown int64
	eosKnown  bool
	delivered int64

	// decodePos is the number of the last frame the stream produced, or -1
	// right after a seek.
	decodePos   int64
	lastDecoded *decoder.Frame

	// target is the pending seek target; a newer request overwrites it.
	target int64
	dirty  bool

	lastTick time.Time
	carry    float64
}

func newWorker(p *Player) *worker {
	return &worker{
		p:         p,
		cfg:       p.cfg,
		log:       p.logger,
		sampled:   logger.NewSampled(p.logger, time.Second, 5),
		index:     seekindex.New(),
		state:     Idle,
		rate:      1,
		delivered: -1,
		decodePos: -1,
	}
}

func (w *worker) run() {
	defer close(w.p.done)
	defer w.release()

	ctx := w.p.ctx
	metrics.SetPlaybackRate(w.rate)
	metrics.SetPlayerState(int(w.state))

	for {
		w.handle(w.p.inbox.drain())
		if ctx.Err() != nil {
			return
		}

		if w.dirty {
			w.serve(ctx)
			w.publishSnapshot()
			continue
		}

		if w.state != Playing {
			select {
			case <-w.p.inbox.notify:
			case <-ctx.Done():
				return
			}
			continue
		}

		timer := w.p.clock.NewTimer(w.tickInterval())
		select {
		case <-timer.Chan():
			w.tick()
			w.publishSnapshot()
		case <-w.p.inbox.notify:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// handle applies requests in arrival order. Each caller is released only
// after its transition is visible in the snapshot.
func (w *worker) handle(reqs []*request) {
	for _, r := range reqs {
		var err error
		if r.ctx != nil && r.ctx.Err() != nil {
			err = r.ctx.Err()
		} else {
			w.log.WithField("op", r.op.String()).Debug("Transport request")
			err = w.apply(r)
		}
		w.publishSnapshot()
		r.reply <- err
	}
}

func (w *worker) apply(r *request) error {
	switch r.op {
	case opLoad:
		return w.load(r.ctx, r.path)
	case opSpeedUp:
		w.setRate(w.rate * 2)
		return nil
	case opSlowDown:
		w.setRate(w.rate / 2)
		return nil
	}

	if w.state == Idle {
		if r.op == opStop {
			return nil
		}
		return ErrNoStream
	}

	switch r.op {
	case opPlay:
		w.play(Forward)
	case opPlayReverse:
		w.play(Backward)
	case opStop:
		w.stop()
	case opSeek:
		w.moveTo(w.clamp(r.frame))
		if w.state == Playing {
			w.lastTick = w.p.clock.Now()
			w.carry = 0
		}
	case opStepForward, opStepBackward:
		dir := Forward
		if r.op == opStepBackward {
			dir = Backward
		}
		if w.state == Playing {
			w.stop()
		}
		w.dir = dir
		if next := w.clamp(w.frame + dir.sign()); next != w.frame {
			w.moveTo(next)
		}
	default:
		return fmt.Errorf("unknown request %d", r.op)
	}
	return nil
}

func (w *worker) play(dir Direction) {
	if w.state == Playing {
		if w.dir != dir {
			w.dir = dir
			w.p.events.publish(PlayStateChanged{Stopped: false, Direction: dir})
		}
		return
	}
	w.dir = dir
	w.lastTick = w.p.clock.Now()
	w.carry = 0
	w.setState(Playing)
}

// stop cancels pending decode work. If a frame was already delivered the
// position falls back to it so state and display agree.
func (w *worker) stop() {
	if w.dirty && w.delivered >= 0 {
		w.frame = w.delivered
		w.dirty = false
	}
	w.setState(Stopped)
}

func (w *worker) moveTo(n int64) {
	w.frame = n
	w.target = n
	w.dirty = true
}

func (w *worker) clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	if n > w.lastKnown {
		return w.lastKnown
	}
	return n
}

func (w *worker) setRate(r float64) {
	r = math.Max(w.cfg.MinRate, math.Min(w.cfg.MaxRate, r))
	if r == w.rate {
		return
	}
	w.rate = r
	metrics.SetPlaybackRate(r)
	w.p.events.publish(SpeedChanged{Rate: r, Percent: int(math.Round(r * 100))})
}

func (w *worker) setState(s State) {
	if w.state == s {
		return
	}
	prev := w.state
	w.state = s
	metrics.SetPlayerState(int(s))
	if s == Playing || prev == Playing {
		w.p.events.publish(PlayStateChanged{Stopped: s != Playing, Direction: w.dir})
	}
}

func (w *worker) tickInterval() time.Duration {
	d := time.Duration(float64(w.info.FrameInterval()) / w.rate)
	if d < w.cfg.MinTick {
		d = w.cfg.MinTick
	}
	return d
}

// tick advances the position by the frames due since the previous tick.
// The fractional remainder carries over so that long runs keep the exact
// rate.
func (w *worker) tick() {
	now := w.p.clock.Now()
	elapsed := now.Sub(w.lastTick)
	w.lastTick = now

	exact := w.carry + elapsed.Seconds()*w.info.NativeRate*w.rate
	steps := int64(math.Round(exact))
	w.carry = exact - float64(steps)
	if steps <= 0 {
		return
	}

	w.moveTo(w.clamp(w.frame + w.dir.sign()*steps))
}

func (w *worker) load(reqCtx context.Context, path string) error {
	ctx, cancel := context.WithCancel(w.p.ctx)
	defer cancel()
	if reqCtx != nil {
		stop := context.AfterFunc(reqCtx, cancel)
		defer stop()
	}

	w.p.events.publish(LoadStarted{Path: path, Max: 100})
	w.p.events.publish(LoadProgress{Percent: 0})
	w.unload()

	stream, err := w.p.opener.Open(ctx, path)
	if err == nil && stream.Info().NativeRate <= 0 {
		_ = stream.Close()
		err = &decoder.DecodeError{Kind: decoder.KindUnsupportedFormat, Path: path, Frame: -1, Err: errors.New("unknown frame rate")}
	}
	if err != nil {
		metrics.IncLoad(false)
		if decoder.KindOf(err) != decoder.KindUnknown || ctx.Err() == nil {
			w.log.WithError(err).WithField("path", path).Warn("Load failed")
			w.p.events.publish(newErrorEvent(err))
		}
		return err
	}

	info := stream.Info()
	sessionID := uuid.NewString()
	log := w.p.logger.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"path":       path,
	})
	cache := framecache.New(w.cfg.CacheCapacity, log)

	w.p.mu.Lock()
	w.stream = stream
	w.cache = cache
	w.p.cache = cache
	w.p.mu.Unlock()

	w.info = info
	w.sessionID = sessionID
	w.log = log
	w.sampled = logger.NewSampled(log, time.Second, 5)
	w.lastKnown = unknownLastFrame
	if info.FrameCount > 0 {
		w.lastKnown = info.FrameCount - 1
	}
	w.setState(Stopped)
	w.setRate(1)

	w.p.events.publish(LoadProgress{Percent: 50})
	w.p.events.publish(ResolutionKnown{Width: info.Width, Height: info.Height})
	w.p.events.publish(NativeRateKnown{FPS: info.NativeRate})
	if info.FrameCount > 0 {
		w.p.events.publish(DurationKnown{TotalFrames: info.FrameCount})
	}
	w.p.events.publish(LoadProgress{Percent: 100})
	w.p.events.publish(LoadComplete{Path: path, NativeRate: info.NativeRate, SessionID: sessionID})
	w.p.events.publish(PlayStateChanged{Stopped: true, Direction: Forward})

	metrics.IncLoad(true)
	log.WithFields(map[string]interface{}{
		"codec":  info.Codec,
		"width":  info.Width,
		"height": info.Height,
		"fps":    info.NativeRate,
		"frames": info.FrameCount,
	}).Info("Video loaded")

	w.moveTo(0)
	return nil
}

// unload releases the stream and every piece of state tied to it, leaving
// the player Idle.
func (w *worker) unload() {
	w.closeStream()

	w.p.mu.Lock()
	w.cache = nil
	w.p.cache = nil
	w.p.lastFrame = nil
	w.p.mu.Unlock()

	w.index.Reset()
	w.info = decoder.Info{}
	w.sessionID = ""
	w.log = w.p.logger
	w.frame = 0
	w.delivered = -1
	w.decodePos = -1
	w.lastDecoded = nil
	w.dirty = false
	w.lastKnown = 0
	w.eosKnown = false
	w.setState(Idle)
	w.dir = Forward
	metrics.SetCacheEntries(0)
}

func (w *worker) closeStream() {
	w.p.mu.Lock()
	stream := w.stream
	w.stream = nil
	w.p.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		w.log.WithError(err).Warn("Failed to close stream")
	}
}

func (w *worker) release() {
	w.closeStream()
}

// serve delivers the frame at w.target, from the cache or by decoding.
func (w *worker) serve(ctx context.Context) {
	f := w.target
	w.cache.SetPosition(f, w.dir == Forward)

	if fr, ok := w.cache.Get(f); ok {
		metrics.IncSeek("cached")
		w.deliver(fr)
		return
	}

	fr, err := w.decodeTo(ctx, f)
	switch {
	case err == nil:
		w.deliver(fr)
	case errors.Is(err, errSuperseded):
		// Left dirty; the next pass serves whatever the target is by then.
	case ctx.Err() != nil:
		w.dirty = false
	default:
		w.fail(err)
	}
}

func (w *worker) deliver(fr *decoder.Frame) {
	w.dirty = false
	w.frame = fr.Number
	w.delivered = fr.Number
	w.p.setLastFrame(fr)

	metrics.IncFramesEmitted()
	w.p.events.publish(FrameReady{
		Number:    fr.Number,
		Timecode:  FormatTimecode(fr.Number, w.info.NativeRate),
		Keyframe:  fr.Keyframe,
		Frame:     fr,
		SessionID: w.sessionID,
	})

	if w.state != Playing {
		return
	}
	if (w.dir == Forward && fr.Number >= w.lastKnown) || (w.dir == Backward && fr.Number <= 0) {
		w.setState(Stopped)
	}
}

// decodeTo produces frame f, decoding forward from the current stream
// position when f is close ahead of it and from a sync point otherwise.
// Every decoded frame goes into the cache. It returns errSuperseded as soon
// as a transport request is waiting.
func (w *worker) decodeTo(ctx context.Context, f int64) (*decoder.Frame, error) {
	proximity := w.cfg.ProximityWindow
	fresh := false

	if w.decodePos >= 0 && w.decodePos < f && f <= w.decodePos+proximity {
		metrics.IncSeek("near")
	} else {
		kind := "sync"
		if !w.cache.Near(f, proximity) {
			kind = "far"
			w.cache.InvalidateAll()
			if w.cfg.ResetIndexOnFarSeek {
				w.index.Reset()
			}
		}
		metrics.IncSeek(kind)
		if err := w.seekFor(ctx, f); err != nil {
			return nil, err
		}
		fresh = true
	}

	var (
		decoded  int
		failures int
		rewound  bool
	)
	defer func() { metrics.ObserveDecodeForward(decoded) }()

	for {
		if w.p.inbox.pending() {
			return nil, errSuperseded
		}

		fr, err := w.stream.DecodeNext(ctx)
		if errors.Is(err, io.EOF) {
			if w.lastDecoded != nil {
				return w.endOfStream(), nil
			}
			if rewound {
				return nil, &decoder.DecodeError{
					Kind:  decoder.KindStreamCorrupt,
					Path:  w.info.Path,
					Frame: f,
					Err:   errors.New("no decodable frames before end of stream"),
				}
			}
			// The estimate landed past the real end; go back to the last
			// known sync point.
			rewound = true
			if err := w.seekTo(ctx, w.lastSyncPoint()); err != nil {
				return nil, err
			}
			fresh = true
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if decoder.KindOf(err) != decoder.KindTransientGlitch {
				return nil, err
			}

			failures++
			failed := w.decodePos + 1
			var de *decoder.DecodeError
			if errors.As(err, &de) && de.Frame >= 0 {
				failed = de.Frame
			}
			metrics.IncDecodeError(decoder.KindTransientGlitch.String())
			w.sampled.Warn("decode_glitch", "Decode glitch, resuming at next sync point", logger.Fields{
				"frame":   failed,
				"attempt": failures,
				"error":   err.Error(),
			})

			if failures >= w.cfg.RetryBudget {
				return nil, &decoder.DecodeError{
					Kind:  decoder.KindStreamCorrupt,
					Path:  w.info.Path,
					Frame: failed,
					Err:   fmt.Errorf("%d consecutive decode failures: %w", failures, err),
				}
			}
			// Going backward, the nearest good frame below the damage stands
			// in for a lost target, so stepping keeps moving toward frame 0.
			if w.dir == Backward && failed <= f {
				if prev := w.lastDecoded; prev != nil && prev.Number < failed {
					w.dropPosition()
					return prev, nil
				}
				if failed > 0 {
					f = failed - 1
					if fr, ok := w.cache.Get(f); ok {
						w.dropPosition()
						return fr, nil
					}
					if err := w.seekFor(ctx, f); err != nil {
						return nil, err
					}
					fresh = true
					continue
				}
			}

			if err := w.stream.ResyncAfter(ctx, w.info.FrameTimestamp(failed)); err != nil {
				return nil, err
			}
			if failed > w.decodePos {
				w.decodePos = failed
			}
			fresh = false
			continue
		}

		failures = 0
		decoded++
		metrics.IncFramesDecoded()
		// Streams may move their start time once the first frame is seen;
		// every later timestamp the worker computes must agree with it.
		if start := w.stream.Info().StartTime; start != w.info.StartTime {
			w.info.StartTime = start
		}
		if fr.Keyframe {
			w.index.Record(fr.Number, fr.Timestamp)
		}

		if fresh {
			fresh = false
			if fr.Number > f && !rewound {
				rewound = true
				w.sampled.Debug("overshoot", "Seek landed past target, rewinding", logger.Fields{
					"target": f,
					"landed": fr.Number,
				})
				if err := w.seekTo(ctx, w.rewindPoint(f)); err != nil {
					return nil, err
				}
				fresh = true
				continue
			}
		}

		if !w.eosKnown && fr.Number > w.lastKnown {
			w.lastKnown = fr.Number
		}
		w.cache.Insert(fr)
		w.decodePos = fr.Number
		w.lastDecoded = fr

		// Going forward, a target lost to corruption is replaced by the first
		// good frame after it.
		if fr.Number >= f {
			return fr, nil
		}
	}
}

// seekFor positions the stream at a sync point from which decoding forward
// reaches f: the index entry when it is close enough, else the decoder's
// own sync point for f's timestamp.
func (w *worker) seekFor(ctx context.Context, f int64) error {
	ts := w.info.FrameTimestamp(f)
	if sp, ok := w.index.NearestAtOrBefore(f); ok && f-sp.Frame <= w.cfg.MaxDecodeForward {
		ts = sp.Timestamp
	}
	return w.seekTo(ctx, ts)
}

// rewindPoint is the index entry at or before f, or the stream start,
// which is always treated as a sync point.
func (w *worker) rewindPoint(f int64) time.Duration {
	if sp, ok := w.index.NearestAtOrBefore(f); ok {
		return sp.Timestamp
	}
	return w.info.FrameTimestamp(0)
}

func (w *worker) lastSyncPoint() time.Duration {
	if sp, ok := w.index.Last(); ok {
		return sp.Timestamp
	}
	return w.info.FrameTimestamp(0)
}

func (w *worker) seekTo(ctx context.Context, ts time.Duration) error {
	if err := w.stream.SeekToSyncPoint(ctx, ts); err != nil {
		return err
	}
	w.decodePos = -1
	w.lastDecoded = nil
	return nil
}

// dropPosition forgets where the stream is, so the next decode starts with
// a seek. Used when a glitch left the stream needing a reposition.
func (w *worker) dropPosition() {
	w.decodePos = -1
	w.lastDecoded = nil
}

// endOfStream fixes the last frame to the last one decoded and returns it.
func (w *worker) endOfStream() *decoder.Frame {
	last := w.lastDecoded
	changed := !w.eosKnown || w.lastKnown != last.Number
	w.eosKnown = true
	w.lastKnown = last.Number

	if changed {
		w.log.WithField("frames", last.Number+1).Info("End of stream reached")
		w.p.events.publish(DurationKnown{TotalFrames: last.Number + 1, Exact: true})
	}
	return last
}

// fail reports a fatal error and unloads.
func (w *worker) fail(err error) {
	kind := decoder.KindOf(err)
	metrics.IncDecodeError(kind.String())
	w.log.WithError(err).WithField("kind", kind.String()).Error("Stream failed, unloading")
	w.p.events.publish(newErrorEvent(err))
	w.unload()
}

func (w *worker) publishSnapshot() {
	s := Snapshot{
		State:            w.state,
		Frame:            w.frame,
		Direction:        w.dir,
		Rate:             w.rate,
		NativeRate:       w.info.NativeRate,
		TotalFrames:      w.info.FrameCount,
		LastKnownFrame:   w.lastKnown,
		EndOfStreamKnown: w.eosKnown,
		Width:            w.info.Width,
		Height:           w.info.Height,
		Path:             w.info.Path,
		SessionID:        w.sessionID,
		SyncPoints:       w.index.Len(),
		Delivered:        w.delivered,
	}
	if w.eosKnown {
		s.TotalFrames = w.lastKnown + 1
	}
	w.p.setSnapshot(s)
}
