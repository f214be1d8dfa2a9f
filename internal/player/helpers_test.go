package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
)

const waitFor = 5 * time.Second

type harness struct {
	player *Player
	src    *decoder.TestSource
	clock  *clockwork.FakeClock
	rec    *recorder
	cfg    config.PlayerConfig
}

func newHarness(t *testing.T, mutate ...func(*config.PlayerConfig)) *harness {
	t.Helper()

	cfg := config.Default().Player
	for _, m := range mutate {
		m(&cfg)
	}
	src := decoder.NewTestSource()
	return newHarnessWithOpener(t, cfg, src, src)
}

func newHarnessWithOpener(t *testing.T, cfg config.PlayerConfig, opener decoder.Opener, src *decoder.TestSource) *harness {
	t.Helper()

	clk := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC))
	p, err := New(Options{Config: cfg, Opener: opener, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return &harness{player: p, src: src, clock: clk, rec: record(p), cfg: cfg}
}

func (h *harness) load(t *testing.T, path string) {
	t.Helper()
	mark := h.rec.mark()
	require.NoError(t, h.player.Load(context.Background(), path))
	h.rec.waitFrame(t, mark, 0)
}

// seek seeks and waits for the frame to be delivered.
func (h *harness) seek(t *testing.T, f int64) FrameReady {
	t.Helper()
	mark := h.rec.mark()
	require.NoError(t, h.player.Seek(context.Background(), f))
	return h.rec.waitFrame(t, mark, f)
}

func (h *harness) step(t *testing.T, forward bool) FrameReady {
	t.Helper()
	want := h.player.Snapshot().Frame
	mark := h.rec.mark()
	if forward {
		require.NoError(t, h.player.StepForward(context.Background()))
		want++
	} else {
		require.NoError(t, h.player.StepBackward(context.Background()))
		want--
	}
	return h.rec.waitFrame(t, mark, want)
}

// settle waits until the published position is n. A substituted frame is
// delivered before the snapshot catches up with it.
func (h *harness) settle(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.player.Snapshot().Frame == n
	}, waitFor, time.Millisecond, "position never settled at %d", n)
}

// tick advances the fake clock once the worker has armed its timer.
func (h *harness) tick(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "worker never armed a playback timer")
	h.clock.Advance(d)
}

// recorder keeps every event a player publishes.
type recorder struct {
	mu     sync.Mutex
	events []Event
	cond   chan struct{}
}

func record(p *Player) *recorder {
	ch, _ := p.Subscribe()
	r := &recorder{cond: make(chan struct{})}
	go func() {
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			close(r.cond)
			r.cond = make(chan struct{})
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) mark() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) since(mark int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events)-mark)
	copy(out, r.events[mark:])
	return out
}

func (r *recorder) frames(mark int) []int64 {
	var out []int64
	for _, ev := range r.since(mark) {
		if fr, ok := ev.(FrameReady); ok {
			out = append(out, fr.Number)
		}
	}
	return out
}

// waitEvent waits for the first event after mark that matches.
func (r *recorder) waitEvent(t *testing.T, mark int, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		r.mu.Lock()
		for _, ev := range r.events[mark:] {
			if match(ev) {
				r.mu.Unlock()
				return ev
			}
		}
		cond := r.cond
		r.mu.Unlock()

		select {
		case <-cond:
		case <-deadline:
			t.Fatalf("timed out waiting for event; got %v", r.since(mark))
			return nil
		}
	}
}

func (r *recorder) waitFrame(t *testing.T, mark int, n int64) FrameReady {
	t.Helper()
	ev := r.waitEvent(t, mark, func(ev Event) bool {
		fr, ok := ev.(FrameReady)
		return ok && fr.Number == n
	})
	return ev.(FrameReady)
}

func (r *recorder) waitType(t *testing.T, mark int, typ EventType) Event {
	t.Helper()
	return r.waitEvent(t, mark, func(ev Event) bool { return ev.Type() == typ })
}
