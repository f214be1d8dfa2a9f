package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fishannotator/reel/internal/player"
)

type fakePlayer struct {
	done chan struct{}
	snap player.Snapshot
}

func (f *fakePlayer) Done() <-chan struct{}     { return f.done }
func (f *fakePlayer) Snapshot() player.Snapshot { return f.snap }

func TestPlayerChecker(t *testing.T) {
	fp := &fakePlayer{
		done: make(chan struct{}),
		snap: player.Snapshot{State: player.Stopped, Path: "dive.mp4", SessionID: "s1", Frame: 42},
	}
	c := NewPlayerChecker(fp)

	assert.Equal(t, "player", c.Name())
	assert.NoError(t, c.Check(context.Background()))

	details := c.Details()
	assert.Equal(t, "stopped", details["state"])
	assert.Equal(t, "dive.mp4", details["path"])
	assert.Equal(t, int64(42), details["frame"])

	close(fp.done)
	assert.Error(t, c.Check(context.Background()))
}

func TestPlayerCheckerIdleOmitsSession(t *testing.T) {
	c := NewPlayerChecker(&fakePlayer{done: make(chan struct{})})

	details := c.Details()
	assert.Equal(t, "idle", details["state"])
	assert.NotContains(t, details, "path")
}
