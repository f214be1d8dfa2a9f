package health

import (
	"context"
	"errors"

	"github.com/fishannotator/reel/internal/player"
)

// PlayerSource is the part of the player the checker observes.
type PlayerSource interface {
	Done() <-chan struct{}
	Snapshot() player.Snapshot
}

// PlayerChecker reports down once the player's worker has exited.
type PlayerChecker struct {
	player PlayerSource
}

func NewPlayerChecker(p PlayerSource) *PlayerChecker {
	return &PlayerChecker{player: p}
}

func (c *PlayerChecker) Name() string {
	return "player"
}

func (c *PlayerChecker) Check(ctx context.Context) error {
	select {
	case <-c.player.Done():
		return errors.New("player worker has stopped")
	default:
		return nil
	}
}

func (c *PlayerChecker) Details() map[string]interface{} {
	snap := c.player.Snapshot()
	details := map[string]interface{}{
		"state": snap.State.String(),
	}
	if snap.Loaded() {
		details["path"] = snap.Path
		details["session_id"] = snap.SessionID
		details["frame"] = snap.Frame
	}
	return details
}
