package registry

import (
	"time"

	"github.com/fishannotator/reel/internal/player"
)

// Session describes one loaded video on one workstation, as advertised
// to other annotation clients.
type Session struct {
	ID          string  `json:"id"`
	Workstation string  `json:"workstation"`
	Path        string  `json:"path"`
	State       string  `json:"state"`
	Frame       int64   `json:"frame"`
	Timecode    string  `json:"timecode"`
	TotalFrames int64   `json:"total_frames"`
	NativeRate  float64 `json:"native_rate"`
	Rate        float64 `json:"rate"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`

	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// FromSnapshot builds the session record for a loaded player. It returns
// nil while the player is Idle.
func FromSnapshot(snap player.Snapshot, workstation string) *Session {
	if !snap.Loaded() || snap.SessionID == "" {
		return nil
	}
	return &Session{
		ID:          snap.SessionID,
		Workstation: workstation,
		Path:        snap.Path,
		State:       snap.State.String(),
		Frame:       snap.Frame,
		Timecode:    snap.Timecode(),
		TotalFrames: snap.TotalFrames,
		NativeRate:  snap.NativeRate,
		Rate:        snap.Rate,
		Width:       snap.Width,
		Height:      snap.Height,
	}
}

func (s *Session) clone() *Session {
	c := *s
	return &c
}
