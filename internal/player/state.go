package player

import (
	"fmt"
	"math"
	"time"
)

// State is the playback controller state.
type State int

const (
	// Idle: no stream loaded.
	Idle State = iota
	// Stopped: stream loaded, position fixed.
	Stopped
	// Playing: position advances on every tick.
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "stopped":
		*s = Stopped
	case "playing":
		*s = Playing
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Direction of playback and of cache look-ahead.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// sign is +1 for Forward and -1 for Backward.
func (d Direction) sign() int64 {
	if d == Backward {
		return -1
	}
	return 1
}

// Snapshot is a copy of the playback state published by the worker.
type Snapshot struct {
	State     State     `json:"state"`
	Frame     int64     `json:"frame"`
	Direction Direction `json:"direction"`
	// Rate is the multiplier applied to NativeRate.
	Rate       float64 `json:"rate"`
	NativeRate float64 `json:"native_rate"`
	// TotalFrames is the container estimate until the end of the stream
	// has been decoded, then the exact count.
	TotalFrames      int64  `json:"total_frames"`
	LastKnownFrame   int64  `json:"last_known_frame"`
	EndOfStreamKnown bool   `json:"end_of_stream_known"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Path             string `json:"path,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
	SyncPoints       int    `json:"sync_points"`
	// Delivered is the number of the last frame handed out in a FrameReady
	// event, or -1.
	Delivered int64 `json:"delivered"`
}

func (s Snapshot) Loaded() bool {
	return s.State != Idle
}

// SpeedPercent is the rate multiplier as a percentage of native speed.
func (s Snapshot) SpeedPercent() int {
	return int(math.Round(s.Rate * 100))
}

// Timecode formats the current position as HH:MM:SS.
func (s Snapshot) Timecode() string {
	return FormatTimecode(s.Frame, s.NativeRate)
}

// FormatTimecode converts a frame number at the given rate to HH:MM:SS.
func FormatTimecode(frame int64, fps float64) string {
	if fps <= 0 || frame < 0 {
		return "00:00:00"
	}
	total := int64(float64(frame) / fps)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}

// Position is the time offset of the current frame from the stream start.
func (s Snapshot) Position() time.Duration {
	if s.NativeRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frame) / s.NativeRate * float64(time.Second))
}
