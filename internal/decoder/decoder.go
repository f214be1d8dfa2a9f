// Package decoder opens compressed video containers and hands out decoded
// frames in a fixed RGBA format. A Stream is forward-only: after a seek or
// resync, DecodeNext returns frames in presentation order starting at the
// chosen sync point.
package decoder

import (
	"context"
	"image"
	"math"
	"time"
)

// Info is the metadata known once a container is open.
type Info struct {
	Path      string `json:"path" yaml:"path"`
	Container string `json:"container" yaml:"container"`
	Codec     string `json:"codec" yaml:"codec"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height" yaml:"height"`
	// NativeRate is the nominal frame rate in frames per second.
	NativeRate float64 `json:"native_rate" yaml:"native_rate"`
	// FrameCount is an estimate; containers are allowed to lie about it.
	FrameCount int64         `json:"frame_count" yaml:"frame_count"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	StartTime  time.Duration `json:"start_time" yaml:"start_time"`
}

// FrameInterval is the nominal time between two frames.
func (i Info) FrameInterval() time.Duration {
	if i.NativeRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / i.NativeRate)
}

// FrameTimestamp is the nominal presentation time of frame n.
func (i Info) FrameTimestamp(n int64) time.Duration {
	if i.NativeRate <= 0 || n <= 0 {
		return i.StartTime
	}
	return i.StartTime + time.Duration(math.Round(float64(n)*float64(time.Second)/i.NativeRate))
}

// FrameAt maps a presentation time to the nearest frame number.
func (i Info) FrameAt(ts time.Duration) int64 {
	if i.NativeRate <= 0 || ts <= i.StartTime {
		return 0
	}
	return int64(math.Round((ts - i.StartTime).Seconds() * i.NativeRate))
}

// Frame is one decoded picture. Image always has a packed stride.
type Frame struct {
	Number    int64
	Timestamp time.Duration
	Keyframe  bool
	Image     *image.RGBA
}

// Stream is an open container positioned somewhere in its video track.
// Implementations are not safe for concurrent use.
type Stream interface {
	Info() Info
	// DecodeNext returns the next frame, io.EOF at the end of the stream,
	// or a *DecodeError. After a TransientDecodeGlitch the stream must be
	// repositioned before decoding again.
	DecodeNext(ctx context.Context) (*Frame, error)
	// SeekToSyncPoint positions the stream at the last sync point at or
	// before ts.
	SeekToSyncPoint(ctx context.Context, ts time.Duration) error
	// ResyncAfter positions the stream at the first sync point strictly
	// after ts.
	ResyncAfter(ctx context.Context, ts time.Duration) error
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Stream, error) {
	return f(ctx, path)
}
