package decoder

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInfoFrameTiming(t *testing.T) {
	info := Info{NativeRate: 30, StartTime: 100 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, info.FrameTimestamp(0))
	assert.Equal(t, 1100*time.Millisecond, info.FrameTimestamp(30))
	assert.Equal(t, int64(0), info.FrameAt(0))
	assert.Equal(t, int64(30), info.FrameAt(1100*time.Millisecond))

	for _, n := range []int64{0, 1, 29, 299, 12345} {
		assert.Equal(t, n, info.FrameAt(info.FrameTimestamp(n)), "frame %d", n)
	}

	ntsc := Info{NativeRate: 30000.0 / 1001}
	for n := int64(0); n < 1000; n += 7 {
		assert.Equal(t, n, ntsc.FrameAt(ntsc.FrameTimestamp(n)), "frame %d", n)
	}
	assert.Equal(t, 33366666*time.Nanosecond, ntsc.FrameInterval().Truncate(time.Nanosecond))
}

func TestInfoWithoutRate(t *testing.T) {
	var info Info
	assert.Equal(t, int64(0), info.FrameAt(time.Hour))
	assert.Equal(t, time.Duration(0), info.FrameTimestamp(10))
	assert.Equal(t, time.Duration(0), info.FrameInterval())
}

func TestDecodeError(t *testing.T) {
	cause := errors.New("permission denied")
	err := newError(KindIOFailure, "/data/reef.mp4", -1, cause)

	assert.Equal(t, "io_failure /data/reef.mp4: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("load: %w", newError(KindTransientGlitch, "", 45, nil))
	assert.Equal(t, KindTransientGlitch, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "at frame 45")

	var de *DecodeError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, int64(45), de.Frame)

	assert.Equal(t, KindUnknown, KindOf(io.EOF))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		name  string
		fatal bool
	}{
		{KindIOFailure, "io_failure", true},
		{KindUnsupportedFormat, "unsupported_format", true},
		{KindStreamCorrupt, "stream_corrupt", true},
		{KindTransientGlitch, "transient_glitch", false},
		{KindUnknown, "unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}
