package decoder

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, query string) (*TestSource, Stream) {
	t.Helper()
	src := NewTestSource()
	s, err := src.Open(context.Background(), TestScheme+"?"+query)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return src, s
}

func TestTestSourceInfo(t *testing.T) {
	_, s := openTest(t, "frames=300&fps=30&w=64&h=48")

	info := s.Info()
	assert.Equal(t, int64(300), info.FrameCount)
	assert.Equal(t, 30.0, info.NativeRate)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.Equal(t, 10*time.Second, info.Duration)
}

func TestTestSourceDecodesForwardFromStart(t *testing.T) {
	src, s := openTest(t, "frames=5&gop=2")
	ctx := context.Background()

	for want := int64(0); want < 5; want++ {
		f, err := s.DecodeNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.Number)
		assert.Equal(t, want%2 == 0, f.Keyframe)
		assert.Equal(t, want, StampedFrameNumber(f.Image))
		assert.Equal(t, s.Info().FrameTimestamp(want), f.Timestamp)
		assert.Equal(t, 4*64, f.Image.Stride)
	}

	_, err := s.DecodeNext(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(5), src.Decoded())
}

func TestTestSourceSeekLandsOnSyncPoint(t *testing.T) {
	src, s := openTest(t, "frames=300&gop=30")
	ctx := context.Background()
	info := s.Info()

	tests := []struct {
		target int64
		want   int64
	}{
		{0, 0},
		{29, 0},
		{30, 30},
		{150, 150},
		{199, 180},
		{10000, 270},
	}
	for _, tt := range tests {
		require.NoError(t, s.SeekToSyncPoint(ctx, info.FrameTimestamp(tt.target)))
		f, err := s.DecodeNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Number, "seek to %d", tt.target)
		assert.True(t, f.Keyframe)
	}
	assert.Equal(t, int64(len(tests)), src.Seeks())
}

func TestTestSourceResyncAfter(t *testing.T) {
	_, s := openTest(t, "frames=100&gop=30")
	ctx := context.Background()
	info := s.Info()

	require.NoError(t, s.ResyncAfter(ctx, info.FrameTimestamp(30)))
	f, err := s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), f.Number)

	require.NoError(t, s.ResyncAfter(ctx, info.FrameTimestamp(95)))
	_, err = s.DecodeNext(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestTestSourceCorruptFrames(t *testing.T) {
	_, s := openTest(t, "frames=100&gop=10&corrupt=3,40-55")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.DecodeNext(ctx)
		require.NoError(t, err)
	}

	_, err := s.DecodeNext(ctx)
	require.Error(t, err)
	assert.Equal(t, KindTransientGlitch, KindOf(err))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, int64(3), de.Frame)

	// The stream stays unusable until repositioned.
	_, err = s.DecodeNext(ctx)
	assert.ErrorIs(t, err, ErrNeedsResync)

	require.NoError(t, s.ResyncAfter(ctx, s.Info().FrameTimestamp(3)))
	f, err := s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Number)

	require.NoError(t, s.SeekToSyncPoint(ctx, s.Info().FrameTimestamp(45)))
	_, err = s.DecodeNext(ctx)
	assert.Equal(t, KindTransientGlitch, KindOf(err))

	require.NoError(t, s.ResyncAfter(ctx, s.Info().FrameTimestamp(50)))
	f, err = s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), f.Number)
}

func TestTestSourceAdvertisedCount(t *testing.T) {
	_, s := openTest(t, "frames=10&claim=12")
	assert.Equal(t, int64(12), s.Info().FrameCount)

	require.NoError(t, s.SeekToSyncPoint(context.Background(), s.Info().FrameTimestamp(11)))
	f, err := s.DecodeNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Number, "gop 30 puts the last sync point at 0")
}

func TestTestSourceOpenFailures(t *testing.T) {
	src := NewTestSource()
	ctx := context.Background()

	tests := []struct {
		path string
		kind ErrorKind
	}{
		{TestScheme + "?fail=io", KindIOFailure},
		{TestScheme + "?fail=unsupported", KindUnsupportedFormat},
		{TestScheme + "?frames=0", KindUnsupportedFormat},
		{TestScheme + "?fps=abc", KindUnsupportedFormat},
		{TestScheme + "?corrupt=x", KindUnsupportedFormat},
		{"/data/reef.mp4", KindUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := src.Open(ctx, tt.path)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
	assert.Zero(t, src.Opened())
}

func TestTestSourceDelayHonoursContext(t *testing.T) {
	_, s := openTest(t, "delay=1s")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.DecodeNext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTestSourceClosed(t *testing.T) {
	_, s := openTest(t, "")
	require.NoError(t, s.Close())

	_, err := s.DecodeNext(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, KindIOFailure, KindOf(s.SeekToSyncPoint(context.Background(), 0)))
}
