package decoder

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/logger"
)

func TestShowinfoLine(t *testing.T) {
	line := `[Parsed_showinfo_0 @ 0x55d0c8] n:  12 pts:  6144 pts_time:0.48    duration:512 pos: 9038 fmt:yuv420p sar:1/1 s:64x48 i:P iskey:0 type:B checksum:5B3C0E11`
	m := showinfoLine.FindStringSubmatch(line)
	require.NotNil(t, m)
	assert.Equal(t, "0.48", m[1])
	assert.Equal(t, "0", m[2])

	key := `[Parsed_showinfo_0 @ 0x55d0c8] n:   0 pts:      0 pts_time:0       duration:512 pos: 48 fmt:yuv420p sar:1/1 s:64x48 i:P iskey:1 type:I`
	m = showinfoLine.FindStringSubmatch(key)
	require.NotNil(t, m)
	assert.Equal(t, "1", m[2])

	assert.Nil(t, showinfoLine.FindStringSubmatch("Stream #0:0: Video: h264"))
	assert.True(t, decodeErrorLine.MatchString("[h264 @ 0x1] error while decoding MB 3 4"))
}

// makeClip renders a 4 second, 25 fps clip with a keyframe every 10 frames.
func makeClip(t *testing.T, ffmpeg string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command(ffmpeg, "-hide_banner", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25:duration=4",
		"-c:v", "mpeg4", "-g", "10", "-bf", "0", "-pix_fmt", "yuv420p",
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("cannot render test clip: %v: %s", err, out)
	}
	return path
}

func TestFFmpegStream(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns ffmpeg")
	}
	ffmpeg, err := FindFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	clip := makeClip(t, ffmpeg)

	opener, err := NewFFmpegOpener(config.DecoderConfig{FFmpegPath: ffmpeg, ProbeTimeout: 5 * time.Second}, logger.NewNullLogger())
	require.NoError(t, err)

	ctx := context.Background()
	s, err := opener.Open(ctx, clip)
	require.NoError(t, err)
	defer s.Close()

	info := s.Info()
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.InDelta(t, 25, info.NativeRate, 0.01)
	assert.Equal(t, int64(100), info.FrameCount)

	first, err := s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Number)
	assert.True(t, first.Keyframe)
	assert.Len(t, first.Image.Pix, 64*48*4)

	second, err := s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Number)

	require.NoError(t, s.SeekToSyncPoint(ctx, info.FrameTimestamp(45)))
	f, err := s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.True(t, f.Keyframe)
	assert.LessOrEqual(t, f.Number, int64(45))
	assert.Equal(t, int64(0), f.Number%10)

	require.NoError(t, s.ResyncAfter(ctx, info.FrameTimestamp(40)))
	f, err = s.DecodeNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.Number)

	require.NoError(t, s.SeekToSyncPoint(ctx, info.FrameTimestamp(95)))
	var last int64
	for {
		f, err := s.DecodeNext(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		last = f.Number
	}
	assert.Equal(t, int64(99), last)
}

func TestFFmpegOpenMissingFile(t *testing.T) {
	ffmpeg, err := FindFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	opener, err := NewFFmpegOpener(config.DecoderConfig{FFmpegPath: ffmpeg}, logger.NewNullLogger())
	require.NoError(t, err)

	_, err = opener.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Equal(t, KindIOFailure, KindOf(err))
}

func TestMuxRoutesByScheme(t *testing.T) {
	m := &Mux{Test: NewTestSource(), fileErr: ErrFFmpegNotFound}

	s, err := m.Open(context.Background(), TestScheme+"?frames=3")
	require.NoError(t, err)
	assert.Equal(t, "testsrc", s.Info().Codec)

	_, err = m.Open(context.Background(), "/data/reef.mp4")
	assert.Equal(t, KindUnsupportedFormat, KindOf(err))
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}
