package decoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
)

// TestScheme prefixes synthetic sources, e.g.
//
//	testsrc:?frames=300&fps=30&gop=30&w=64&h=48&corrupt=45,120-125
//
// Parameters:
//
//	frames   frames actually present (default 300)
//	claim    frame count advertised in Info (default frames)
//	fps      native rate (default 30)
//	gop      keyframe interval (default 30)
//	w, h     picture size (default 64x48)
//	corrupt  frames or ranges that fail with a transient glitch
//	delay    time spent decoding each frame
//	fail     "io" or "unsupported" to make Open fail
const TestScheme = "testsrc:"

// TestSource is an Opener for synthetic GOP-structured streams. Every frame
// carries its number in the colour of pixel (0,0); see StampedFrameNumber.
type TestSource struct {
	decoded atomic.Int64
	seeks   atomic.Int64
	opened  atomic.Int64
}

func NewTestSource() *TestSource {
	return &TestSource{}
}

// Decoded is the number of frames decoded across all streams opened so far.
func (t *TestSource) Decoded() int64 { return t.decoded.Load() }

// Seeks counts SeekToSyncPoint and ResyncAfter calls.
func (t *TestSource) Seeks() int64 { return t.seeks.Load() }

func (t *TestSource) Opened() int64 { return t.opened.Load() }

type testParams struct {
	frames  int64
	claim   int64
	fps     float64
	gop     int64
	w, h    int
	corrupt []frameRange
	delay   time.Duration
}

type frameRange struct{ from, to int64 }

func (t *TestSource) Open(ctx context.Context, path string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok := strings.CutPrefix(path, TestScheme)
	if !ok {
		return nil, newError(KindUnsupportedFormat, path, -1, errors.New("not a testsrc path"))
	}
	_, query, _ := strings.Cut(raw, "?")
	q, err := url.ParseQuery(query)
	if err != nil {
		return nil, newError(KindUnsupportedFormat, path, -1, err)
	}

	switch q.Get("fail") {
	case "":
	case "io":
		return nil, newError(KindIOFailure, path, -1, errors.New("simulated read failure"))
	case "unsupported":
		return nil, newError(KindUnsupportedFormat, path, -1, errNoVideoTrack)
	default:
		return nil, newError(KindUnsupportedFormat, path, -1, fmt.Errorf("unknown fail mode %q", q.Get("fail")))
	}

	p, err := parseTestParams(q)
	if err != nil {
		return nil, newError(KindUnsupportedFormat, path, -1, err)
	}

	t.opened.Add(1)
	return &testStream{
		src:    t,
		params: p,
		info: Info{
			Path:       path,
			Container:  "testsrc",
			Codec:      "testsrc",
			Width:      p.w,
			Height:     p.h,
			NativeRate: p.fps,
			FrameCount: p.claim,
			Duration:   time.Duration(float64(p.claim) / p.fps * float64(time.Second)),
		},
	}, nil
}

func parseTestParams(q url.Values) (testParams, error) {
	p := testParams{frames: 300, fps: 30, gop: 30, w: 64, h: 48}

	ints := []struct {
		key string
		dst *int64
	}{{"frames", &p.frames}, {"claim", &p.claim}, {"gop", &p.gop}}
	for _, f := range ints {
		if v := q.Get(f.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return p, fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = n
		}
	}
	if v := q.Get("fps"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("fps: %w", err)
		}
		p.fps = f
	}
	for key, dst := range map[string]*int{"w": &p.w, "h": &p.h} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := q.Get("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return p, fmt.Errorf("delay: %w", err)
		}
		p.delay = d
	}
	if v := q.Get("corrupt"); v != "" {
		for _, part := range strings.Split(v, ",") {
			from, to, isRange := strings.Cut(part, "-")
			a, err := strconv.ParseInt(from, 10, 64)
			if err != nil {
				return p, fmt.Errorf("corrupt: %w", err)
			}
			b := a
			if isRange {
				if b, err = strconv.ParseInt(to, 10, 64); err != nil {
					return p, fmt.Errorf("corrupt: %w", err)
				}
			}
			p.corrupt = append(p.corrupt, frameRange{a, b})
		}
	}

	if p.claim == 0 {
		p.claim = p.frames
	}
	switch {
	case p.frames < 1:
		return p, errors.New("frames must be positive")
	case p.fps <= 0:
		return p, errors.New("fps must be positive")
	case p.gop < 1:
		return p, errors.New("gop must be positive")
	case p.w < 4 || p.h < 4:
		return p, errors.New("picture must be at least 4x4")
	}
	return p, nil
}

type testStream struct {
	src    *TestSource
	params testParams
	info   Info

	next   int64
	broken bool
	closed bool
}

func (s *testStream) Info() Info { return s.info }

func (s *testStream) SeekToSyncPoint(ctx context.Context, ts time.Duration) error {
	if s.closed {
		return newError(KindIOFailure, s.info.Path, -1, ErrClosed)
	}
	s.src.seeks.Add(1)
	n := s.info.FrameAt(ts)
	if n >= s.params.frames {
		n = s.params.frames - 1
	}
	s.next = n - n%s.params.gop
	s.broken = false
	return ctx.Err()
}

func (s *testStream) ResyncAfter(ctx context.Context, ts time.Duration) error {
	if s.closed {
		return newError(KindIOFailure, s.info.Path, -1, ErrClosed)
	}
	s.src.seeks.Add(1)
	n := s.info.FrameAt(ts)
	s.next = (n/s.params.gop + 1) * s.params.gop
	s.broken = false
	return ctx.Err()
}

func (s *testStream) DecodeNext(ctx context.Context) (*Frame, error) {
	if s.closed {
		return nil, newError(KindIOFailure, s.info.Path, -1, ErrClosed)
	}
	if s.broken {
		return nil, newError(KindTransientGlitch, s.info.Path, s.next, ErrNeedsResync)
	}
	if s.next >= s.params.frames {
		return nil, io.EOF
	}
	if s.params.delay > 0 {
		select {
		case <-time.After(s.params.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n := s.next
	if s.isCorrupt(n) {
		s.broken = true
		return nil, newError(KindTransientGlitch, s.info.Path, n, errors.New("simulated bad packet"))
	}
	s.next++
	s.src.decoded.Add(1)

	return &Frame{
		Number:    n,
		Timestamp: s.info.FrameTimestamp(n),
		Keyframe:  n%s.params.gop == 0,
		Image:     renderTestFrame(n, s.params),
	}, nil
}

func (s *testStream) isCorrupt(n int64) bool {
	for _, r := range s.params.corrupt {
		if n >= r.from && n <= r.to {
			return true
		}
	}
	return false
}

func (s *testStream) Close() error {
	s.closed = true
	return nil
}

func renderTestFrame(n int64, p testParams) *image.RGBA {
	dc := gg.NewContext(p.w, p.h)
	dc.SetRGB255(int(40+n*37%180), int(40+n*53%180), int(40+n*71%180))
	dc.Clear()

	// Sweeping bar makes motion visible when played back.
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(float64(n%int64(p.w)), 0, 2, float64(p.h))
	dc.Fill()

	if n%p.gop == 0 {
		dc.SetRGB(1, 0, 0)
		dc.DrawRectangle(0, float64(p.h-3), float64(p.w), 3)
		dc.Fill()
	}

	if p.w >= 40 && p.h >= 16 {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(strconv.FormatInt(n, 10), float64(p.w)/2, float64(p.h)/2, 0.5, 0.5)
	}

	img := ToRGBA(dc.Image())
	img.SetRGBA(0, 0, color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff})
	return img
}

// StampedFrameNumber recovers the frame number stamped by the testsrc renderer.
func StampedFrameNumber(img *image.RGBA) int64 {
	c := img.RGBAAt(0, 0)
	return int64(c.R)<<16 | int64(c.G)<<8 | int64(c.B)
}
