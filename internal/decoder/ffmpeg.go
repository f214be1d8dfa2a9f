package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/logger"
)

// FFmpegOpener opens files through an external ffmpeg process. Metadata comes
// from mp4ff for MP4 family files and from ffprobe otherwise.
type FFmpegOpener struct {
	ffmpegPath   string
	ffprobePath  string
	probeTimeout time.Duration
	logger       logger.Logger
}

func NewFFmpegOpener(cfg config.DecoderConfig, log logger.Logger) (*FFmpegOpener, error) {
	ffmpegPath, err := FindFFmpeg(cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}
	// ffprobe is optional when every file is an MP4.
	ffprobePath, _ := FindFFprobe(cfg.FFprobePath, ffmpegPath)

	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FFmpegOpener{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		probeTimeout: timeout,
		logger:       log.WithField("component", "ffmpeg"),
	}, nil
}

func (o *FFmpegOpener) Open(ctx context.Context, path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindIOFailure, path, -1, err)
	}
	f.Close()

	info, err := o.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(map[string]interface{}{
		"path":        path,
		"codec":       info.Codec,
		"container":   info.Container,
		"width":       info.Width,
		"height":      info.Height,
		"native_rate": info.NativeRate,
		"frames":      info.FrameCount,
	}).Info("Opened video")

	return &ffmpegStream{
		ffmpeg:     o.ffmpegPath,
		info:       info,
		frameSize:  info.Width * info.Height * 4,
		log:        o.logger.WithField("path", path),
		sampled:    logger.NewSampled(o.logger.WithField("path", path), time.Second, 5),
		lastNumber: -1,
	}, nil
}

func (o *FFmpegOpener) probe(ctx context.Context, path string) (Info, error) {
	if IsMP4Path(path) {
		info, err := ProbeMP4(path)
		if err == nil && info.NativeRate > 0 && info.Width > 0 && info.Height > 0 && info.Codec != "unknown" {
			return info, nil
		}
		if KindOf(err) == KindIOFailure {
			return Info{}, err
		}
		if o.ffprobePath == "" {
			if err == nil {
				err = newError(KindUnsupportedFormat, path, -1, errors.New("incomplete mp4 metadata and no ffprobe available"))
			}
			return Info{}, err
		}
		o.logger.WithField("path", path).Debug("mp4 metadata incomplete, falling back to ffprobe")
	}

	if o.ffprobePath == "" {
		return Info{}, newError(KindUnsupportedFormat, path, -1, ErrFFprobeNotFound)
	}
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()
	return Probe(probeCtx, o.ffprobePath, path)
}

// showinfo prints one line per frame on stderr.
var showinfoLine = regexp.MustCompile(`pts_time:\s*(-?[0-9.]+).*?iskey:\s*(\d)`)

var decodeErrorLine = regexp.MustCompile(`(?i)(error while decoding|invalid data|corrupt|concealing)`)

type frameMeta struct {
	pts time.Duration
	key bool
}

type ffmpegStream struct {
	ffmpeg    string
	info      Info
	frameSize int
	log       logger.Logger
	sampled   *logger.Sampled

	proc *ffmpegProcess
	// origin is the timestamp the running process was asked to start at.
	origin time.Duration
	// skipUntil drops frames until a keyframe strictly after it; <0 disables.
	skipUntil  time.Duration
	skipping   bool
	broken     bool
	eof        bool
	closed     bool
	calibrated bool
	produced   int
	glitches   int
	lastNumber int64
	lastPTS    time.Duration
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	reader *bufio.Reader
	meta   chan frameMeta
	done   chan struct{}

	mu         sync.Mutex
	tail       []string
	glitchSeen int
}

func (s *ffmpegStream) Info() Info { return s.info }

func (s *ffmpegStream) SeekToSyncPoint(ctx context.Context, ts time.Duration) error {
	return s.restart(ctx, ts, false)
}

func (s *ffmpegStream) ResyncAfter(ctx context.Context, ts time.Duration) error {
	return s.restart(ctx, ts, true)
}

func (s *ffmpegStream) restart(ctx context.Context, ts time.Duration, after bool) error {
	if s.closed {
		return newError(KindIOFailure, s.info.Path, -1, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.stop()

	if ts < s.info.StartTime {
		ts = s.info.StartTime
	}
	s.skipping = after
	s.skipUntil = -1
	if after {
		s.skipUntil = ts
	}
	s.broken = false
	s.eof = false
	s.produced = 0
	s.glitches = 0
	s.lastNumber = -1
	return s.start(ts)
}

func (s *ffmpegStream) start(ts time.Duration) error {
	args := []string{"-hide_banner", "-nostdin", "-v", "info"}
	if offset := ts - s.info.StartTime; offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 6, 64), "-noaccurate_seek")
	}
	args = append(args,
		"-copyts",
		"-noautorotate",
		"-i", s.info.Path,
		"-map", "0:v:0",
		"-an", "-sn", "-dn",
		"-vf", "showinfo",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, s.ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return newError(KindIOFailure, s.info.Path, -1, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return newError(KindIOFailure, s.info.Path, -1, fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return newError(KindIOFailure, s.info.Path, -1, fmt.Errorf("start ffmpeg: %w", err))
	}

	p := &ffmpegProcess{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, s.frameSize),
		meta:   make(chan frameMeta, 256),
		done:   make(chan struct{}),
	}
	go p.readStderr(stderr)

	s.proc = p
	s.origin = ts
	s.log.WithField("ts", ts).Debug("Started ffmpeg decode")
	return nil
}

func (p *ffmpegProcess) readStderr(r io.Reader) {
	defer close(p.done)
	defer close(p.meta)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := showinfoLine.FindStringSubmatch(line); m != nil {
			secs, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			p.meta <- frameMeta{
				pts: time.Duration(secs * float64(time.Second)),
				key: m[2] == "1",
			}
			continue
		}

		p.mu.Lock()
		if decodeErrorLine.MatchString(line) {
			p.glitchSeen++
		}
		p.tail = append(p.tail, line)
		if len(p.tail) > 8 {
			p.tail = p.tail[1:]
		}
		p.mu.Unlock()
	}
}

func (p *ffmpegProcess) glitches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.glitchSeen
}

func (p *ffmpegProcess) stderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}

func (s *ffmpegStream) DecodeNext(ctx context.Context) (*Frame, error) {
	if s.closed {
		return nil, newError(KindIOFailure, s.info.Path, -1, ErrClosed)
	}
	if s.broken {
		return nil, newError(KindTransientGlitch, s.info.Path, s.lastNumber+1, ErrNeedsResync)
	}
	if s.eof {
		return nil, io.EOF
	}
	if s.proc == nil {
		if err := s.start(s.info.StartTime); err != nil {
			return nil, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := s.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		if s.skipping {
			if !frame.Keyframe || frame.Timestamp <= s.skipUntil {
				continue
			}
			s.skipping = false
		}
		return frame, nil
	}
}

func (s *ffmpegStream) readFrame(ctx context.Context) (*Frame, error) {
	p := s.proc
	buf := make([]byte, s.frameSize)
	_, err := io.ReadFull(p.reader, buf)
	switch {
	case err == io.EOF:
		return nil, s.finish()
	case err != nil:
		s.broken = true
		return nil, newError(KindTransientGlitch, s.info.Path, s.lastNumber+1,
			fmt.Errorf("short frame read: %w", err))
	}

	var meta frameMeta
	select {
	case m, ok := <-p.meta:
		if ok {
			meta = m
		} else {
			meta = frameMeta{pts: s.lastPTS + s.info.FrameInterval()}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s.produced == 0 && s.origin <= s.info.StartTime && !s.skipping && !s.calibrated {
		// Containers with edit lists or B-frame delay start slightly after the
		// probed start time. The first frame of the stream defines frame 0.
		if meta.pts != s.info.StartTime {
			s.log.WithFields(map[string]interface{}{
				"probed": s.info.StartTime,
				"actual": meta.pts,
			}).Debug("Calibrated stream start time")
			s.info.StartTime = meta.pts
		}
		s.calibrated = true
	}

	n := s.info.FrameAt(meta.pts)
	if n <= s.lastNumber {
		n = s.lastNumber + 1
	}
	s.lastNumber = n
	s.lastPTS = meta.pts
	s.produced++

	if g := p.glitches(); g > s.glitches {
		// ffmpeg conceals damaged macroblocks and still emits the frame.
		s.sampled.Warn("conceal", "Decoder reported damaged data", logger.Fields{"frame": n, "errors": g - s.glitches})
		s.glitches = g
	}
	s.sampled.Debug("decode", "Decoded frame", logger.Fields{"frame": n, "keyframe": meta.key})

	return &Frame{
		Number:    n,
		Timestamp: meta.pts,
		Keyframe:  meta.key,
		Image:     rgbaFromBytes(buf, s.info.Width, s.info.Height),
	}, nil
}

// finish reaps the process after stdout closed at a frame boundary.
func (s *ffmpegStream) finish() error {
	p := s.proc
	<-p.done
	err := p.cmd.Wait()
	p.cancel()
	if err == nil || s.produced > 0 {
		if err != nil {
			s.log.WithError(err).Warn("ffmpeg exited with error after producing frames, treating as end of stream")
		}
		s.eof = true
		return io.EOF
	}
	s.broken = true
	return newError(KindTransientGlitch, s.info.Path, s.lastNumber+1,
		fmt.Errorf("ffmpeg produced no frames: %w: %s", err, p.stderrTail()))
}

func (s *ffmpegStream) stop() {
	p := s.proc
	if p == nil {
		return
	}
	s.proc = nil
	p.cancel()
	p.stdout.Close()
	// Drain metadata so the stderr reader can observe EOF and exit.
	for range p.meta {
	}
	<-p.done
	_ = p.cmd.Wait()
}

func (s *ffmpegStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}
