package health

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
)

// requiredDecoders are the codecs survey footage is recorded in.
var requiredDecoders = []string{"h264", "hevc"}

// DecoderChecker verifies the ffmpeg toolchain the file decoder shells out
// to. A missing toolchain degrades the service: synthetic sources still
// play, real footage does not.
type DecoderChecker struct {
	cfg     config.DecoderConfig
	timeout time.Duration

	mu      sync.Mutex
	details map[string]interface{}
}

// NewDecoderChecker creates a checker for the configured binaries.
func NewDecoderChecker(cfg config.DecoderConfig) *DecoderChecker {
	return &DecoderChecker{
		cfg:     cfg,
		timeout: 5 * time.Second,
		details: map[string]interface{}{},
	}
}

func (d *DecoderChecker) Name() string {
	return "decoder"
}

func (d *DecoderChecker) Check(ctx context.Context) error {
	details := map[string]interface{}{}
	defer func() {
		d.mu.Lock()
		d.details = details
		d.mu.Unlock()
	}()

	ffmpegPath, err := decoder.FindFFmpeg(d.cfg.FFmpegPath)
	if err != nil {
		return Degraded(err)
	}
	details["ffmpeg_path"] = ffmpegPath

	if ffprobePath, err := decoder.FindFFprobe(d.cfg.FFprobePath, ffmpegPath); err == nil {
		details["ffprobe_path"] = ffprobePath
	} else {
		// MP4 metadata is read natively, so only other containers need it.
		details["ffprobe_path"] = ""
	}

	out, err := d.run(ctx, ffmpegPath, "-hide_banner", "-version")
	if err != nil {
		return Degraded(fmt.Errorf("ffmpeg version check failed: %w", err))
	}
	if v := parseVersion(out); v != "" {
		details["version"] = v
	}

	out, err = d.run(ctx, ffmpegPath, "-hide_banner", "-decoders")
	if err != nil {
		return Degraded(fmt.Errorf("ffmpeg decoder listing failed: %w", err))
	}
	var missing []string
	for _, codec := range requiredDecoders {
		if !listsEntry(out, codec) {
			missing = append(missing, codec)
		}
	}
	if len(missing) > 0 {
		details["missing_decoders"] = missing
		return Degraded(fmt.Errorf("ffmpeg lacks decoders: %s", strings.Join(missing, ", ")))
	}

	// Frame numbering relies on the showinfo filter.
	out, err = d.run(ctx, ffmpegPath, "-hide_banner", "-filters")
	if err != nil {
		return Degraded(fmt.Errorf("ffmpeg filter listing failed: %w", err))
	}
	if !listsEntry(out, "showinfo") {
		return Degraded(fmt.Errorf("ffmpeg lacks the showinfo filter"))
	}

	return nil
}

// Details returns what the last check discovered.
func (d *DecoderChecker) Details() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]interface{}, len(d.details))
	for k, v := range d.details {
		out[k] = v
	}
	return out
}

func (d *DecoderChecker) run(ctx context.Context, bin string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, bin, args...).Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// listsEntry reports whether an ffmpeg -decoders or -filters listing has a
// row whose name column equals name.
func listsEntry(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
