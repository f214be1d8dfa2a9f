package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type ffprobeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		StartTime    string `json:"start_time"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		StartTime  string `json:"start_time"`
	} `json:"format"`
}

// Probe runs ffprobe against the first video stream of path.
func Probe(ctx context.Context, ffprobePath, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, newError(KindIOFailure, path, -1, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,avg_frame_rate,r_frame_rate,nb_frames,duration,start_time:format=format_name,duration,start_time",
		"-of", "json",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Info{}, newError(KindIOFailure, path, -1, ctx.Err())
		}
		return Info{}, newError(KindUnsupportedFormat, path, -1,
			fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	return parseProbe(path, stdout.Bytes())
}

func parseProbe(path string, data []byte) (Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, newError(KindUnsupportedFormat, path, -1, fmt.Errorf("parse ffprobe output: %w", err))
	}
	if len(out.Streams) == 0 {
		return Info{}, newError(KindUnsupportedFormat, path, -1, errNoVideoTrack)
	}

	s := out.Streams[0]
	info := Info{
		Path:      path,
		Container: strings.Split(out.Format.FormatName, ",")[0],
		Codec:     s.CodecName,
		Width:     s.Width,
		Height:    s.Height,
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, newError(KindUnsupportedFormat, path, -1, fmt.Errorf("video stream has no dimensions"))
	}

	info.NativeRate = parseRational(s.AvgFrameRate)
	if info.NativeRate <= 0 {
		info.NativeRate = parseRational(s.RFrameRate)
	}
	if info.NativeRate <= 0 {
		return Info{}, newError(KindUnsupportedFormat, path, -1, fmt.Errorf("video stream has no frame rate"))
	}

	info.StartTime = parseSeconds(firstNonEmpty(s.StartTime, out.Format.StartTime))
	info.Duration = parseSeconds(firstNonEmpty(s.Duration, out.Format.Duration))

	if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.Duration > 0 {
		info.FrameCount = int64(info.Duration.Seconds()*info.NativeRate + 0.5)
	}

	return info, nil
}

// parseRational parses ffprobe rates such as "30000/1001".
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" && v != "N/A" {
			return v
		}
	}
	return ""
}
