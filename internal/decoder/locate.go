package decoder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var commonBinDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/snap/bin",
}

// FindFFmpeg resolves the ffmpeg binary: custom path first, then
// $REEL_FFMPEG, then PATH, then a few common install locations.
func FindFFmpeg(custom string) (string, error) {
	return findBinary("ffmpeg", custom, "REEL_FFMPEG", ErrFFmpegNotFound)
}

// FindFFprobe resolves ffprobe the same way, additionally looking next to
// the resolved ffmpeg binary.
func FindFFprobe(custom, ffmpegPath string) (string, error) {
	path, err := findBinary("ffprobe", custom, "REEL_FFPROBE", ErrFFprobeNotFound)
	if err == nil || custom != "" || ffmpegPath == "" {
		return path, err
	}
	sibling := filepath.Join(filepath.Dir(ffmpegPath), executable("ffprobe"))
	if _, statErr := os.Stat(sibling); statErr == nil {
		return sibling, nil
	}
	return "", err
}

func findBinary(name, custom, envVar string, notFound error) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err != nil {
			return "", fmt.Errorf("%w: custom path %s: %v", notFound, custom, err)
		}
		return custom, nil
	}

	if env := os.Getenv(envVar); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
	}

	exe := executable(name)
	if path, err := exec.LookPath(exe); err == nil {
		return path, nil
	}

	for _, dir := range commonBinDirs {
		p := filepath.Join(dir, exe)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", notFound
}

func executable(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
