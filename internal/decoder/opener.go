package decoder

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/logger"
)

// Mux routes testsrc: paths to a TestSource and everything else to the
// file decoder.
type Mux struct {
	Test *TestSource
	File Opener
	// fileErr is returned for real files when no file decoder is available.
	fileErr error
}

// NewOpener builds the default Mux. A missing ffmpeg is not an error here;
// opening a real file reports it instead.
func NewOpener(cfg config.DecoderConfig, log logger.Logger) *Mux {
	m := &Mux{Test: NewTestSource()}
	ff, err := NewFFmpegOpener(cfg, log)
	if err != nil {
		log.WithError(err).Warn("ffmpeg unavailable, only testsrc: sources can be opened")
		m.fileErr = err
		return m
	}
	m.File = ff
	return m
}

func (m *Mux) Open(ctx context.Context, path string) (Stream, error) {
	if strings.HasPrefix(path, TestScheme) {
		return m.Test.Open(ctx, path)
	}
	if m.File == nil {
		return nil, newError(KindUnsupportedFormat, path, -1, m.fileErr)
	}
	return m.File.Open(ctx, path)
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
