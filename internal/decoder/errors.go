package decoder

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decoder failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindIOFailure: the file cannot be read.
	KindIOFailure
	// KindUnsupportedFormat: no decodable video stream.
	KindUnsupportedFormat
	// KindStreamCorrupt: decoding cannot continue.
	KindStreamCorrupt
	// KindTransientGlitch: a single bad packet; resync and continue.
	KindTransientGlitch
)

func (k ErrorKind) String() string {
	switch k {
	case KindIOFailure:
		return "io_failure"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindStreamCorrupt:
		return "stream_corrupt"
	case KindTransientGlitch:
		return "transient_glitch"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind ends the session.
func (k ErrorKind) Fatal() bool {
	return k != KindTransientGlitch
}

var (
	ErrFFmpegNotFound  = errors.New("ffmpeg not found")
	ErrFFprobeNotFound = errors.New("ffprobe not found")
	ErrClosed          = errors.New("stream closed")
	ErrNeedsResync     = errors.New("stream needs a seek or resync before decoding")
)

// DecodeError carries the kind and location of a decoder failure.
type DecodeError struct {
	Kind ErrorKind
	Path string
	// Frame is the frame being produced when the error happened, or -1.
	Frame int64
	Err   error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Frame >= 0 {
		msg += fmt.Sprintf(" at frame %d", e.Frame)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, path string, frame int64, err error) *DecodeError {
	return &DecodeError{Kind: kind, Path: path, Frame: frame, Err: err}
}

// KindOf returns the kind of the first DecodeError in err's chain.
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
