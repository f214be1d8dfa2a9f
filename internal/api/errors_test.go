package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishannotator/reel/internal/decoder"
	apperrors "github.com/fishannotator/reel/internal/errors"
	"github.com/fishannotator/reel/internal/player"
	"github.com/fishannotator/reel/internal/registry"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"no stream", player.ErrNoStream, http.StatusConflict, apperrors.ErrorTypeConflict},
		{"closed", player.ErrClosed, http.StatusServiceUnavailable, apperrors.ErrorTypeServiceDown},
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout, apperrors.ErrorTypeTimeout},
		{"session", fmt.Errorf("%w: x", registry.ErrSessionNotFound), http.StatusNotFound, apperrors.ErrorTypeNotFound},
		{
			"missing file",
			&decoder.DecodeError{Kind: decoder.KindIOFailure, Path: "a.mp4", Frame: -1, Err: fs.ErrNotExist},
			http.StatusNotFound, apperrors.ErrorTypeNotFound,
		},
		{
			"unreadable file",
			&decoder.DecodeError{Kind: decoder.KindIOFailure, Path: "a.mp4", Frame: -1, Err: errors.New("eio")},
			http.StatusUnprocessableEntity, apperrors.ErrorTypeUnprocessable,
		},
		{
			"unsupported",
			&decoder.DecodeError{Kind: decoder.KindUnsupportedFormat, Path: "a.avi", Frame: -1},
			http.StatusUnsupportedMediaType, apperrors.ErrorTypeUnsupportedMedia,
		},
		{
			"corrupt",
			fmt.Errorf("load: %w", &decoder.DecodeError{Kind: decoder.KindStreamCorrupt, Path: "a.mp4", Frame: 40}),
			http.StatusUnprocessableEntity, apperrors.ErrorTypeUnprocessable,
		},
		{"other", errors.New("weird"), http.StatusInternalServerError, apperrors.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperrors.GetAppError(toAppError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
			assert.Equal(t, tt.wantType, appErr.Type)
		})
	}
}

func TestDecodeErrorDetails(t *testing.T) {
	appErr := decodeErrorToApp(&decoder.DecodeError{Kind: decoder.KindStreamCorrupt, Path: "dive.mp4", Frame: 12})

	assert.Equal(t, "stream_corrupt", appErr.Code)
	assert.Equal(t, "stream_corrupt", appErr.Details["kind"])
	assert.Equal(t, "dive.mp4", appErr.Details["path"])
	assert.Equal(t, int64(12), appErr.Details["frame"])

	appErr = decodeErrorToApp(&decoder.DecodeError{Kind: decoder.KindUnsupportedFormat, Frame: -1})
	assert.NotContains(t, appErr.Details, "frame")
	assert.NotContains(t, appErr.Details, "path")
}

func TestToAppErrorPassesThrough(t *testing.T) {
	in := apperrors.NewValidationError("bad")
	assert.Same(t, in, toAppError(in))
}
