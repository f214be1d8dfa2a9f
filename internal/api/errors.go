package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/fishannotator/reel/internal/decoder"
	apperrors "github.com/fishannotator/reel/internal/errors"
	"github.com/fishannotator/reel/internal/player"
	"github.com/fishannotator/reel/internal/registry"
)

// toAppError maps player, decoder and registry failures to API errors.
func toAppError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, player.ErrNoStream):
		return apperrors.NewConflictError("No video is loaded").WithCode("no_stream")
	case errors.Is(err, player.ErrClosed):
		return apperrors.NewServiceDownError("player")
	case errors.Is(err, registry.ErrSessionNotFound):
		return apperrors.NewNotFoundError("session")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("The player did not respond in time")
	}

	var decErr *decoder.DecodeError
	if errors.As(err, &decErr) {
		return decodeErrorToApp(decErr)
	}

	return apperrors.WrapInternalError(err, "An unexpected error occurred")
}

func decodeErrorToApp(err *decoder.DecodeError) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch err.Kind {
	case decoder.KindIOFailure:
		if errors.Is(err, fs.ErrNotExist) {
			appErr = apperrors.Wrap(err, apperrors.ErrorTypeNotFound, "Video file not found", http.StatusNotFound)
		} else {
			appErr = apperrors.WrapUnprocessable(err, "Video file could not be read")
		}
	case decoder.KindUnsupportedFormat:
		appErr = apperrors.WrapUnsupportedMedia(err, "Video format is not supported")
	case decoder.KindStreamCorrupt:
		appErr = apperrors.WrapUnprocessable(err, "Video stream is corrupt")
	default:
		appErr = apperrors.WrapInternalError(err, "Decoding failed")
	}

	details := map[string]interface{}{"kind": err.Kind.String()}
	if err.Path != "" {
		details["path"] = err.Path
	}
	if err.Frame >= 0 {
		details["frame"] = err.Frame
	}
	return appErr.WithCode(err.Kind.String()).WithDetails(details)
}
