// Package api exposes the transport controls over HTTP so a GUI on the
// same machine can drive the player.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fishannotator/reel/internal/decoder"
	apperrors "github.com/fishannotator/reel/internal/errors"
	"github.com/fishannotator/reel/internal/framecache"
	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/player"
	"github.com/fishannotator/reel/internal/registry"
)

// maxThumbWidth bounds ?width= on frame requests.
const maxThumbWidth = 4096

// Player is the transport surface the handlers drive.
type Player interface {
	Load(ctx context.Context, path string) error
	Play(ctx context.Context) error
	PlayReverse(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, frame int64) error
	StepForward(ctx context.Context) error
	StepBackward(ctx context.Context) error
	SpeedUp(ctx context.Context) error
	SlowDown(ctx context.Context) error
	Snapshot() player.Snapshot
	LastFrame() (*decoder.Frame, bool)
	CacheStats() (framecache.Stats, bool)
	Subscribe() (<-chan player.Event, func())
}

type Handlers struct {
	player       Player
	registry     registry.Registry
	errorHandler *apperrors.ErrorHandler
	logger       *logrus.Logger
	opTimeout    time.Duration
}

// NewHandlers wires the API. reg may be nil when no registry is configured.
func NewHandlers(p Player, reg registry.Registry, eh *apperrors.ErrorHandler, log *logrus.Logger) *Handlers {
	return &Handlers{
		player:       p,
		registry:     reg,
		errorHandler: eh,
		logger:       log,
		opTimeout:    30 * time.Second,
	}
}

func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	p := api.PathPrefix("/player").Subrouter()
	p.HandleFunc("/load", h.handleLoad).Methods("POST")
	p.HandleFunc("/seek", h.handleSeek).Methods("POST")
	p.HandleFunc("/play", h.transport("play", h.player.Play)).Methods("POST")
	p.HandleFunc("/reverse", h.transport("reverse", h.player.PlayReverse)).Methods("POST")
	p.HandleFunc("/stop", h.transport("stop", h.player.Stop)).Methods("POST")
	p.HandleFunc("/step/forward", h.transport("step_forward", h.player.StepForward)).Methods("POST")
	p.HandleFunc("/step/backward", h.transport("step_backward", h.player.StepBackward)).Methods("POST")
	p.HandleFunc("/speed/up", h.transport("speed_up", h.player.SpeedUp)).Methods("POST")
	p.HandleFunc("/speed/down", h.transport("speed_down", h.player.SlowDown)).Methods("POST")
	p.HandleFunc("/state", h.handleState).Methods("GET")
	p.HandleFunc("/frame", h.handleFrame).Methods("GET")
	p.HandleFunc("/events", h.handleEvents).Methods("GET")

	api.HandleFunc("/sessions", h.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.handleGetSession).Methods("GET")
}

type loadRequest struct {
	Path string `json:"path"`
}

type seekRequest struct {
	Frame *int64 `json:"frame"`
}

// StateResponse is the body of every transport call and GET /state.
type StateResponse struct {
	player.Snapshot
	Timecode     string            `json:"timecode"`
	SpeedPercent int               `json:"speed_percent"`
	Cache        *framecache.Stats `json:"cache,omitempty"`
}

func (h *Handlers) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.opTimeout)
}

func (h *Handlers) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if req.Path == "" {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("path is required"))
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	log := logger.FromContext(r.Context()).WithField("path", req.Path)
	if err := h.player.Load(ctx, req.Path); err != nil {
		log.WithError(err).Warn("Load failed")
		h.errorHandler.HandleError(w, r, toAppError(err))
		return
	}
	log.Info("Video loaded")

	h.writeState(w, http.StatusOK)
}

func (h *Handlers) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if req.Frame == nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("frame is required"))
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.player.Seek(ctx, *req.Frame); err != nil {
		h.errorHandler.HandleError(w, r, toAppError(err))
		return
	}
	// The frame itself arrives on the event stream.
	h.writeState(w, http.StatusAccepted)
}

// transport adapts a body-less player operation to a handler.
func (h *Handlers) transport(name string, op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.opContext(r)
		defer cancel()

		if err := op(ctx); err != nil {
			logger.FromContext(r.Context()).WithError(err).WithField("op", name).Debug("Transport operation failed")
			h.errorHandler.HandleError(w, r, toAppError(err))
			return
		}
		h.writeState(w, http.StatusOK)
	}
}

func (h *Handlers) handleState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, http.StatusOK)
}

func (h *Handlers) state() StateResponse {
	snap := h.player.Snapshot()
	resp := StateResponse{
		Snapshot:     snap,
		Timecode:     snap.Timecode(),
		SpeedPercent: snap.SpeedPercent(),
	}
	if stats, ok := h.player.CacheStats(); ok {
		resp.Cache = &stats
	}
	return resp
}

func (h *Handlers) writeState(w http.ResponseWriter, status int) {
	h.writeJSON(w, status, h.state())
}

// handleFrame renders the last delivered frame as PNG. ?width= scales it
// down preserving aspect ratio; ?overlay=1 burns in number and timecode.
func (h *Handlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	fr, ok := h.player.LastFrame()
	if !ok {
		h.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("frame"))
		return
	}

	img := fr.Image
	if ws := r.URL.Query().Get("width"); ws != "" {
		width, err := strconv.Atoi(ws)
		if err != nil || width < 1 || width > maxThumbWidth {
			h.errorHandler.HandleError(w, r, apperrors.NewValidationError(fmt.Sprintf("width must be between 1 and %d", maxThumbWidth)))
			return
		}
		b := img.Bounds()
		if width < b.Dx() {
			height := max(1, b.Dy()*width/b.Dx())
			img = decoder.Scale(img, width, height)
		}
	}

	if overlay, _ := strconv.ParseBool(r.URL.Query().Get("overlay")); overlay {
		snap := h.player.Snapshot()
		img = Overlay(img, fr.Number, player.FormatTimecode(fr.Number, snap.NativeRate))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Number", strconv.FormatInt(fr.Number, 10))
	if err := png.Encode(w, img); err != nil {
		h.logger.WithError(err).Warn("Failed to encode frame")
	}
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []*registry.Session{}
	if h.registry != nil {
		list, err := h.registry.List(r.Context())
		if err != nil {
			h.errorHandler.HandleError(w, r, apperrors.NewServiceDownError("registry"))
			return
		}
		sessions = list
	}

	h.writeJSON(w, http.StatusOK, struct {
		Sessions []*registry.Session `json:"sessions"`
		Count    int                 `json:"count"`
	}{sessions, len(sessions)})
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("session"))
		return
	}

	s, err := h.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.errorHandler.HandleError(w, r, toAppError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
