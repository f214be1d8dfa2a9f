package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/fishannotator/reel/internal/errors"
	"github.com/fishannotator/reel/internal/logger"
)

// keepAliveInterval keeps idle event streams open through proxies.
const keepAliveInterval = 15 * time.Second

// handleEvents streams player events as Server-Sent Events. Each event's
// name is its type; the data line is its JSON encoding. FrameReady events
// omit the pixels, which are fetched from /frame.
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errorHandler.HandleError(w, r, apperrors.NewInternalError("Streaming is not supported"))
		return
	}

	events, cancel := h.player.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// An initial state line lets a client render without waiting for an event.
	if err := writeSSE(w, "state", h.state()); err != nil {
		return
	}
	flusher.Flush()

	log := logger.FromContext(r.Context())
	log.Debug("Event stream opened")
	defer log.Debug("Event stream closed")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, string(ev.Type()), ev); err != nil {
				log.WithError(err).Debug("Event stream write failed")
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
