package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/pkg/httputil"
	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

const eventState = "state"

// GET /rooms/{id}/events streams full snapshots as server-sent events. The
// first event is the current state; each later one replaces it.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Error(r.Context(), w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported", nil)
		return
	}

	roomID := chi.URLParam(r, "id")
	sub, snap, err := h.coord.Subscribe(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, "Events", err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var seen feed.Mirror
	seen.Apply(snap)
	if err := writeEvent(w, snap); err != nil {
		return
	}
	flusher.Flush()

	ping := time.NewTicker(h.ssePing)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case s, ok := <-sub.C():
			if !ok {
				return
			}
			if !seen.Apply(s) {
				continue
			}
			if err := writeEvent(w, s); err != nil {
				h.log.Debug("sse write failed", logger.Room(roomID), logger.Err(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", snap.Room.Version, eventState, data)
	return err
}
