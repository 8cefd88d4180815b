package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/service"
	httpmw "github.com/cwrk-planet/roulette-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/roulette-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	coord *service.Coordinator
	log   *slog.Logger

	// SSE keep-alive comment interval
	ssePing time.Duration
}

func NewHandler(coord *service.Coordinator, log *slog.Logger) *Handler {
	return &Handler{
		coord:   coord,
		log:     log.With(slog.String("component", "http")),
		ssePing: 15 * time.Second,
	}
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.coord.Room(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetRoom", err)
		return
	}
	httputil.OK(w, room)
}

// GET /rooms/{id}/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetState", err)
		return
	}
	httputil.OK(w, snap)
}

// GET /rooms/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	items, err := h.coord.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetParticipants", err)
		return
	}
	httputil.OK(w, map[string]any{"items": items})
}

// POST /rooms/{id}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	id, _ := httpmw.IdentityFromCtx(r.Context())
	snap, err := h.coord.Join(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		h.fail(w, r, "JoinRoom", err)
		return
	}
	httputil.OK(w, snap)
}

// POST /rooms/{id}/contributions
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid_json", "invalid json", nil)
		return
	}
	kind, err := domain.ParseKind(req.Kind, req.Amount != nil)
	if err != nil {
		h.fail(w, r, "Contribute", err)
		return
	}
	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}

	id, _ := httpmw.IdentityFromCtx(r.Context())
	rc, err := h.coord.Contribute(r.Context(), chi.URLParam(r, "id"), id, amount, kind)
	if err != nil {
		h.fail(w, r, "Contribute", err)
		return
	}
	httputil.Created(w, rc)
}

// POST /rooms/{id}/resolve applies due timers now.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	st, trs, err := h.coord.Tick(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Resolve", err)
		return
	}
	httputil.OK(w, ResolveResponse{Transitions: transitionItems(trs), State: h.coord.View(st)})
}

// POST /rooms/{id}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	st, ok, err := h.coord.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Reset", err)
		return
	}
	httputil.OK(w, ResetResponse{Reset: ok, State: h.coord.View(st)})
}

// GET /rooms/{id}/presence
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := domain.ValidateRoomID(roomID); err != nil {
		h.fail(w, r, "GetPresence", err)
		return
	}
	items, err := h.coord.Presence().Online(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, "GetPresence", err)
		return
	}
	resp := PresenceResponse{Items: make([]PresenceItem, 0, len(items))}
	for _, p := range items {
		resp.Items = append(resp.Items, PresenceItem{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			LastSeenAt:  p.LastSeenAt,
		})
	}
	httputil.OK(w, resp)
}
