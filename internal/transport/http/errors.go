package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/identity"
	"github.com/cwrk-planet/roulette-service/pkg/httputil"
	"github.com/cwrk-planet/roulette-service/pkg/logger"
)

// toHTTP maps a service error to a status and a stable machine code.
func toHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found"
	case errors.Is(err, domain.ErrRoundLocked):
		return http.StatusConflict, "round_locked"
	case errors.Is(err, domain.ErrNoParticipants):
		return http.StatusConflict, "no_participants"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrInvalidKind):
		return http.StatusBadRequest, "invalid_kind"
	case errors.Is(err, domain.ErrInvalidRoomID):
		return http.StatusBadRequest, "invalid_room_id"
	case errors.Is(err, domain.ErrInvalidIdentity), errors.Is(err, identity.ErrMissing):
		return http.StatusUnauthorized, "invalid_identity"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := toHTTP(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("handler."+op, append([]any{logger.Err(err)}, logger.ArgsFromCtx(r.Context())...)...)
		httputil.Error(r.Context(), w, status, code, http.StatusText(status), nil)
		return
	}
	h.log.Debug("handler."+op, slog.String("code", code), logger.Err(err))
	httputil.Error(r.Context(), w, status, code, err.Error(), nil)
}
