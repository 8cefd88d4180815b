package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

type HeartbeatToucher interface {
	Touch(ctx context.Context, roomID string, id domain.Identity) error
}

// HeartbeatMiddleware refreshes presence for {id} when the caller is known.
// Failures are logged and never fail the request.
func HeartbeatMiddleware(presence HeartbeatToucher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := IdentityFromCtx(r.Context()); ok {
				if roomID := chi.URLParam(r, "id"); domain.ValidateRoomID(roomID) == nil {
					if err := presence.Touch(r.Context(), roomID, id); err != nil {
						log.Debug("heartbeat touch failed", slog.String("room_id", roomID), slog.Int64("player_id", id.ID), slog.Any("err", err))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
