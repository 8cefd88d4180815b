package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/roulette-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/roulette-service/internal/transport/ws"
	"github.com/cwrk-planet/roulette-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	Timeout        time.Duration
}

func NewRouter(h *Handler, wsServer *ws.Server, cfg RouterConfig) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareLogging(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-Request-ID",
			"X-User-ID", "X-Username", "X-Display-Name", "X-Avatar-URL",
		},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	// WS endpoint, identity comes from the query or headers
	r.Get("/ws/rooms/{id}", wsServer.HandleWS)

	r.Route("/rooms/{id}", func(rr chi.Router) {
		rr.Use(httpmw.Identity)
		rr.Use(httpmw.HeartbeatMiddleware(h.coord.Presence(), h.log))

		// long lived, no request timeout
		rr.Get("/events", h.Events)

		rr.Group(func(g chi.Router) {
			g.Use(middlewareChi.Timeout(cfg.Timeout))

			g.Get("/", h.GetRoom)
			g.Get("/state", h.GetState)
			g.Get("/participants", h.GetParticipants)
			g.Get("/presence", h.GetPresence)
			g.Post("/resolve", h.Resolve)
			g.Post("/reset", h.Reset)

			g.With(httpmw.RequireIdentity).Post("/join", h.JoinRoom)
			g.With(httpmw.RequireIdentity).Post("/contributions", h.Contribute)
		})
	})

	return r
}

