package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/internal/identity"
	"github.com/cwrk-planet/roulette-service/internal/service"
	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type RoomSvc interface {
	Subscribe(ctx context.Context, roomID string) (*feed.Subscription, domain.Snapshot, error)
	Contribute(ctx context.Context, roomID string, id domain.Identity, amount decimal.Decimal, kind domain.ContributionKind) (*service.Receipt, error)
}

type PresenceSvc interface {
	Touch(ctx context.Context, roomID string, id domain.Identity) error
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	rooms    RoomSvc
	presence PresenceSvc
	log      *slog.Logger

	pingEvery time.Duration
}

func NewServer(hub *Hub, rooms RoomSvc, presence PresenceSvc, log *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		rooms:    rooms,
		presence: presence,
		log:      log.With(slog.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws/rooms/{id}?access_token=... or ?user_id=&display_name=&avatar_url=
// Without an identity the socket is watch-only.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := domain.ValidateRoomID(roomID); err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	id, err := resolveIdentity(r)
	if err != nil && !errors.Is(err, identity.ErrMissing) {
		http.Error(w, "invalid identity", http.StatusUnauthorized)
		return
	}

	sub, snap, err := s.rooms.Subscribe(r.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", logger.Room(roomID), logger.Err(err))
		return
	}

	c := newWsConn(conn, roomID, id)
	s.hub.Add(c)

	seen := &feed.Mirror{}
	seen.Apply(snap)

	if err := c.Send(stateMessage(snap)); err != nil {
		s.log.Warn("ws send initial state failed", logger.Room(roomID), logger.Player(id.ID), logger.Err(err))
	}
	if c.known() {
		s.touch(r.Context(), c)
		s.hub.Broadcast(roomID, Message{Type: TypePeerJoined, Payload: c.peer()})
	}

	go s.writeLoop(r.Context(), c, sub, seen)
	s.readLoop(r.Context(), c)

	s.hub.Remove(c)
	if c.known() {
		s.hub.Broadcast(roomID, Message{Type: TypePeerLeft, Payload: c.peer()})
	}
	if err := c.Close(); err != nil {
		s.log.Debug("ws close failed", logger.Room(roomID), logger.Player(id.ID), logger.Err(err))
	}
}

func resolveIdentity(r *http.Request) (domain.Identity, error) {
	q := r.URL.Query()
	if tok := strings.TrimSpace(q.Get("access_token")); tok != "" {
		return identity.FromToken(tok)
	}
	if uid := q.Get("user_id"); uid != "" {
		return identity.FromValues(uid, q.Get("username"), q.Get("display_name"), q.Get("avatar_url"))
	}
	return identity.Resolve(r.Header.Get("Authorization"), r.Header)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(64 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.touch(ctx, c)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.Send(notice("", "invalid_json", "invalid json"))
			continue
		}

		switch msg.Type {
		case TypeContribute:
			s.contribute(ctx, c, msg.Payload)
		default:
			// ignore
		}
	}
}

func (s *Server) contribute(ctx context.Context, c *wsConn, p ContributePayload) {
	if !c.known() {
		_ = c.Send(notice(p.RequestID, "missing_identity", "identity required to contribute"))
		return
	}
	kind, err := domain.ParseKind(p.Kind, p.Amount != nil)
	if err != nil {
		_ = c.Send(notice(p.RequestID, "invalid_kind", err.Error()))
		return
	}
	amount := decimal.Zero
	if p.Amount != nil {
		amount = *p.Amount
	}

	rc, err := s.rooms.Contribute(ctx, c.roomID, c.id, amount, kind)
	if err != nil {
		_ = c.Send(notice(p.RequestID, noticeCode(err), err.Error()))
		return
	}
	// the new state reaches everyone through the feed; the ack only settles
	// the sender's pending request
	_ = c.Send(Message{Type: TypeContributeAck, Payload: ContributeAckPayload{RequestID: p.RequestID, Receipt: rc}})
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn, sub *feed.Subscription, seen *feed.Mirror) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				_ = c.Close()
				return
			}
			if !seen.Apply(snap) {
				continue
			}
			if err := c.Send(stateMessage(snap)); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.touch(ctx, c)
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func (s *Server) touch(ctx context.Context, c *wsConn) {
	if !c.known() || s.presence == nil {
		return
	}
	if err := s.presence.Touch(ctx, c.roomID, c.id); err != nil {
		s.log.Debug("ws presence touch failed", logger.Room(c.roomID), logger.Player(c.id.ID), logger.Err(err))
	}
}

func notice(requestID, code, msg string) Message {
	return Message{Type: TypeNotice, Payload: NoticePayload{RequestID: requestID, Code: code, Message: msg}}
}

func noticeCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoundLocked):
		return "round_locked"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// --- helpers ---

type wsConn struct {
	conn   *websocket.Conn
	roomID string
	id     domain.Identity
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, roomID string, id domain.Identity) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		id:     id,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) known() bool { return c.id.ID > 0 }

func (c *wsConn) peer() PeerEventPayload {
	return PeerEventPayload{RoomID: c.roomID, PlayerID: c.id.ID, DisplayName: c.id.Name()}
}

func (c *wsConn) PlayerID() int64 { return c.id.ID }
func (c *wsConn) RoomID() string  { return c.roomID }
