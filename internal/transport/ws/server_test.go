package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/internal/service"
	"github.com/cwrk-planet/roulette-service/internal/store/memory"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	coord := service.NewCoordinator(st, feed.NewBroker(16), nil, service.Options{AutoCreate: true, Logger: log})
	hub := NewHub()
	srv := NewServer(hub, coord, coord.Presence(), log)

	r := chi.NewRouter()
	r.Get("/ws/rooms/{id}", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, hub
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil returns the first frame of the wanted type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func TestHandleWS_ContributeAndPush(t *testing.T) {
	ts, hub := newTestServer(t)

	watcher := dial(t, ts, "/ws/rooms/r1")
	var initial domain.Snapshot
	if err := json.Unmarshal(readUntil(t, watcher, TypeState).Payload, &initial); err != nil {
		t.Fatal(err)
	}
	if initial.Room.Status != domain.StatusWaiting {
		t.Fatalf("initial = %+v", initial.Room)
	}

	player := dial(t, ts, "/ws/rooms/r1?user_id=9&display_name=Niobe")
	readUntil(t, player, TypeState)

	if err := player.WriteJSON(map[string]any{
		"type":    TypeContribute,
		"payload": map[string]any{"requestId": "req-1", "kind": "token", "amount": "3"},
	}); err != nil {
		t.Fatal(err)
	}

	var ack ContributeAckPayload
	if err := json.Unmarshal(readUntil(t, player, TypeContributeAck).Payload, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.RequestID != "req-1" || ack.Receipt == nil || ack.Receipt.Participant.PlayerID != 9 {
		t.Fatalf("ack = %+v", ack)
	}

	// the watcher gets the new state from the feed
	for {
		var snap domain.Snapshot
		if err := json.Unmarshal(readUntil(t, watcher, TypeState).Payload, &snap); err != nil {
			t.Fatal(err)
		}
		if len(snap.Participants) == 1 {
			if snap.Participants[0].DisplayName != "Niobe" || snap.Room.Status != domain.StatusSinglePlayer {
				t.Fatalf("pushed = %+v", snap)
			}
			break
		}
	}
	if n := hub.Count("r1"); n != 2 {
		t.Fatalf("hub count = %d", n)
	}
}

func TestHandleWS_Notices(t *testing.T) {
	ts, _ := newTestServer(t)

	anon := dial(t, ts, "/ws/rooms/r2")
	readUntil(t, anon, TypeState)
	_ = anon.WriteJSON(map[string]any{"type": TypeContribute, "payload": map[string]any{"kind": "gift"}})
	var n NoticePayload
	if err := json.Unmarshal(readUntil(t, anon, TypeNotice).Payload, &n); err != nil {
		t.Fatal(err)
	}
	if n.Code != "missing_identity" {
		t.Fatalf("notice = %+v", n)
	}

	p := dial(t, ts, "/ws/rooms/r2?user_id=3")
	readUntil(t, p, TypeState)
	_ = p.WriteJSON(map[string]any{"type": TypeContribute, "payload": map[string]any{"requestId": "x", "kind": "token", "amount": 0}})
	if err := json.Unmarshal(readUntil(t, p, TypeNotice).Payload, &n); err != nil {
		t.Fatal(err)
	}
	if n.Code != "invalid_amount" || n.RequestID != "x" {
		t.Fatalf("notice = %+v", n)
	}
}

func TestHandleWS_RejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(url+"/ws/rooms/bad.id", nil); err == nil || resp.StatusCode != 400 {
		t.Fatalf("bad room id: err=%v resp=%v", err, resp)
	}
	if _, resp, err := websocket.DefaultDialer.Dial(url+"/ws/rooms/r1?user_id=abc", nil); err == nil || resp.StatusCode != 401 {
		t.Fatalf("bad identity: err=%v resp=%v", err, resp)
	}
}
