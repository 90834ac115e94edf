package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"

	ws "github.com/coder/websocket"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeClient builds a Client without a connection; only its send channel is
// used by the hub.
func fakeClient(h *Hub, userID int64) *Client {
	return &Client{hub: h, userID: userID, send: make(chan []byte, sendBufferSize)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatal("expected a queued event")
	}
	return Event{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected event for user %d: %s", c.userID, data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	h := testHub()
	a1 := fakeClient(h, 1)
	a2 := fakeClient(h, 1)
	b := fakeClient(h, 2)

	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	if n := h.ClientCount(); n != 3 {
		t.Fatalf("ClientCount = %d, want 3", n)
	}

	h.Unregister(a1)
	h.Unregister(a1)
	if n := h.ClientCount(); n != 2 {
		t.Errorf("after unregister ClientCount = %d, want 2", n)
	}
	if _, ok := <-a1.send; ok {
		t.Error("send channel not closed on unregister")
	}

	h.Unregister(a2)
	h.Unregister(b)
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	h := testHub()
	a := fakeClient(h, 1)
	b := fakeClient(h, 2)
	h.Register(a)
	h.Register(b)

	uid := int64(2)
	h.Broadcast(ChoreEvent("updated", &model.Chore{ID: 9, Title: "Dishes", AssigneeID: &uid}))

	for _, c := range []*Client{a, b} {
		ev := receive(t, c)
		if ev.Type != "chore_updated" || ev.ID != 9 || ev.UserID != 2 {
			t.Errorf("user %d got %+v", c.userID, ev)
		}
	}
}

func TestSendToUserTargetsOnlyThatUser(t *testing.T) {
	h := testHub()
	phone := fakeClient(h, 1)
	laptop := fakeClient(h, 1)
	other := fakeClient(h, 2)
	h.Register(phone)
	h.Register(laptop)
	h.Register(other)

	h.SendToUser(1, AchievementUnlocked(model.Achievement{
		ID: 5, UserID: 1, Title: "First Steps", Rarity: model.RarityCommon, Points: 10,
	}))

	for _, c := range []*Client{phone, laptop} {
		ev := receive(t, c)
		if ev.Type != "achievement_unlocked" || ev.UserID != 1 {
			t.Errorf("got %+v", ev)
		}
		data, _ := ev.Data.(map[string]any)
		if data["title"] != "First Steps" || data["rarity"] != "common" {
			t.Errorf("data = %v", ev.Data)
		}
	}
	assertEmpty(t, other)

	// nobody connected
	h.SendToUser(42, NewEvent("achievement", "unlocked", 1, nil))
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := testHub()
	c := fakeClient(h, 1)
	h.Register(c)

	for i := 0; i < sendBufferSize+5; i++ {
		h.Broadcast(NewEvent("chore", "created", int64(i), nil))
	}
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("queued = %d, want %d", got, sendBufferSize)
	}
}

func TestConcurrentAccess(t *testing.T) {
	h := testHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			c := fakeClient(h, uid%3)
			h.Register(c)
			h.Broadcast(NewEvent("chore", "updated", uid, nil))
			h.SendToUser(uid%3, NewEvent("achievement", "unlocked", uid, nil))
			h.Unregister(c)
		}(int64(i))
	}
	wg.Wait()
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestHandleWebSocketRequiresUser(t *testing.T) {
	h := testHub()
	rec := httptest.NewRecorder()
	HandleWebSocket(h)(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleWebSocketDelivers(t *testing.T) {
	h := testHub()
	withUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: 7, Role: model.RoleMember})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	srv := httptest.NewServer(withUser(HandleWebSocket(h)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.SendToUser(7, NewEvent("achievement", "unlocked", 3, nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "achievement_unlocked" || ev.ID != 3 {
		t.Errorf("got %+v", ev)
	}
}
