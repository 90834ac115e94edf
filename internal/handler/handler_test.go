package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/achievement"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/backup"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/middleware"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	titles  []string
	expired map[string]bool
}

func (s *fakeSender) Send(_ context.Context, sub *model.PushSubscription, p push.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired[sub.Endpoint] {
		return push.ErrExpired
	}
	s.sent = append(s.sent, sub.Endpoint)
	s.titles = append(s.titles, p.Title)
	return nil
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.titles = nil
}

type fixture struct {
	users        *store.UserStore
	profiles     *store.ProfileStore
	chores       *store.ChoreStore
	achievements *store.AchievementStore
	pushes       *store.PushStore
	sender       *fakeSender
	now          time.Time
	mux          *http.ServeMux
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		users:        store.NewUserStore(db),
		profiles:     store.NewProfileStore(db),
		chores:       store.NewChoreStore(db),
		achievements: store.NewAchievementStore(db),
		pushes:       store.NewPushStore(db),
		sender:       &fakeSender{expired: make(map[string]bool)},
		// a Monday
		now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		mux: http.NewServeMux(),
	}
	clock := func() time.Time { return f.now }

	ev := achievement.New(f.chores, f.profiles, f.achievements,
		achievement.WithLocation(time.UTC),
		achievement.WithClock(clock),
		achievement.WithLogger(logger),
	)
	notifier := push.NewNotifier(f.sender, f.pushes, f.profiles, logger)
	hub := websocket.NewHub(logger)

	choreH := NewChoreHandler(f.chores, f.profiles, ev, notifier, hub, logger)
	choreH.now = clock
	profileH := NewProfileHandler(f.profiles, logger)
	achievementH := NewAchievementHandler(f.achievements, f.profiles, ev, logger)
	achievementH.now = clock
	pushH := NewPushHandler(f.pushes, notifier, "test-public-key", logger)
	backups := store.NewBackupStore(db)
	backupH := NewBackupHandler(backup.NewManager(backup.Config{}, db, backups, logger), backups, logger)

	m := f.mux
	m.HandleFunc("POST /api/chores", choreH.Create)
	m.HandleFunc("GET /api/chores", choreH.List)
	m.HandleFunc("GET /api/chores/{id}", choreH.Get)
	m.HandleFunc("PUT /api/chores/{id}", choreH.Update)
	m.HandleFunc("DELETE /api/chores/{id}", choreH.Delete)
	m.HandleFunc("POST /api/chores/{id}/complete", choreH.Complete)
	m.HandleFunc("POST /api/chores/{id}/claim", choreH.Claim)

	m.HandleFunc("GET /api/profiles", profileH.List)
	m.HandleFunc("GET /api/profiles/me", profileH.Me)
	m.HandleFunc("GET /api/profiles/{id}", profileH.Get)
	m.HandleFunc("PUT /api/profiles/{id}", profileH.Update)
	m.HandleFunc("GET /api/leaderboard", profileH.Leaderboard)

	m.HandleFunc("GET /api/achievements", achievementH.List)
	m.HandleFunc("GET /api/achievements/catalog", achievementH.Catalog)
	m.HandleFunc("GET /api/achievements/{id}", achievementH.Get)
	m.Handle("POST /api/achievements", middleware.RequireAdmin(http.HandlerFunc(achievementH.Create)))
	m.Handle("PUT /api/achievements/{id}/progress", middleware.RequireAdmin(http.HandlerFunc(achievementH.UpdateProgress)))
	m.Handle("DELETE /api/achievements/{id}", middleware.RequireAdmin(http.HandlerFunc(achievementH.Delete)))

	m.Handle("GET /api/backups", middleware.RequireAdmin(http.HandlerFunc(backupH.List)))
	m.Handle("POST /api/backups", middleware.RequireAdmin(http.HandlerFunc(backupH.Run)))
	m.Handle("GET /api/backups/{id}/download", middleware.RequireAdmin(http.HandlerFunc(backupH.Download)))

	m.HandleFunc("POST /api/push/subscribe", pushH.Subscribe)
	m.HandleFunc("GET /api/push/subscriptions", pushH.ListSubscriptions)
	m.HandleFunc("DELETE /api/push/subscriptions/{id}", pushH.Unsubscribe)
	m.HandleFunc("GET /api/push/vapid-key", pushH.GetVAPIDKey)
	m.HandleFunc("GET /api/push/preferences", pushH.GetPreferences)
	m.HandleFunc("PUT /api/push/preferences", pushH.UpdatePreferences)
	m.HandleFunc("POST /api/push/test", pushH.TestNotification)
	return f
}

// register creates a user with a push subscription. The first one is admin.
func (f *fixture) register(t *testing.T, name string) int64 {
	t.Helper()
	u, err := f.users.Register(name+"@example.com", name, "hash", name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if _, err := f.pushes.CreateSubscription(u.ID, endpointFor(name), "p256dh", "auth", name+"'s phone"); err != nil {
		t.Fatalf("subscribe %s: %v", name, err)
	}
	return u.ID
}

func endpointFor(name string) string {
	return "https://push.example.com/" + name
}

// do sends a request as userID through the test mux.
func (f *fixture) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != 0 {
		p, err := f.profiles.GetByUserID(userID)
		if err != nil || p == nil {
			t.Fatalf("profile for %d: %v", userID, err)
		}
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, Role: p.Role}))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
