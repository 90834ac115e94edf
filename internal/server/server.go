package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorequest/internal/achievement"
	"github.com/dukerupert/chorequest/internal/backup"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/handler"
	"github.com/dukerupert/chorequest/internal/middleware"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/store"
	ws "github.com/dukerupert/chorequest/internal/websocket"
)

const (
	loginLimit  = 10
	loginWindow = time.Minute
)

// Options configures a Server.
type Options struct {
	// Location is the household time zone used for streak days.
	Location *time.Location
	// SessionTTL is how long a login stays valid.
	SessionTTL time.Duration
	// Sender delivers push notifications; nil disables them.
	Sender push.Sender
	// VAPIDPublicKey is served to browsers that want to subscribe.
	VAPIDPublicKey string
	// WSOriginPatterns lists extra origins allowed to open /ws.
	WSOriginPatterns []string
	// Backup configures snapshots to object storage; the zero value disables them.
	Backup backup.Config
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	choreH       *handler.ChoreHandler
	profileH     *handler.ProfileHandler
	achievementH *handler.AchievementHandler
	pushH        *handler.PushHandler
	backupH      *handler.BackupHandler
	sessionStore *store.SessionStore
	profileStore *store.ProfileStore
	choreStore   *store.ChoreStore
	pushStore    *store.PushStore
	notifier     *push.Notifier
	evaluator    *achievement.Evaluator
	backups      *backup.Manager
	rateLimiter  *middleware.RateLimiter
	wsOrigins    []string
	sessionTTL   time.Duration
	logger       *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}

	hub := ws.NewHub(logger)

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	profileStore := store.NewProfileStore(db)
	choreStore := store.NewChoreStore(db)
	achievementStore := store.NewAchievementStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	evaluator := achievement.New(choreStore, profileStore, achievementStore,
		achievement.WithLocation(opts.Location),
		achievement.WithLogger(logger.With("component", "achievement")),
	)
	notifier := push.NewNotifier(opts.Sender, pushStore, profileStore, logger)
	backups := backup.NewManager(opts.Backup, db, backupStore, logger)

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, profileStore, opts.SessionTTL, logger.With("component", "auth")),
		choreH:       handler.NewChoreHandler(choreStore, profileStore, evaluator, notifier, hub, logger.With("component", "chore")),
		profileH:     handler.NewProfileHandler(profileStore, logger.With("component", "profile")),
		achievementH: handler.NewAchievementHandler(achievementStore, profileStore, evaluator, logger.With("component", "achievement")),
		pushH:        handler.NewPushHandler(pushStore, notifier, opts.VAPIDPublicKey, logger.With("component", "push_handler")),
		backupH:      handler.NewBackupHandler(backups, backupStore, logger.With("component", "backup_handler")),
		sessionStore: sessionStore,
		profileStore: profileStore,
		choreStore:   choreStore,
		pushStore:    pushStore,
		notifier:     notifier,
		evaluator:    evaluator,
		backups:      backups,
		rateLimiter:  middleware.NewRateLimiter(),
		wsOrigins:    opts.WSOriginPatterns,
		sessionTTL:   opts.SessionTTL,
		logger:       logger,
	}
}

// NewScheduler builds the cron scheduler for reminders and housekeeping,
// sharing the server's stores and notifier.
func (s *Server) NewScheduler(loc *time.Location) *push.Scheduler {
	return push.NewScheduler(s.notifier, s.choreStore, s.pushStore, s.sessionStore, loc, s.logger)
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Backups returns the backup manager for scheduling.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.profileStore, s.sessionTTL)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	code := http.StatusOK
	version, err := database.SchemaVersion(r.Context(), s.db)
	if err != nil {
		s.logger.Error("health check", "error", err)
		resp["status"] = "database unavailable"
		code = http.StatusServiceUnavailable
	} else {
		resp["schema_version"] = version
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, loginLimit, loginWindow)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}

	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/users", s.authH.ListUsers)

	// Chores
	mux.HandleFunc("POST /api/chores", s.choreH.Create)
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("GET /api/chores/{id}", s.choreH.Get)
	mux.HandleFunc("PUT /api/chores/{id}", s.choreH.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", s.choreH.Delete)
	mux.HandleFunc("POST /api/chores/{id}/complete", s.choreH.Complete)
	mux.HandleFunc("POST /api/chores/{id}/claim", s.choreH.Claim)

	// Profiles
	mux.HandleFunc("GET /api/profiles", s.profileH.List)
	mux.HandleFunc("GET /api/profiles/me", s.profileH.Me)
	mux.HandleFunc("GET /api/profiles/{id}", s.profileH.Get)
	mux.HandleFunc("PUT /api/profiles/{id}", s.profileH.Update)
	mux.HandleFunc("GET /api/leaderboard", s.profileH.Leaderboard)

	// Achievements
	mux.HandleFunc("GET /api/achievements", s.achievementH.List)
	mux.HandleFunc("GET /api/achievements/catalog", s.achievementH.Catalog)
	mux.HandleFunc("GET /api/achievements/{id}", s.achievementH.Get)
	mux.Handle("POST /api/achievements", admin(s.achievementH.Create))
	mux.Handle("PUT /api/achievements/{id}/progress", admin(s.achievementH.UpdateProgress))
	mux.Handle("DELETE /api/achievements/{id}", admin(s.achievementH.Delete))

	// Backups
	mux.Handle("GET /api/backups", admin(s.backupH.List))
	mux.Handle("POST /api/backups", admin(s.backupH.Run))
	mux.Handle("GET /api/backups/{id}/download", admin(s.backupH.Download))

	// Push notifications
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
	mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.wsOrigins...))
}
