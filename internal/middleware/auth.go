package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/store"
)

// SessionCookieName is the cookie carrying the session token for browser clients.
const SessionCookieName = "chorequest_session"

// SessionToken extracts the session token from an "Authorization: Bearer"
// header, falling back to the session cookie.
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SetSessionCookie writes the browser session cookie.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// ClearSessionCookie expires the browser session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// RequireAuth resolves the session token to a user and role and stores them
// as an AuthContext. Sessions past half their ttl are extended; cookie
// clients get a refreshed cookie.
func RequireAuth(sessions *store.SessionStore, profiles *store.ProfileStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessions.GetByToken(token)
			if err != nil {
				slog.Error("lookup session", "error", err)
				jsonError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if sess == nil {
				jsonError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			profile, err := profiles.GetByUserID(sess.UserID)
			if err != nil {
				slog.Error("lookup profile", "user_id", sess.UserID, "error", err)
				jsonError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if profile == nil {
				jsonError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			if sess.NeedsRenewal(ttl, time.Now()) {
				expires, err := sessions.Extend(sess.ID, ttl)
				if err != nil {
					slog.Warn("extend session", "session_id", sess.ID, "error", err)
				} else if _, cerr := r.Cookie(SessionCookieName); cerr == nil {
					SetSessionCookie(w, r, sess.Token, expires)
				}
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				UserID:    sess.UserID,
				Role:      profile.Role,
				SessionID: sess.ID,
				Token:     sess.Token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			jsonError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
