package model

import "time"

// Session is a bearer token issued at login. Sessions slide: a request made
// in the second half of the lifetime pushes the expiry out by a full TTL.
type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NeedsRenewal reports whether less than half of ttl remains at now.
func (s Session) NeedsRenewal(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && s.ExpiresAt.Sub(now) < ttl/2
}
