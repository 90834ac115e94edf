package websocket

import (
	"net/http"

	"github.com/dukerupert/chorequest/internal/auth"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades authenticated requests and runs them as hub
// clients. originPatterns restricts cross-origin browsers; empty means same
// origin only.
func HandleWebSocket(hub *Hub, originPatterns ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("accept websocket", "user_id", userID, "error", err)
			return
		}

		hub.logger.Debug("client connected", "user_id", userID)
		NewClient(hub, conn, userID).Run(r.Context())
		hub.logger.Debug("client disconnected", "user_id", userID)
	}
}
