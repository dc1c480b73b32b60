package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/lobby-backend/internal/hub"
	"github.com/DoyleJ11/lobby-backend/internal/lobby"
	"github.com/DoyleJ11/lobby-backend/internal/types"
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := r.URL.Query().Get("match")
		userID := r.URL.Query().Get("user")
		if matchID == "" || userID == "" {
			http.Error(w, "missing match or user", http.StatusBadRequest)
			return
		}

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.GetLobby{MatchID: matchID, Reply: reply}
		lb := <-reply
		if lb == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}

		// Reserve a slot before completing the handshake; full lobbies never
		// get a socket.
		sessionID := uuid.NewString()
		decision := make(chan lobby.JoinDecision, 1)
		lb.Inbox() <- lobby.JoinAttempt{SessionID: sessionID, Reply: decision}
		if d := <-decision; !d.Accepted {
			http.Error(w, d.Reason, http.StatusConflict)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			// Release the reservation held above.
			lb.Inbox() <- lobby.Leave{SessionID: sessionID}
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, 8)
		lb.Inbox() <- lobby.Join{SessionID: sessionID, UserID: userID, Outbox: out}
		defer func() { lb.Inbox() <- lobby.Leave{SessionID: sessionID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. The limiter drops frames from clients flooding the
		// lobby; readiness is sticky so a dropped ready resend still lands.
		limiter := rate.NewLimiter(rate.Limit(20), 40)
		for {
			ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (lobby.Leave in defer):
				return
			}

			if !limiter.Allow() {
				log.Debug("dropping frame over rate limit", zap.String("session_id", sessionID))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"error":"bad json"}`))
				continue
			}

			lb.Inbox() <- lobby.FromClient{SessionID: sessionID, Op: cm.Op}
		}
	}
}
