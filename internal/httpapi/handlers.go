package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
	"github.com/DoyleJ11/lobby-backend/internal/hub"
	"github.com/DoyleJ11/lobby-backend/internal/profiles"
)

type createLobbyRequest struct {
	IsPrivate bool `json:"isPrivate"`
}

type createLobbyResponse struct {
	MatchID string `json:"matchId"`
}

// CreateLobby is the lobby-creation entry point. The requesting user names
// the lobby: "Play with <display name>", suffixed for private matches.
func CreateLobby(h *hub.Hub, resolver profiles.Resolver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}

		displayName, err := resolver.DisplayName(r.Context(), userID)
		if err != nil {
			if errors.Is(err, profiles.ErrUnknownUser) {
				http.Error(w, "unknown user", http.StatusNotFound)
				return
			}
			log.Error("resolve display name", zap.String("user_id", userID), zap.Error(err))
			http.Error(w, "profile lookup failed", http.StatusInternalServerError)
			return
		}

		matchName := fmt.Sprintf("Play with %s", displayName)
		if req.IsPrivate {
			matchName += " (Private)"
		}

		reply := make(chan hub.Created, 1)
		h.Inbox() <- hub.CreateLobby{IsPrivate: req.IsPrivate, MatchName: matchName, Reply: reply}
		created := <-reply

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createLobbyResponse{MatchID: created.MatchID})
	}
}

type lobbyListing struct {
	MatchID string `json:"matchId"`
	engine.Label
}

// ListLobbies returns the labels of public lobbies that can still be joined.
func ListLobbies(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []hub.Listing, 1)
		h.Inbox() <- hub.ListLobbies{Reply: reply}

		listings := []lobbyListing{}
		for _, l := range <-reply {
			if l.Label.IsPrivate == "true" || l.Label.CanJoin != "true" {
				continue
			}
			listings = append(listings, lobbyListing{MatchID: l.MatchID, Label: l.Label})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(listings)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
