package types

import (
	"encoding/json"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
)

// ClientMessage is one decoded frame from a connected client. Ready frames
// carry no fields beyond the op-code; the sender is identified by its
// connection.
type ClientMessage struct {
	Op int64 `json:"op"`
}

// ServerMessage wraps every outbound frame with its op-code.
type ServerMessage struct {
	Op      int64           `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadyEcho is the op 1 broadcast acknowledging a ready signal.
type ReadyEcho struct {
	SessionID string `json:"sessionId"`
}

type LobbyPlayer struct {
	SessionID   string `json:"sessionId"`
	IsObserving bool   `json:"isObserving"`
	IsReady     bool   `json:"isReady"`
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
}

// LobbyUpdate is the op 2 broadcast: every joined player, reserved slots
// excluded, in slot order.
type LobbyUpdate struct {
	Players []LobbyPlayer `json:"players"`
}

func NewLobbyUpdate(s engine.State) LobbyUpdate {
	update := LobbyUpdate{Players: []LobbyPlayer{}}
	for _, p := range engine.PlayersBySlot(s) {
		if !p.Joined {
			continue
		}
		update.Players = append(update.Players, LobbyPlayer{
			SessionID:   p.SessionID,
			IsObserving: p.IsObserving,
			IsReady:     p.IsReady,
			DisplayName: p.DisplayName,
			UserID:      p.UserID,
		})
	}
	return update
}
