package engine

import (
	"encoding/json"
	"slices"
)

// Capacity and timing constants for a lobby. A lobby seats two active
// players; everyone admitted beyond that observes until a slot frees up.
const (
	RequiredPlayerCount = 2
	AllowedObservers    = 3
	TickRate            = 10            // ticks per second
	MaxEmptyTicks       = TickRate * 30 // ~30s with nobody joined
)

// Op-codes on the client wire protocol.
const (
	OpReady       int64 = 1
	OpLobbyUpdate int64 = 2
	OpGameStart   int64 = 3
)

type GameState int

const (
	WaitingForPlayers GameState = iota
	WaitingForPlayersReady
	Launching
	InProgress
)

// transitions is the full set of legal moves. The machine only ever goes
// forward; advance is a no-op for anything not listed here.
var transitions = map[GameState]GameState{
	WaitingForPlayers:      WaitingForPlayersReady,
	WaitingForPlayersReady: Launching,
	Launching:              InProgress,
}

func (g GameState) advance(next GameState) GameState {
	if transitions[g] == next {
		return next
	}
	return g
}

func (g GameState) String() string {
	switch g {
	case WaitingForPlayers:
		return "waiting_for_players"
	case WaitingForPlayersReady:
		return "waiting_for_players_ready"
	case Launching:
		return "launching"
	case InProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Player is one reserved or occupied slot. A slot is reserved at join-attempt
// time with only its SessionID and SlotNumber set; Joined flips on confirmed
// join, when the profile fields are populated.
type Player struct {
	SessionID   string
	UserID      string
	DisplayName string
	SlotNumber  int
	IsReady     bool
	IsObserving bool
	Joined      bool
}

type LaunchStatus int

const (
	LaunchPending LaunchStatus = iota
	LaunchSucceeded
	LaunchFailed
)

// Allocation is what the game-server allocator hands back for a match. Raw
// keeps the full response body so it can be relayed to clients untouched.
type Allocation struct {
	ServerAddress string          `json:"serverAddress"`
	Port          int             `json:"port"`
	MatchID       string          `json:"matchId"`
	Raw           json.RawMessage `json:"-"`
}

// LaunchOutcome is the tri-state result of the allocation call. Only the
// lobby loop writes it, by applying a LaunchResult message.
type LaunchOutcome struct {
	Status     LaunchStatus
	Allocation *Allocation
	Err        error
}

// State is the whole lobby. It is a value with map fields: handlers return a
// new State but share the maps, so exactly one goroutine (the lobby loop) may
// hold and mutate a given lineage of States.
type State struct {
	Players             map[string]*Player
	PlayerCount         int
	RequiredPlayerCount int
	AllowedObservers    int
	IsPrivate           bool
	MatchName           string
	MatchID             string
	GameState           GameState
	EmptyTicks          int
	SlotNumber          int
	CanJoin             bool
	Launch              LaunchOutcome
}

// Initialize produces a fresh lobby plus its tick rate and initial label.
func Initialize(isPrivate bool, matchName, matchID string) (State, int, string) {
	s := State{
		Players:             make(map[string]*Player),
		RequiredPlayerCount: RequiredPlayerCount,
		AllowedObservers:    AllowedObservers,
		IsPrivate:           isPrivate,
		MatchName:           matchName,
		MatchID:             matchID,
		GameState:           WaitingForPlayers,
		CanJoin:             true,
	}
	return s, TickRate, BuildLabel(s)
}

// PlayersBySlot returns every slot ordered by slot number. Slot numbers are
// unique and never reused, so the order is total and stable.
func PlayersBySlot(s State) []*Player {
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b *Player) int {
		return a.SlotNumber - b.SlotNumber
	})
	return players
}

// updateObserverFlags assigns active/observer status by join order: the
// earliest RequiredPlayerCount slots are active, the rest observe.
func updateObserverFlags(s State) {
	for i, p := range PlayersBySlot(s) {
		p.IsObserving = i >= s.RequiredPlayerCount
	}
}
