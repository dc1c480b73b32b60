package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var ErrNoReservation = errors.New("no reservation for session")
var ErrUnknownSession = errors.New("unknown session")

// EventType names the side effects a state change asks the host loop to
// perform. The engine never talks to the network itself.
type EventType string

const (
	EvtLobbyUpdate     EventType = "LobbyUpdate"
	EvtReadyEcho       EventType = "ReadyEcho"
	EvtLabelChanged    EventType = "LabelChanged"
	EvtLaunchRequested EventType = "LaunchRequested"
	EvtGameStarted     EventType = "GameStarted"
	EvtLobbyClosed     EventType = "LobbyClosed"
)

type Event struct {
	Type      EventType
	SessionID string          // EvtReadyEcho: who readied
	Payload   json.RawMessage // EvtGameStarted: allocator response body
	Reason    string          // EvtLobbyClosed
}

// InboundMessage is one client frame delivered into a tick's batch.
type InboundMessage struct {
	SessionID string
	OpCode    int64
}

// JoinInfo identifies a presence whose join has been confirmed by the host.
type JoinInfo struct {
	SessionID string
	UserID    string
}

// LaunchResult is the allocator's completion, delivered to the lobby loop as
// a message and applied with ApplyLaunchResult.
type LaunchResult struct {
	Allocation *Allocation
	Err        error
}

// AttemptAdmit reserves a slot for the candidate if the lobby still has room
// and hasn't started launching. Rejection leaves the state untouched.
func AttemptAdmit(s State, sessionID string) (State, bool) {
	if !s.CanJoin || len(s.Players) >= s.RequiredPlayerCount+s.AllowedObservers {
		return s, false
	}
	if _, ok := s.Players[sessionID]; ok {
		// A session holds at most one slot.
		return s, false
	}
	s.Players[sessionID] = &Player{
		SessionID:  sessionID,
		SlotNumber: s.SlotNumber,
	}
	s.SlotNumber++
	return s, true
}

// ConfirmJoin fills in the reserved slots for presences that completed their
// join, resolving display names through resolve. A confirmation without a
// reservation is a protocol violation by the host; a failed profile lookup
// releases that slot. Either way the rest of the batch still goes through,
// with the failures aggregated into the returned error.
func ConfirmJoin(s State, joins []JoinInfo, resolve func(userID string) (string, error)) (State, []Event, error) {
	var errs error
	for _, j := range joins {
		p, ok := s.Players[j.SessionID]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("confirm join %s: %w", j.SessionID, ErrNoReservation))
			continue
		}
		name, err := resolve(j.UserID)
		if err != nil {
			delete(s.Players, j.SessionID)
			errs = multierr.Append(errs, fmt.Errorf("confirm join %s: %w", j.SessionID, err))
			continue
		}
		p.Joined = true
		p.UserID = j.UserID
		p.DisplayName = name
		s.PlayerCount++
	}

	if s.PlayerCount >= s.RequiredPlayerCount {
		s.GameState = s.GameState.advance(WaitingForPlayersReady)
	}

	updateObserverFlags(s)
	events := []Event{{Type: EvtLobbyUpdate}, {Type: EvtLabelChanged}}
	return s, events, errs
}

// HandleLeave removes the departing sessions. Slots that never completed
// join don't count toward PlayerCount, so only confirmed players decrement
// it. Slot numbers are never reassigned.
func HandleLeave(s State, sessionIDs []string) (State, []Event) {
	for _, id := range sessionIDs {
		p, ok := s.Players[id]
		if !ok {
			continue
		}
		delete(s.Players, id)
		if p.Joined {
			s.PlayerCount--
		}
	}
	updateObserverFlags(s)
	return s, []Event{{Type: EvtLobbyUpdate}, {Type: EvtLabelChanged}}
}

// ApplyLaunchResult stores the allocator's outcome. Outcomes are written at
// most once; the launch edge only fires once so a second result has nowhere
// to come from, but guard anyway.
func ApplyLaunchResult(s State, res LaunchResult) State {
	if s.Launch.Status != LaunchPending {
		return s
	}
	if res.Err != nil {
		s.Launch = LaunchOutcome{Status: LaunchFailed, Err: res.Err}
	} else {
		s.Launch = LaunchOutcome{Status: LaunchSucceeded, Allocation: res.Allocation}
	}
	return s
}

// Tick runs one step of the lobby state machine over the batch of client
// messages delivered since the previous tick. An EvtLobbyClosed event in the
// result marks this as the lobby's terminal tick.
func Tick(s State, msgs []InboundMessage) (State, []Event, error) {
	var events []Event
	var errs error

	if s.PlayerCount == 0 {
		s.EmptyTicks++
	} else {
		s.EmptyTicks = 0
	}

	readySeen := false
	for _, m := range msgs {
		switch m.OpCode {
		case OpReady:
			p, ok := s.Players[m.SessionID]
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("ready from %s: %w", m.SessionID, ErrUnknownSession))
				continue
			}
			p.IsReady = true
			events = append(events, Event{Type: EvtReadyEcho, SessionID: m.SessionID})
			readySeen = true
		default:
			// Unknown op-codes are a forward-compatible no-op.
		}
	}
	if readySeen {
		// One coalesced update no matter how many readies arrived.
		events = append(events, Event{Type: EvtLobbyUpdate})
	}

	switch s.GameState {
	case Launching:
		switch s.Launch.Status {
		case LaunchSucceeded:
			s.GameState = s.GameState.advance(InProgress)
			events = append(events, Event{Type: EvtGameStarted, Payload: s.Launch.Allocation.Raw})
		case LaunchFailed:
			events = append(events, Event{Type: EvtLobbyClosed, Reason: "allocation failed"})
			return s, events, multierr.Append(errs, s.Launch.Err)
		}
	case WaitingForPlayersReady:
		if allActiveReady(s) {
			s.CanJoin = false
			s.GameState = s.GameState.advance(Launching)
			events = append(events,
				Event{Type: EvtLabelChanged},
				Event{Type: EvtLaunchRequested},
			)
		}
	}

	if s.EmptyTicks >= MaxEmptyTicks && !launchInFlight(s) {
		events = append(events, Event{Type: EvtLobbyClosed, Reason: "empty"})
	}

	return s, events, errs
}

// allActiveReady reports whether every non-observing slot has readied up.
// Players can leave after the lobby reached WaitingForPlayersReady, so the
// count guard keeps a half-empty lobby from launching vacuously.
func allActiveReady(s State) bool {
	if s.PlayerCount < s.RequiredPlayerCount {
		return false
	}
	for _, p := range s.Players {
		if !p.IsObserving && !p.IsReady {
			return false
		}
	}
	return true
}

func launchInFlight(s State) bool {
	return s.GameState == Launching && s.Launch.Status == LaunchPending
}
