package lobby

import (
	"github.com/DoyleJ11/lobby-backend/internal/engine"
	"github.com/DoyleJ11/lobby-backend/internal/types"
)

type Msg interface{ isLobbyMsg() }

// JoinAttempt asks for a slot reservation before the transport completes the
// client's handshake.
type JoinAttempt struct {
	SessionID string
	Reply     chan JoinDecision
}

type JoinDecision struct {
	Accepted bool
	Reason   string
}

// Join confirms a previously reserved session and registers its outbox.
type Join struct {
	SessionID string
	UserID    string
	Outbox    chan types.ServerMessage
}

type Leave struct{ SessionID string }

// FromClient is one inbound frame; the loop batches these until the next tick.
type FromClient struct {
	SessionID string
	Op        int64
}

// LaunchResult carries the allocator's completion back into the loop.
type LaunchResult struct {
	Allocation *engine.Allocation
	Err        error
}

// Signal is the out-of-band administrative extension point; it echoes its
// input for now.
type Signal struct {
	Data  string
	Reply chan string
}

// Terminate is a host-driven stop notice with a grace period. Currently a
// pass-through.
type Terminate struct{ GraceSeconds int }

// GetState reflects internal state without data races; used by tests.
type GetState struct {
	Reply chan View
}

type View struct {
	State      engine.State
	NumClients int
	Label      string
	Tick       int64
}

type Shutdown struct{}

func (JoinAttempt) isLobbyMsg()  {}
func (Join) isLobbyMsg()         {}
func (Leave) isLobbyMsg()        {}
func (FromClient) isLobbyMsg()   {}
func (LaunchResult) isLobbyMsg() {}
func (Signal) isLobbyMsg()       {}
func (Terminate) isLobbyMsg()    {}
func (GetState) isLobbyMsg()     {}
func (Shutdown) isLobbyMsg()     {}
