package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
	"github.com/DoyleJ11/lobby-backend/internal/types"
)

type fakeResolver struct{}

func (fakeResolver) DisplayName(ctx context.Context, userID string) (string, error) {
	return "name-" + userID, nil
}

type stubAllocator struct {
	alloc   *engine.Allocation
	err     error
	release chan struct{} // closed by the test to let the call return
	calls   atomic.Int32
}

func (a *stubAllocator) Allocate(ctx context.Context, matchID string) (*engine.Allocation, error) {
	a.calls.Add(1)
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.alloc, a.err
}

// helper: receive one frame with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return types.ServerMessage{} // unreachable
	}
}

// recvOp drains frames until one with the wanted op-code arrives.
func recvOp(t *testing.T, ch <-chan types.ServerMessage, op int64, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for op %d", op)
			}
			if msg.Op == op {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for op %d", op)
			return types.ServerMessage{} // unreachable
		}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func waitClosed(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox never closed")
		}
	}
}

func joinPlayer(t *testing.T, l *Lobby, sessionID string) chan types.ServerMessage {
	t.Helper()
	decision := make(chan JoinDecision, 1)
	l.Inbox() <- JoinAttempt{SessionID: sessionID, Reply: decision}
	if d := <-decision; !d.Accepted {
		t.Fatalf("join attempt %s rejected: %s", sessionID, d.Reason)
	}
	out := make(chan types.ServerMessage, 16)
	l.Inbox() <- Join{SessionID: sessionID, UserID: "u-" + sessionID, Outbox: out}
	return out
}

func TestLobby_JoinAttemptRejectsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, false, "m", "match-1", Config{
		Resolver:  fakeResolver{},
		Allocator: &stubAllocator{},
	})

	for i := 1; i <= engine.RequiredPlayerCount+engine.AllowedObservers; i++ {
		decision := make(chan JoinDecision, 1)
		l.Inbox() <- JoinAttempt{SessionID: fmt.Sprintf("p%d", i), Reply: decision}
		if d := <-decision; !d.Accepted {
			t.Fatalf("p%d: want accepted", i)
		}
	}

	decision := make(chan JoinDecision, 1)
	l.Inbox() <- JoinAttempt{SessionID: "p6", Reply: decision}
	if d := <-decision; d.Accepted {
		t.Fatalf("p6: want rejected")
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_JoinBroadcastsLobbyUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, false, "m", "match-1", Config{
		Resolver:  fakeResolver{},
		Allocator: &stubAllocator{},
	})

	out := joinPlayer(t, l, "p1")
	msg := recvOp(t, out, engine.OpLobbyUpdate, time.Second)
	if msg.Payload == nil {
		t.Fatalf("lobby update with no payload")
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)
	if view.State.PlayerCount != 1 || !view.State.Players["p1"].Joined {
		t.Fatalf("join not reflected in state: %+v", view.State)
	}
	if view.State.Players["p1"].DisplayName != "name-u-p1" {
		t.Fatalf("display name = %q, want resolved profile", view.State.Players["p1"].DisplayName)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_ReadyFlowLaunchesAndStartsGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alloc := &stubAllocator{alloc: &engine.Allocation{
		ServerAddress: "10.0.0.7",
		Port:          7777,
		MatchID:       "match-1",
		Raw:           []byte(`{"serverAddress":"10.0.0.7","port":7777,"matchId":"match-1"}`),
	}}
	l := New(ctx, false, "m", "match-1", Config{
		Resolver:     fakeResolver{},
		Allocator:    alloc,
		TickInterval: time.Millisecond,
	})

	out1 := joinPlayer(t, l, "p1")
	_ = joinPlayer(t, l, "p2")

	l.Inbox() <- FromClient{SessionID: "p1", Op: engine.OpReady}
	l.Inbox() <- FromClient{SessionID: "p2", Op: engine.OpReady}

	// Ready echo, then the game-start broadcast carrying the allocator body.
	_ = recvOp(t, out1, engine.OpReady, time.Second)
	start := recvOp(t, out1, engine.OpGameStart, time.Second)
	if string(start.Payload) != string(alloc.alloc.Raw) {
		t.Fatalf("game start payload = %s", start.Payload)
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)
	if view.State.GameState != engine.InProgress {
		t.Fatalf("GameState = %v, want InProgress", view.State.GameState)
	}
	if view.State.CanJoin {
		t.Fatalf("CanJoin still true after launch")
	}

	// Later ticks re-evaluate nothing: the allocator was hit exactly once.
	time.Sleep(20 * time.Millisecond)
	if got := alloc.calls.Load(); got != 1 {
		t.Fatalf("allocator calls = %d, want 1", got)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_LaunchFailureTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closed := make(chan string, 1)
	l := New(ctx, false, "m", "match-1", Config{
		Resolver:     fakeResolver{},
		Allocator:    &stubAllocator{err: errors.New("allocator unreachable")},
		TickInterval: time.Millisecond,
		OnClose:      func(id string) { closed <- id },
	})

	out1 := joinPlayer(t, l, "p1")
	_ = joinPlayer(t, l, "p2")

	l.Inbox() <- FromClient{SessionID: "p1", Op: engine.OpReady}
	l.Inbox() <- FromClient{SessionID: "p2", Op: engine.OpReady}

	select {
	case id := <-closed:
		if id != "match-1" {
			t.Fatalf("closed lobby %q, want match-1", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("lobby never tore down after failed launch")
	}
	waitClosed(t, out1, time.Second)
}

func TestLobby_LaunchResultAppliedBetweenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	alloc := &stubAllocator{
		alloc:   &engine.Allocation{Raw: []byte(`{"matchId":"match-1"}`)},
		release: release,
	}
	l := New(ctx, false, "m", "match-1", Config{
		Resolver:     fakeResolver{},
		Allocator:    alloc,
		TickInterval: time.Millisecond,
	})

	out1 := joinPlayer(t, l, "p1")
	_ = joinPlayer(t, l, "p2")
	l.Inbox() <- FromClient{SessionID: "p1", Op: engine.OpReady}
	l.Inbox() <- FromClient{SessionID: "p2", Op: engine.OpReady}

	// Many ticks pass while the allocation is in flight.
	time.Sleep(20 * time.Millisecond)
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)
	if view.State.GameState != engine.Launching {
		t.Fatalf("GameState = %v while allocation in flight, want Launching", view.State.GameState)
	}

	close(release)
	start := recvOp(t, out1, engine.OpGameStart, time.Second)
	if start.Payload == nil {
		t.Fatalf("empty game start payload")
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_EmptyLobbyTimesOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closed := make(chan string, 1)
	start := time.Now()
	New(ctx, false, "m", "match-1", Config{
		Resolver:     fakeResolver{},
		Allocator:    &stubAllocator{},
		TickInterval: time.Millisecond,
		OnClose:      func(id string) { closed <- id },
	})

	select {
	case <-closed:
		// 300 empty ticks at 1ms; anything well short of that is a bug.
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Fatalf("lobby closed after %v, too early for the empty timeout", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("empty lobby never timed out")
	}
}

func TestLobby_LeaveResetsNothingForReservedSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, false, "m", "match-1", Config{
		Resolver:  fakeResolver{},
		Allocator: &stubAllocator{},
	})

	_ = joinPlayer(t, l, "p1")

	// p2 reserves but never confirms, then leaves.
	decision := make(chan JoinDecision, 1)
	l.Inbox() <- JoinAttempt{SessionID: "p2", Reply: decision}
	<-decision
	l.Inbox() <- Leave{SessionID: "p2"}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)
	if view.State.PlayerCount != 1 {
		t.Fatalf("PlayerCount = %d, want 1", view.State.PlayerCount)
	}
	if _, held := view.State.Players["p2"]; held {
		t.Fatalf("reserved slot not removed")
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_SignalEchoes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, false, "m", "match-1", Config{
		Resolver:  fakeResolver{},
		Allocator: &stubAllocator{},
	})

	reply := make(chan string, 1)
	l.Inbox() <- Signal{Data: "ping", Reply: reply}
	select {
	case got := <-reply:
		if got != "ping" {
			t.Fatalf("signal echo = %q, want ping", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("signal never replied")
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_LabelPublishedOnMembershipChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	labels := make(chan string, 16)
	l := New(ctx, false, "m", "match-1", Config{
		Resolver:  fakeResolver{},
		Allocator: &stubAllocator{},
		OnLabel:   func(id, label string) { labels <- label },
	})

	// Initial label at creation.
	initial, err := engine.ParseLabel(<-labels)
	if err != nil {
		t.Fatalf("initial label: %v", err)
	}
	if initial.PlayerCount != 0 || initial.CanJoin != "true" {
		t.Fatalf("initial label: %+v", initial)
	}

	_ = joinPlayer(t, l, "p1")
	select {
	case raw := <-labels:
		label, err := engine.ParseLabel(raw)
		if err != nil {
			t.Fatalf("label after join: %v", err)
		}
		if label.PlayerCount != 1 {
			t.Fatalf("label PlayerCount = %d after join, want 1", label.PlayerCount)
		}
	case <-time.After(time.Second):
		t.Fatalf("no label republished on join")
	}

	l.Inbox() <- Shutdown{}
}
