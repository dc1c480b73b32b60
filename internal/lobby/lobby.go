package lobby

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
	"github.com/DoyleJ11/lobby-backend/internal/profiles"
	"github.com/DoyleJ11/lobby-backend/internal/types"
)

// Allocator is the launch coordinator's outbound dependency.
type Allocator interface {
	Allocate(ctx context.Context, matchID string) (*engine.Allocation, error)
}

type Config struct {
	Resolver  profiles.Resolver
	Allocator Allocator
	Logger    *zap.Logger

	// TickInterval overrides the engine tick rate; tests use a short one.
	TickInterval time.Duration

	// OnLabel receives every republished label; OnClose fires once when the
	// lobby's terminal tick has run or it was shut down.
	OnLabel func(matchID, label string)
	OnClose func(matchID string)
}

// Lobby runs one matchmaking lobby as a single goroutine. All state lives
// behind the inbox: membership events, client frames, the periodic tick and
// the allocator's completion are serialized through the same loop, so
// nothing else ever touches engine.State.
type Lobby struct {
	inbox   chan Msg
	state   engine.State
	tick    int64
	pending []engine.InboundMessage
	clients map[string]chan types.ServerMessage
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, isPrivate bool, matchName, matchID string, cfg Config) *Lobby {
	state, tickRate, label := engine.Initialize(isPrivate, matchName, matchID)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second / time.Duration(tickRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   state,
		clients: make(map[string]chan types.ServerMessage),
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("match_id", matchID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	l.publishLabel(label)

	go l.loop()
	return l
}

// Inbox exposes the message channel to the transport layer and tests.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) loop() {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-ticker.C:
			if l.runTick() {
				l.shutdown()
				return
			}

		case m := <-l.inbox:
			switch msg := m.(type) {
			case JoinAttempt:
				next, ok := engine.AttemptAdmit(l.state, msg.SessionID)
				l.state = next
				decision := JoinDecision{Accepted: ok}
				if !ok {
					decision.Reason = "match full"
				}
				msg.Reply <- decision

			case Join:
				l.clients[msg.SessionID] = msg.Outbox
				next, events, err := engine.ConfirmJoin(l.state,
					[]engine.JoinInfo{{SessionID: msg.SessionID, UserID: msg.UserID}},
					l.resolve)
				l.state = next
				if err != nil {
					l.log.Error("join confirm", zap.String("session_id", msg.SessionID), zap.Error(err))
					if _, held := l.state.Players[msg.SessionID]; !held {
						// The slot was released; drop the connection's outbox too.
						close(msg.Outbox)
						delete(l.clients, msg.SessionID)
					}
				}
				l.apply(events)

			case Leave:
				if ch, ok := l.clients[msg.SessionID]; ok {
					close(ch)
					delete(l.clients, msg.SessionID)
				}
				next, events := engine.HandleLeave(l.state, []string{msg.SessionID})
				l.state = next
				l.apply(events)

			case FromClient:
				// Buffered into the next tick's batch, preserving delivery order.
				l.pending = append(l.pending, engine.InboundMessage{SessionID: msg.SessionID, OpCode: msg.Op})

			case LaunchResult:
				l.state = engine.ApplyLaunchResult(l.state, engine.LaunchResult{
					Allocation: msg.Allocation,
					Err:        msg.Err,
				})

			case Signal:
				msg.Reply <- msg.Data

			case Terminate:
				// Reserved for future cleanup; currently a pass-through.

			case GetState:
				msg.Reply <- View{
					State:      l.state,
					NumClients: len(l.clients),
					Label:      engine.BuildLabel(l.state),
					Tick:       l.tick,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// runTick drains the pending client frames into one engine tick and executes
// the resulting effects. Returns true on the lobby's terminal tick.
func (l *Lobby) runTick() bool {
	l.tick++
	batch := l.pending
	l.pending = nil

	next, events, err := engine.Tick(l.state, batch)
	l.state = next
	if err != nil {
		l.log.Warn("tick", zap.Int64("tick", l.tick), zap.Error(err))
	}
	return l.apply(events)
}

func (l *Lobby) apply(events []engine.Event) (closed bool) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtLobbyUpdate:
			l.broadcast(engine.OpLobbyUpdate, toPayload(types.NewLobbyUpdate(l.state)))
		case engine.EvtReadyEcho:
			l.broadcast(engine.OpReady, toPayload(types.ReadyEcho{SessionID: ev.SessionID}))
		case engine.EvtLabelChanged:
			l.publishLabel(engine.BuildLabel(l.state))
		case engine.EvtLaunchRequested:
			l.requestAllocation()
		case engine.EvtGameStarted:
			l.broadcast(engine.OpGameStart, ev.Payload)
		case engine.EvtLobbyClosed:
			l.log.Info("lobby closed", zap.String("reason", ev.Reason))
			closed = true
		}
	}
	return closed
}

// requestAllocation fires the single outbound allocation call. The result
// re-enters through the inbox so only the loop ever applies it.
func (l *Lobby) requestAllocation() {
	matchID := l.state.MatchID
	l.log.Info("requesting allocation")
	go func() {
		alloc, err := l.cfg.Allocator.Allocate(l.ctx, matchID)
		select {
		case l.inbox <- LaunchResult{Allocation: alloc, Err: err}:
		case <-l.ctx.Done():
		}
	}()
}

func (l *Lobby) broadcast(op int64, payload json.RawMessage) {
	msg := types.ServerMessage{Op: op, Payload: payload}
	for id, ch := range l.clients {
		select {
		case ch <- msg:
		default:
			// Client is slow/full - drop them. The reader will send Leave.
			close(ch)
			delete(l.clients, id)
		}
	}
}

func (l *Lobby) publishLabel(label string) {
	if l.cfg.OnLabel != nil {
		l.cfg.OnLabel(l.state.MatchID, label)
	}
}

func (l *Lobby) resolve(userID string) (string, error) {
	return l.cfg.Resolver.DisplayName(l.ctx, userID)
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch)
		delete(l.clients, id)
	}
	if l.cfg.OnClose != nil {
		l.cfg.OnClose(l.state.MatchID)
	}
	l.cancel()
}

func toPayload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
