package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-backend/internal/engine"
	"github.com/DoyleJ11/lobby-backend/internal/lobby"
	"github.com/DoyleJ11/lobby-backend/internal/profiles"
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	IsPrivate bool
	MatchName string
	Reply     chan Created
}

type Created struct {
	MatchID string
	Lobby   *lobby.Lobby
}

type GetLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

type RemoveLobby struct{ MatchID string }

// UpdateLabel is the label sink: lobbies republish their discovery label
// here on every change that affects it.
type UpdateLabel struct {
	MatchID string
	Label   string
}

type ListLobbies struct {
	Reply chan []Listing
}

type Listing struct {
	MatchID string
	Label   engine.Label
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (UpdateLabel) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Deps are the collaborators every lobby is wired with.
type Deps struct {
	Resolver     profiles.Resolver
	Allocator    lobby.Allocator
	Logger       *zap.Logger
	TickInterval time.Duration
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	labels  map[string]string
	deps    Deps
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		labels:  make(map[string]string),
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				matchID := uuid.NewString()
				cfg := lobby.Config{
					Resolver:     h.deps.Resolver,
					Allocator:    h.deps.Allocator,
					Logger:       h.deps.Logger,
					TickInterval: h.deps.TickInterval,
					OnLabel: func(id, label string) {
						select {
						case h.inbox <- UpdateLabel{MatchID: id, Label: label}:
						case <-h.ctx.Done():
						}
					},
					OnClose: func(id string) {
						select {
						case h.inbox <- RemoveLobby{MatchID: id}:
						case <-h.ctx.Done():
						}
					},
				}
				lb := lobby.New(h.ctx, msg.IsPrivate, msg.MatchName, matchID, cfg)
				h.lobbies[matchID] = lb
				msg.Reply <- Created{MatchID: matchID, Lobby: lb}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.MatchID] // May be nil

			case RemoveLobby:
				delete(h.lobbies, msg.MatchID)
				delete(h.labels, msg.MatchID)

			case UpdateLabel:
				if _, live := h.lobbies[msg.MatchID]; live {
					h.labels[msg.MatchID] = msg.Label
				}

			case ListLobbies:
				listings := make([]Listing, 0, len(h.labels))
				for id, raw := range h.labels {
					label, err := engine.ParseLabel(raw)
					if err != nil {
						h.deps.Logger.Warn("bad label", zap.String("match_id", id), zap.Error(err))
						continue
					}
					listings = append(listings, Listing{MatchID: id, Label: label})
				}
				msg.Reply <- listings

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Inbox() <- lobby.Shutdown{}
				}
				clear(h.lobbies)
				clear(h.labels)
				h.cancel()
			}
		}
	}
}
