// Package hub owns the set of live match sessions. Like the sessions it
// manages, it is a single goroutine fed by a typed inbox.
package hub

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/cards"
	"github.com/cardclash/battle-backend/internal/engine"
	"github.com/cardclash/battle-backend/internal/match"
)

type HubMsg interface{ isHubMsg() }

type CreateMatch struct {
	Code  string
	Reply chan *match.Session
}

type GetMatch struct {
	Code  string
	Reply chan *match.Session
}

type RemoveMatch struct {
	Code string
}

type ShutdownHub struct{}

func (CreateMatch) isHubMsg() {}
func (GetMatch) isHubMsg()    {}
func (RemoveMatch) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Recorder receives finished-match results. Implementations get a context
// with a deadline; a failure is logged, never fatal.
type Recorder interface {
	RecordResult(ctx context.Context, res match.Result) error
}

// Settings are the knobs a session is created with.
type Settings struct {
	Grace          time.Duration
	StartingHealth int
	StartingHand   int
	DeckSize       int
}

type Hub struct {
	inbox    chan HubMsg
	matches  map[string]*match.Session
	library  *cards.Library
	deps     engine.Deps
	settings Settings
	recorder Recorder
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, library *cards.Library, settings Settings, recorder Recorder, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		matches: make(map[string]*match.Session),
		library: library,
		deps: engine.Deps{
			Library:  library,
			Resolver: cards.NewResolver(),
		},
		settings: settings,
		recorder: recorder,
		logger:   logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateMatch:
				if s := h.matches[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := h.newSession(msg.Code)
				h.matches[msg.Code] = s
				msg.Reply <- s

			case GetMatch:
				msg.Reply <- h.matches[msg.Code] // may be nil

			case RemoveMatch:
				if s := h.matches[msg.Code]; s != nil {
					s.Inbox() <- match.Shutdown{}
					delete(h.matches, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.matches {
		s.Inbox() <- match.Shutdown{}
	}
	clear(h.matches)
	h.cancel()
}

func (h *Hub) newSession(code string) *match.Session {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	setup := engine.Setup{
		StartingHealth: h.settings.StartingHealth,
		StartingHand:   h.settings.StartingHand,
		DeckSize:       h.settings.DeckSize,
	}
	a := engine.PlayerID("p1-" + code)
	b := engine.PlayerID("p2-" + code)
	state := engine.NewMatch(setup, a, b,
		h.library.BuildDeck(rng, h.settings.DeckSize),
		h.library.BuildDeck(rng, h.settings.DeckSize))

	h.logger.Info("match created", zap.String("code", code))
	return match.NewSession(h.ctx, code, state, h.deps, h.settings.Grace, h.logger, h.onMatchEnd)
}

// onMatchEnd runs on a session goroutine: record the result, then ask the
// hub loop to reap the session.
func (h *Hub) onMatchEnd(res match.Result) {
	if h.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.recorder.RecordResult(ctx, res); err != nil {
			h.logger.Warn("recording match result failed",
				zap.String("code", res.Code), zap.Error(err))
		}
	}
	select {
	case h.inbox <- RemoveMatch{Code: res.Code}:
	case <-h.ctx.Done():
	}
}
