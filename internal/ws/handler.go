package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/engine"
	"github.com/cardclash/battle-backend/internal/hub"
	"github.com/cardclash/battle-backend/internal/match"
	"github.com/cardclash/battle-backend/internal/types"
)

// Handler upgrades a connection and bridges it to the match session: one
// writer goroutine draining the session outbox, the request goroutine
// reading client actions. Any exit funnels into Disconnected, which is
// what arms the grace protocol.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")

		reply := make(chan *match.Session, 1)
		h.Inbox() <- hub.GetMatch{Code: code, Reply: reply}
		var session *match.Session
		select {
		case session = <-reply:
		case <-r.Context().Done():
			return
		}
		if session == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		outbox := make(chan match.Outbound, 8)

		connReply := make(chan match.ConnectResult, 1)
		if !enqueue(session, match.Connect{ClientID: clientID, Token: token, Outbox: outbox, Reply: connReply}) {
			return
		}
		var res match.ConnectResult
		select {
		case res = <-connReply:
		case <-session.Done():
			return
		case <-r.Context().Done():
			return
		}
		if res.Err != nil {
			msg, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: res.Err.Error()})
			_ = conn.Write(r.Context(), websocket.MessageText, msg)
			return
		}
		defer enqueue(session, match.Disconnected{ClientID: clientID})

		welcome, _ := json.Marshal(types.ServerMessage{Type: "Welcome", PlayerID: res.Player, Token: res.Token})
		if err := conn.Write(r.Context(), websocket.MessageText, welcome); err != nil {
			return
		}

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for out := range outbox {
				payload, err := json.Marshal(toServerMessage(out))
				if err != nil {
					logger.Error("marshal outbound", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close or drop: either way the session decides
				// whether a grace window opens (Disconnected in defer).
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"bad json"}`))
				continue
			}

			if cm.Type == "RequestSnapshot" {
				if !enqueue(session, match.RequestSnapshot{ClientID: clientID}) {
					return
				}
				continue
			}

			act, ok := toAction(cm, res.Player)
			if !ok {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"unknown type"}`))
				continue
			}

			if !enqueue(session, match.FromClient{ClientID: clientID, Action: act}) {
				return
			}
		}
	}
}

// enqueue delivers a message to the session unless it has already shut
// down, reporting whether the send happened.
func enqueue(session *match.Session, msg match.Msg) bool {
	select {
	case session.Inbox() <- msg:
		return true
	case <-session.Done():
		return false
	}
}

func toAction(m types.ClientMessage, player engine.PlayerID) (engine.Action, bool) {
	act := engine.Action{Player: player}
	switch m.Type {
	case "PlayCard":
		act.Kind = engine.ActPlayCard
		act.Card = m.Card
		act.Slot = m.Slot
	case "Attack":
		act.Kind = engine.ActAttack
		act.Attacker = m.Attacker
		if m.Target == nil {
			return engine.Action{}, false
		}
		act.Target = *m.Target
	case "UseAbility":
		act.Kind = engine.ActUseAbility
		act.Card = m.Card
		if m.Target == nil {
			return engine.Action{}, false
		}
		act.Target = *m.Target
	case "EndTurn":
		act.Kind = engine.ActEndTurn
	case "Concede":
		act.Kind = engine.ActConcede
	default:
		return engine.Action{}, false
	}
	return act, true
}

func toServerMessage(out match.Outbound) types.ServerMessage {
	switch o := out.(type) {
	case match.Snapshot:
		return types.ServerMessage{Type: "Snapshot", Seq: o.Seq, State: o.State}
	case match.Delta:
		return types.ServerMessage{Type: "Delta", Seq: o.Seq, Events: o.Events}
	case match.Rejected:
		return types.ServerMessage{Type: "Rejected", Action: string(o.Action), Reason: o.Reason}
	case match.ConnectionNotice:
		return types.ServerMessage{Type: "Opponent", Opponent: o.Player, Status: string(o.Status), Phase: o.Phase}
	default:
		return types.ServerMessage{Type: "Error", Error: "unknown outbound"}
	}
}
