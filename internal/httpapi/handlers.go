package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/engine"
	"github.com/cardclash/battle-backend/internal/hub"
	"github.com/cardclash/battle-backend/internal/match"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateMatch(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for code == "" {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *match.Session, 1)
			h.Inbox() <- hub.GetMatch{Code: c, Reply: reply}
			select {
			case s := <-reply:
				if s == nil {
					code = c
				} else {
					logger.Info("collision on code, regenerating")
				}
			case <-r.Context().Done():
				return
			}
		}

		reply := make(chan *match.Session, 1)
		h.Inbox() <- hub.CreateMatch{Code: code, Reply: reply}
		select {
		case s := <-reply:
			if s == nil {
				http.Error(w, "failed to create match", http.StatusInternalServerError)
				return
			}
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

// GetMatch reports phase and connection status, enough for a lobby screen
// to show "waiting for opponent" without opening the websocket.
func GetMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
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

		// The session can shut down between the hub lookup and the view
		// request; its Done channel bounds both the send and the wait.
		viewReply := make(chan match.View, 1)
		select {
		case session.Inbox() <- match.GetView{Reply: viewReply}:
		case <-session.Done():
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		var view match.View
		select {
		case view = <-viewReply:
		case <-session.Done():
			http.Error(w, "match not found", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		connected := 0
		for _, rec := range view.Records {
			if rec.Status == match.StatusConnected && rec.ClientID != "" {
				connected++
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Code      string       `json:"code"`
			Phase     engine.Phase `json:"phase"`
			Turn      int          `json:"turn"`
			Connected int          `json:"connected"`
		}{Code: code, Phase: view.Phase, Turn: view.State.TurnNumber, Connected: connected})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
