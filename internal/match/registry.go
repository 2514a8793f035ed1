package match

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cardclash/battle-backend/internal/engine"
)

var ErrMatchFull = errors.New("match is full")
var ErrBadToken = errors.New("unknown or mismatched session token")
var ErrMatchOver = errors.New("match already ended")
var ErrDuplicateConn = errors.New("player already has a live connection")

type Status string

const (
	StatusConnected Status = "connected"
	StatusGrace     Status = "disconnected_in_grace"
	StatusForfeited Status = "forfeited"
)

// ConnectionRecord binds a logical player id to at most one live transport
// connection, plus the session token that proves identity on reconnect.
type ConnectionRecord struct {
	Player         engine.PlayerID
	Token          string
	ClientID       string // current transport binding, empty while down
	Status         Status
	Claimed        bool
	DisconnectedAt time.Time
}

// registry tracks both seats of a match. It is owned by the session
// goroutine; no locking needed.
type registry struct {
	records [2]*ConnectionRecord
}

func newRegistry(a, b engine.PlayerID) *registry {
	return &registry{records: [2]*ConnectionRecord{
		{Player: a, Token: uuid.NewString()},
		{Player: b, Token: uuid.NewString()},
	}}
}

// claim seats an unseen transport identity on the first free seat.
func (r *registry) claim(clientID string) (*ConnectionRecord, error) {
	for _, rec := range r.records {
		if !rec.Claimed {
			rec.Claimed = true
			rec.ClientID = clientID
			rec.Status = StatusConnected
			return rec, nil
		}
	}
	return nil, ErrMatchFull
}

// resolve finds the seat a reconnection token belongs to. A token for a
// seat that already has a live connection is the "two live connections
// for one player id" invariant breach; the caller force-ends the match.
func (r *registry) resolve(token, clientID string) (*ConnectionRecord, error) {
	for _, rec := range r.records {
		if rec.Token != token {
			continue
		}
		if rec.Status == StatusForfeited {
			return nil, ErrMatchOver
		}
		if rec.Status == StatusConnected && rec.ClientID != "" {
			return rec, ErrDuplicateConn
		}
		rec.ClientID = clientID
		rec.Status = StatusConnected
		return rec, nil
	}
	return nil, ErrBadToken
}

func (r *registry) byClient(clientID string) *ConnectionRecord {
	if clientID == "" {
		return nil
	}
	for _, rec := range r.records {
		if rec.ClientID == clientID {
			return rec
		}
	}
	return nil
}

func (r *registry) byPlayer(id engine.PlayerID) *ConnectionRecord {
	for _, rec := range r.records {
		if rec.Player == id {
			return rec
		}
	}
	return nil
}

// markDisconnected drops the transport binding but keeps the seat: a
// player id in grace is never reassigned to a different identity.
func (r *registry) markDisconnected(rec *ConnectionRecord, at time.Time) {
	rec.ClientID = ""
	rec.Status = StatusGrace
	rec.DisconnectedAt = at
}

func (r *registry) connectedCount() int {
	n := 0
	for _, rec := range r.records {
		if rec.Status == StatusConnected && rec.ClientID != "" {
			n++
		}
	}
	return n
}

// inGrace returns a claimed seat currently waiting out its grace window.
func (r *registry) inGrace() *ConnectionRecord {
	for _, rec := range r.records {
		if rec.Claimed && rec.Status == StatusGrace {
			return rec
		}
	}
	return nil
}

func (r *registry) bothSeated() bool {
	return r.records[0].Claimed && r.records[1].Claimed
}

func (r *registry) snapshot() []ConnectionRecord {
	out := make([]ConnectionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}
