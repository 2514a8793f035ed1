package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/cards"
	"github.com/cardclash/battle-backend/internal/hub"
	"github.com/cardclash/battle-backend/internal/match"
)

func testRouter(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	library, err := cards.NewLibrary()
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, library, hub.Settings{
		Grace:          time.Minute,
		StartingHealth: 20,
		StartingHand:   4,
		DeckSize:       12,
	}, nil, zap.NewNop())

	srv := httptest.NewServer(SetupRoutes(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, h
}

func TestCreateMatch_ReturnsCode(t *testing.T) {
	srv, _ := testRouter(t)

	resp, err := srv.Client().Post(srv.URL+"/matches", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Code) != 6 {
		t.Fatalf("want 6-char code, got %q", body.Code)
	}

	// the fresh match is visible on the status endpoint
	status, err := srv.Client().Get(srv.URL + "/matches/" + body.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer status.Body.Close()
	if status.StatusCode != 200 {
		t.Fatalf("want 200, got %d", status.StatusCode)
	}
	var view struct {
		Phase     string `json:"phase"`
		Connected int    `json:"connected"`
	}
	if err := json.NewDecoder(status.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Phase != "lobby" || view.Connected != 0 {
		t.Fatalf("unexpected status view: %+v", view)
	}
}

func TestGetMatch_UnknownCode(t *testing.T) {
	srv, _ := testRouter(t)
	resp, err := srv.Client().Get(srv.URL + "/matches/NOPE00")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestGetMatch_ShutDownSessionDoesNotHang(t *testing.T) {
	srv, h := testRouter(t)

	resp, err := srv.Client().Post(srv.URL+"/matches", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	// shut the session down behind the hub's back; the handler must not
	// block on a view request the dead loop will never answer
	reply := make(chan *match.Session, 1)
	h.Inbox() <- hub.GetMatch{Code: body.Code, Reply: reply}
	session := <-reply
	if session == nil {
		t.Fatalf("freshly created match missing")
	}
	session.Inbox() <- match.Shutdown{}
	<-session.Done()

	status, err := srv.Client().Get(srv.URL + "/matches/" + body.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer status.Body.Close()
	if status.StatusCode != 404 {
		t.Fatalf("want 404 from a shut-down session, got %d", status.StatusCode)
	}
}
