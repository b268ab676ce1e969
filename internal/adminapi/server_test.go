package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/signalair/mesh/internal/meshnet"
	"github.com/signalair/mesh/internal/transport/looptransport"
	"github.com/signalair/mesh/internal/trust"
	"github.com/signalair/mesh/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *meshnet.Router) {
	t.Helper()

	hub := looptransport.NewHub()
	cfg := meshnet.DefaultConfig()
	r, err := meshnet.New(cfg, "alice", hub.Join("alice"))
	if err != nil {
		t.Fatalf("meshnet.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r.Start(ctx)
	t.Cleanup(r.Stop)

	hub.Join("bob")

	return New(r), r
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleHealth(c); err != nil {
		t.Fatalf("handleHealth: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
}

func TestHandleStatsReportsZeroedCollaborators(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleStats(c); err != nil {
		t.Fatalf("handleStats: %v", err)
	}

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Trust.Total != 0 {
		t.Errorf("Trust.Total = %d, want 0 (no peer traffic recorded yet)", resp.Trust.Total)
	}
}

func TestHandlePeersListsConnectedNeighbors(t *testing.T) {
	t.Parallel()

	s, r := newTestServer(t)

	deadline := time.Now().Add(time.Second)
	for len(r.ConnectedPeers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if len(r.ConnectedPeers()) == 0 {
		t.Fatal("bob never appeared in connected peers")
	}

	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handlePeers(c); err != nil {
		t.Fatalf("handlePeers: %v", err)
	}

	var resp []peerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "bob" {
		t.Fatalf("peers = %+v, want [{ID: bob}]", resp)
	}
}

func TestHandleUnbanClearsGuardState(t *testing.T) {
	t.Parallel()

	s, r := newTestServer(t)
	for i := 0; i < meshnet.DefaultConfig().Rate.SuspicionThreshold; i++ {
		r.FloodGuard().Admit("mallory", wire.Message{SourceID: "mallory"})
	}
	if got := r.FloodGuard().Stats().CurrentlyBanned; got != 1 {
		t.Fatalf("CurrentlyBanned before unban = %d, want 1", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/peers/mallory/unban", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("mallory")

	if err := s.handleUnban(c); err != nil {
		t.Fatalf("handleUnban: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp actionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Peer != "mallory" || resp.Action != "unban" {
		t.Errorf("resp = %+v, want {mallory unban}", resp)
	}
	if got := r.FloodGuard().Stats().CurrentlyBanned; got != 0 {
		t.Errorf("CurrentlyBanned after unban = %d, want 0", got)
	}
}

func TestHandleResetForgetsTrustScore(t *testing.T) {
	t.Parallel()

	s, r := newTestServer(t)
	r.TrustLedger().Record("mallory", trust.EventMaliciousContent)

	req := httptest.NewRequest(http.MethodPost, "/peers/mallory/reset", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("mallory")

	if err := s.handleReset(c); err != nil {
		t.Fatalf("handleReset: %v", err)
	}

	got := r.TrustLedger().ScoreOf("mallory")
	want := r.TrustLedger().ScoreOf("anyone-else-never-seen")
	if got != want {
		t.Errorf("ScoreOf(mallory) after reset = %d, want default %d", got, want)
	}
}
