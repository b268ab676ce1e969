// Package adminapi is the read-only introspection HTTP API: /stats,
// /peers, /events, plus the unban/reset administrative operations
// against the Rate/Flood Guard and Trust Ledger. It is deliberately not
// an administrative dashboard: no control surface exists beyond those
// two named operations.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/signalair/mesh/internal/meshnet"
	"github.com/signalair/mesh/internal/wire"
)

const ringCapacity = 256

// Server is the Echo application exposing a meshnet.Router's
// introspection surface.
type Server struct {
	echo   *echo.Echo
	router *meshnet.Router
	ring   *eventRing
	hub    *subscriberHub
}

// New constructs the admin API bound to router. Call Run to start both
// the event pump and the HTTP listener.
func New(router *meshnet.Router) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:   e,
		router: router,
		ring:   newEventRing(ringCapacity),
		hub:    newSubscriberHub(),
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/peers", s.handlePeers)
	s.echo.GET("/events", s.handleEvents)
	s.echo.POST("/peers/:id/unban", s.handleUnban)
	s.echo.POST("/peers/:id/reset", s.handleReset)
}

// Run starts the event pump and Echo, and blocks until ctx cancellation
// or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	events, unsubscribe := s.router.Subscribe()
	go s.pumpEvents(ctx, events, unsubscribe)

	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	}
}

// pumpEvents drains the router's independent event subscription into
// the flight-recorder ring and fans each event out to live SSE
// subscribers, until ctx is done.
func (s *Server) pumpEvents(ctx context.Context, events <-chan meshnet.SecurityEvent, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.ring.push(ev)
			s.hub.broadcast(ev)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			return nil
		}
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type statsResponse struct {
	PeersConnected      int                `json:"peers_connected"`
	OutboundQueueDepth  int                `json:"outbound_queue_depth"`
	DedupCacheOccupancy int                `json:"dedup_cache_occupancy"`
	DedupCacheCapacity  int                `json:"dedup_cache_capacity"`
	Trust               trustStatsResponse `json:"trust"`
	Flood               floodStatsResponse `json:"flood"`
}

type trustStatsResponse struct {
	Total       int     `json:"total"`
	Trusted     int     `json:"trusted"`
	Normal      int     `json:"normal"`
	Suspicious  int     `json:"suspicious"`
	Untrusted   int     `json:"untrusted"`
	Blacklisted int     `json:"blacklisted"`
	Average     float64 `json:"average"`
}

type floodStatsResponse struct {
	CurrentlyBanned int `json:"currently_banned"`
	Strike1         int `json:"strike1"`
	Strike2         int `json:"strike2"`
	StrikeFinal     int `json:"strike_final"`
	TotalHistory    int `json:"total_history"`
}

func (s *Server) handleStats(c echo.Context) error {
	dedup := s.router.DedupCache().Stats()
	trust := s.router.TrustLedger().Statistics()
	flood := s.router.FloodGuard().Stats()

	return c.JSON(http.StatusOK, statsResponse{
		PeersConnected:      len(s.router.ConnectedPeers()),
		OutboundQueueDepth:  s.router.QueueDepth(),
		DedupCacheOccupancy: dedup.Count,
		DedupCacheCapacity:  dedup.Capacity,
		Trust: trustStatsResponse{
			Total:       trust.Total,
			Trusted:     trust.Trusted,
			Normal:      trust.Normal,
			Suspicious:  trust.Suspicious,
			Untrusted:   trust.Untrusted,
			Blacklisted: trust.Blacklisted,
			Average:     trust.Average,
		},
		Flood: floodStatsResponse{
			CurrentlyBanned: flood.CurrentlyBanned,
			Strike1:         flood.Strike1,
			Strike2:         flood.Strike2,
			StrikeFinal:     flood.StrikeFinal,
			TotalHistory:    flood.TotalHistory,
		},
	})
}

type peerResponse struct {
	ID    string `json:"id"`
	Score int    `json:"trust_score"`
	Tier  string `json:"trust_tier"`
}

func (s *Server) handlePeers(c echo.Context) error {
	peers := s.router.ConnectedPeers()
	out := make([]peerResponse, 0, len(peers))
	for _, id := range peers {
		out = append(out, peerResponse{
			ID:    string(id),
			Score: s.router.TrustLedger().ScoreOf(id),
			Tier:  s.router.TrustLedger().TierOf(id).String(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type eventResponse struct {
	At       string `json:"at"`
	Kind     string `json:"kind"`
	Peer     string `json:"peer,omitempty"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

func toEventResponse(ev meshnet.SecurityEvent) eventResponse {
	return eventResponse{
		At:       ev.At.Format(time.RFC3339Nano),
		Kind:     ev.Kind.String(),
		Peer:     string(ev.Peer),
		Severity: ev.Severity.String(),
		Detail:   ev.Detail,
	}
}

// handleEvents streams SecurityEvents as Server-Sent Events: the ring
// buffer's recent history first, then live events until the client
// disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for _, ev := range s.ring.snapshot() {
		if err := writeSSE(resp, toEventResponse(ev)); err != nil {
			return err
		}
	}
	resp.Flush()

	live := s.hub.subscribe()
	defer s.hub.unsubscribe(live)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if err := writeSSE(resp, toEventResponse(ev)); err != nil {
				return err
			}
			resp.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, payload eventResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}

type actionResponse struct {
	Peer   string `json:"peer"`
	Action string `json:"action"`
}

func (s *Server) handleUnban(c echo.Context) error {
	id := wire.PeerID(c.Param("id"))
	s.router.FloodGuard().Unban(id)
	return c.JSON(http.StatusOK, actionResponse{Peer: string(id), Action: "unban"})
}

func (s *Server) handleReset(c echo.Context) error {
	id := wire.PeerID(c.Param("id"))
	s.router.FloodGuard().Reset(id)
	s.router.TrustLedger().Forget(id)
	return c.JSON(http.StatusOK, actionResponse{Peer: string(id), Action: "reset"})
}
