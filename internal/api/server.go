// Package api exposes the operator surface over HTTP: position CRUD,
// catalogue browsing for position creation, and a WebSocket stream of
// engine events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/declansx/odds-maximizer-betting-bot/internal/engine"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/stake"
)

// Server runs the operator HTTP/WebSocket API.
type Server struct {
	hub      *Hub
	handlers *Handlers
	bus      *engine.Bus
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires routes to handlers.
func NewServer(port int, trader Trader, refdata RefData, bus *engine.Bus, scale *stake.Scale, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(trader, refdata, hub, scale, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)

	mux.HandleFunc("POST /api/positions", handlers.HandleCreatePosition)
	mux.HandleFunc("GET /api/positions", handlers.HandleListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.HandleGetPosition)
	mux.HandleFunc("PATCH /api/positions/{id}", handlers.HandleEditPosition)
	mux.HandleFunc("DELETE /api/positions/{id}", handlers.HandleClosePosition)

	mux.HandleFunc("GET /api/sports", handlers.HandleSports)
	mux.HandleFunc("GET /api/leagues", handlers.HandleLeagues)
	mux.HandleFunc("GET /api/fixtures", handlers.HandleFixtures)
	mux.HandleFunc("GET /api/markets", handlers.HandleMarkets)

	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		hub:      hub,
		handlers: handlers,
		bus:      bus,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub, the event pump, and the HTTP listener. Blocks
// until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.pumpEvents()

	s.logger.Info("operator api listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Info("stopping operator api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// pumpEvents forwards engine events to the WebSocket hub.
func (s *Server) pumpEvents() {
	events, cancel := s.bus.Subscribe()
	defer cancel()

	for evt := range events {
		s.hub.BroadcastEvent(evt)
	}
}
