package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/declansx/odds-maximizer-betting-bot/internal/engine"
	"github.com/declansx/odds-maximizer-betting-bot/internal/exchange"
	"github.com/declansx/odds-maximizer-betting-bot/internal/store"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/stake"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for local operation
		return true
	},
}

// Trader is the slice of the engine the handlers drive.
type Trader interface {
	CreatePosition(ctx context.Context, spec types.PositionSpec) (*types.Position, error)
	ListPositions() []*types.Position
	GetPosition(id string) (*types.Position, error)
	EditPosition(ctx context.Context, id string, patch types.PositionPatch) (*types.Position, error)
	ClosePosition(ctx context.Context, id string) (*types.Position, error)
}

// RefData is the catalogue browse surface backing position creation.
type RefData interface {
	Sports(ctx context.Context) ([]exchange.Sport, error)
	Leagues(ctx context.Context, sportID int) ([]exchange.League, error)
	Fixtures(ctx context.Context, leagueID int) ([]exchange.Fixture, error)
	Markets(ctx context.Context, eventID string) ([]exchange.Market, error)
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	trader  Trader
	refdata RefData
	hub     *Hub
	scale   *stake.Scale
	logger  *slog.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(trader Trader, refdata RefData, hub *Hub, scale *stake.Scale, logger *slog.Logger) *Handlers {
	return &Handlers{
		trader:  trader,
		refdata: refdata,
		hub:     hub,
		scale:   scale,
		logger:  logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreatePosition creates a position from the request body.
func (h *Handlers) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.trader.CreatePosition(r.Context(), spec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, renderPosition(p, h.scale))
}

// HandleListPositions lists all positions.
func (h *Handlers) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, renderPositions(h.trader.ListPositions(), h.scale))
}

// HandleGetPosition returns one position.
func (h *Handlers) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.trader.GetPosition(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(p, h.scale))
}

// HandleEditPosition patches one position.
func (h *Handlers) HandleEditPosition(w http.ResponseWriter, r *http.Request) {
	var req editPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.trader.EditPosition(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(p, h.scale))
}

// HandleClosePosition closes one position and returns its final state.
func (h *Handlers) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.trader.ClosePosition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, renderPosition(p, h.scale))
}

// HandleSports lists the venue's sports.
func (h *Handlers) HandleSports(w http.ResponseWriter, r *http.Request) {
	sports, err := h.refdata.Sports(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, sports)
}

// HandleLeagues lists leagues for the sport in the query string.
func (h *Handlers) HandleLeagues(w http.ResponseWriter, r *http.Request) {
	var sportID int
	if err := parseQueryInt(r, "sportId", &sportID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	leagues, err := h.refdata.Leagues(r.Context(), sportID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, leagues)
}

// HandleFixtures lists active fixtures for a league.
func (h *Handlers) HandleFixtures(w http.ResponseWriter, r *http.Request) {
	var leagueID int
	if err := parseQueryInt(r, "leagueId", &leagueID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fixtures, err := h.refdata.Fixtures(r.Context(), leagueID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, fixtures)
}

// HandleMarkets lists active markets for a fixture.
func (h *Handlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		writeError(w, http.StatusBadRequest, errors.New("eventId is required"))
		return
	}
	markets, err := h.refdata.Markets(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidSpec):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseQueryInt(r *http.Request, name string, out *int) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return errors.New(name + " is required")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*out = v
	return nil
}
