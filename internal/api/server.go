// Package api exposes the engine over HTTP: read surface for rounds and
// tickets, purchase and claim endpoints, and the owner configuration surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blazelabs/lottery-engine/internal/engine"
	"github.com/blazelabs/lottery-engine/internal/pricefeed"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
)

type Server struct {
	engine *engine.Engine
	feed   pricefeed.Feed
	pair   string
	http   *http.Server
}

func NewServer(cfg config.APICfg, eng *engine.Engine, feed pricefeed.Feed, pair string) *Server {
	s := &Server{engine: eng, feed: feed, pair: pair}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/rounds/current", s.handleCurrentRound)
	mux.HandleFunc("GET /api/v1/rounds/{id}", s.handleRoundInfo)
	mux.HandleFunc("GET /api/v1/rounds/{id}/tickets", s.handleUserTickets)
	mux.HandleFunc("GET /api/v1/match", s.handleMatch)
	mux.HandleFunc("GET /api/v1/pot/usd", s.handlePotUSD)

	mux.HandleFunc("GET /api/v1/upkeep/check", s.handleUpkeepCheck)
	mux.HandleFunc("POST /api/v1/upkeep/perform", s.handleUpkeepPerform)

	mux.HandleFunc("POST /api/v1/tickets/buy", s.handleBuy)
	mux.HandleFunc("POST /api/v1/tickets/check", s.handleCheck)
	mux.HandleFunc("POST /api/v1/tickets/claim", s.handleClaim)

	mux.HandleFunc("POST /api/v1/admin/activate", s.handleActivate)
	mux.HandleFunc("POST /api/v1/admin/pot", s.handleAddToPot)
	mux.HandleFunc("POST /api/v1/admin/price", s.handleSetPrice)
	mux.HandleFunc("POST /api/v1/admin/round-duration", s.handleSetRoundDuration)
	mux.HandleFunc("POST /api/v1/admin/end-round", s.handleEndRound)
	mux.HandleFunc("POST /api/v1/admin/upkeeper", s.handleSetUpkeeper)
	mux.HandleFunc("POST /api/v1/admin/alt/distribution", s.handleSetAltDistribution)
	mux.HandleFunc("POST /api/v1/admin/alt/price", s.handleSetAltPrice)
	mux.HandleFunc("POST /api/v1/admin/alt/accept", s.handleAcceptAlt)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() error {
	logger.Info("http api listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write response", "error", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps the engine error taxonomy onto HTTP status codes:
// authorization faults are 403, state faults 409, validation faults 400 and
// unknown resources 404.
func statusFor(err error) int {
	var (
		inactive  *engine.RoundInactiveError
		duplicate *engine.DuplicateClaimError
		badMatch  *engine.InvalidClaimMatchError
	)
	switch {
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrInvalidUpkeeper):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidRound):
		return http.StatusNotFound
	case errors.As(err, &inactive),
		errors.Is(err, engine.ErrRoundAlreadyActive),
		errors.Is(err, engine.ErrInvalidRoundEndConditions),
		errors.Is(err, engine.ErrRoundNotClaimable):
		return http.StatusConflict
	case errors.As(err, &duplicate),
		errors.As(err, &badMatch),
		errors.Is(err, engine.ErrInsufficientTickets),
		errors.Is(err, engine.ErrAltTokenNotAccepted),
		errors.Is(err, engine.ErrInvalidDistribution),
		errors.Is(err, engine.ErrTicketNotOwned),
		errors.Is(err, engine.ErrNotAWinner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
