package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blazelabs/lottery-engine/internal/engine"
	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/shopspring/decimal"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, _ *http.Request) {
	r, err := s.engine.CurrentRound()
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func parseRoundID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func (s *Server) handleRoundInfo(w http.ResponseWriter, r *http.Request) {
	id, err := parseRoundID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid round id"})
		return
	}
	round, err := s.engine.RoundInfo(id)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) handleUserTickets(w http.ResponseWriter, r *http.Request) {
	id, err := parseRoundID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid round id"})
		return
	}
	buyer := r.URL.Query().Get("buyer")
	if buyer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "buyer query parameter required"})
		return
	}
	owned, err := s.engine.GetUserTickets(buyer, id)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, owned)
}

// parseDigits turns "10,20,30,40,50" into a ticket.
func parseDigits(raw string) (ticket.Ticket, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != ticket.DigitCount {
		return 0, fmt.Errorf("want %d digits, got %d", ticket.DigitCount, len(parts))
	}
	var digits [ticket.DigitCount]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return 0, err
		}
		digits[i] = uint8(n)
	}
	return ticket.Encode(digits)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	a, err := parseDigits(r.URL.Query().Get("a"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticket a: " + err.Error()})
		return
	}
	b, err := parseDigits(r.URL.Query().Get("b"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticket b: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint8{"matches": s.engine.CheckTicketMatching(a, b)})
}

func (s *Server) handlePotUSD(w http.ResponseWriter, _ *http.Request) {
	round, err := s.engine.CurrentRound()
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	price, err := s.feed.SpotPrice(s.pair)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"round":   strconv.FormatUint(round.ID, 10),
		"pot":     round.Pot.String(),
		"pot_usd": round.Pot.Mul(price).String(),
	})
}

type upkeepCheckResponse struct {
	Needed  bool            `json:"needed"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleUpkeepCheck is the poll half of the automation trigger surface. The
// returned payload is opaque to the caller and must be posted back verbatim.
func (s *Server) handleUpkeepCheck(w http.ResponseWriter, _ *http.Request) {
	needed, payload, err := s.engine.CheckUpkeep()
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	resp := upkeepCheckResponse{Needed: needed}
	if needed {
		data, err := engine.MarshalPayload(payload)
		if err != nil {
			writeErrorJSON(w, err)
			return
		}
		resp.Payload = data
	}
	writeJSON(w, http.StatusOK, resp)
}

type upkeepPerformRequest struct {
	Caller  string          `json:"caller"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleUpkeepPerform(w http.ResponseWriter, r *http.Request) {
	var req upkeepPerformRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	payload, err := engine.UnmarshalPayload(req.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload: " + err.Error()})
		return
	}
	if err := s.engine.PerformUpkeep(r.Context(), req.Caller, payload); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "performed"})
}

type buyRequest struct {
	Buyer   string     `json:"buyer"`
	Tickets [][5]uint8 `json:"tickets"`
	Token   string     `json:"token,omitempty"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	tickets := make([]ticket.Ticket, 0, len(req.Tickets))
	for _, digits := range req.Tickets {
		tk, err := ticket.Encode(digits)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		tickets = append(tickets, tk)
	}

	var err error
	if req.Token != "" {
		err = s.engine.BuyTicketsWithAlt(req.Buyer, tickets, req.Token)
	} else {
		err = s.engine.BuyTickets(req.Buyer, tickets)
	}
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tickets": len(tickets)})
}

type checkRequest struct {
	Round   uint64   `json:"round"`
	Indices []uint64 `json:"indices"`
	Owner   string   `json:"owner"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var (
		total decimal.Decimal
		err   error
	)
	if len(req.Indices) == 1 {
		total, err = s.engine.CheckTicket(req.Round, req.Indices[0], req.Owner)
	} else {
		total, err = s.engine.CheckTickets(req.Round, req.Indices, req.Owner)
	}
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": total.String()})
}

type claimRequest struct {
	Caller      string   `json:"caller"`
	Round       uint64   `json:"round"`
	Indices     []uint64 `json:"indices"`
	MatchCounts []uint8  `json:"match_counts"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	total, err := s.engine.ClaimTickets(req.Caller, req.Round, req.Indices, req.MatchCounts)
	if err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": total.String()})
}

type activateRequest struct {
	Caller  string `json:"caller"`
	Price   string `json:"price"`
	EndTime int64  `json:"end_time"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price: " + err.Error()})
		return
	}
	if err := s.engine.Activate(req.Caller, price, time.Unix(req.EndTime, 0)); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

type potRequest struct {
	Caller       string               `json:"caller"`
	Round        uint64               `json:"round"`
	Amount       string               `json:"amount"`
	Distribution *config.Distribution `json:"distribution,omitempty"`
}

func (s *Server) handleAddToPot(w http.ResponseWriter, r *http.Request) {
	var req potRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount: " + err.Error()})
		return
	}
	if err := s.engine.AddToPot(req.Caller, req.Round, amount, req.Distribution); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

type priceRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
	Round  uint64 `json:"round"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price: " + err.Error()})
		return
	}
	if err := s.engine.SetPrice(req.Caller, price, req.Round); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type durationRequest struct {
	Caller  string `json:"caller"`
	Seconds int64  `json:"seconds"`
}

func (s *Server) handleSetRoundDuration(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.SetRoundDuration(req.Caller, time.Duration(req.Seconds)*time.Second); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type endRoundRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleEndRound(w http.ResponseWriter, r *http.Request) {
	var req endRoundRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.EndRound(req.Caller); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

type upkeeperRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleSetUpkeeper(w http.ResponseWriter, r *http.Request) {
	var req upkeeperRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.SetUpkeeper(req.Caller, req.Address, req.Enabled); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type altDistributionRequest struct {
	Caller       string              `json:"caller"`
	Token        string              `json:"token"`
	Pair         string              `json:"pair"`
	Distribution config.Distribution `json:"distribution"`
}

func (s *Server) handleSetAltDistribution(w http.ResponseWriter, r *http.Request) {
	var req altDistributionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.SetAltDistribution(req.Caller, req.Token, req.Distribution, req.Pair); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type altPriceRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Price  string `json:"price"`
}

func (s *Server) handleSetAltPrice(w http.ResponseWriter, r *http.Request) {
	var req altPriceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price: " + err.Error()})
		return
	}
	if err := s.engine.SetAltPrice(req.Caller, req.Token, price); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type altAcceptRequest struct {
	Caller   string `json:"caller"`
	Token    string `json:"token"`
	Accepted bool   `json:"accepted"`
}

func (s *Server) handleAcceptAlt(w http.ResponseWriter, r *http.Request) {
	var req altAcceptRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.AcceptAlt(req.Caller, req.Token, req.Accepted); err != nil {
		writeErrorJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
