package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blazelabs/lottery-engine/internal/oracle"
	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/internal/token"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/events"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/shopspring/decimal"
)

// VaultAccount holds the pot and claimable rewards on the home-token ledger.
// It is also the spender identity buyers approve before purchasing.
const VaultAccount = "lottery:vault"

// randomWordsPerDraw is one word per digit slot; each winning digit is drawn
// independently by reducing its word modulo 64.
const randomWordsPerDraw = ticket.DigitCount

// Engine is the round accounting and settlement core. Every public operation
// runs atomically under one mutex; the only asynchronous boundary is the
// randomness request/fulfill pair.
type Engine struct {
	mu sync.Mutex

	cfg      config.EngineCfg
	store    *Store
	tokens   *token.Registry
	homeID   string
	oracle   oracle.Coordinator
	emitter  events.Emitter
	now      func() time.Time
	duration time.Duration
}

func New(
	cfg config.EngineCfg,
	kv infra.KVStore,
	tokens *token.Registry,
	homeTokenID string,
	coord oracle.Coordinator,
	emitter events.Emitter,
) (*Engine, error) {
	if _, ok := tokens.Ledger(homeTokenID); !ok {
		return nil, fmt.Errorf("home token %q has no registered ledger", homeTokenID)
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	e := &Engine{
		cfg:      cfg,
		store:    NewStore(kv),
		tokens:   tokens,
		homeID:   homeTokenID,
		oracle:   coord,
		emitter:  emitter,
		now:      time.Now,
		duration: cfg.RoundDurationTime(),
	}
	coord.OnFulfillment(e.HandleRandomness)
	return e, nil
}

func (e *Engine) homeLedger() token.Ledger {
	l, _ := e.tokens.Ledger(e.homeID)
	return l
}

func (e *Engine) requireOwner(caller string) error {
	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	return nil
}

// currentRound loads the round the engine considers current, or nil when the
// lottery has never been activated.
func (e *Engine) currentRound() (*Round, error) {
	id, err := e.store.CurrentRoundID()
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	r, found, err := e.store.GetRound(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("current round %d missing from store", id)
	}
	return r, nil
}

// Activate starts the lottery: the first round (or the round after a settled
// one, if automatic activation was interrupted) becomes active with the given
// price and end time.
func (e *Engine) Activate(caller string, price decimal.Decimal, endTime time.Time) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.currentRound()
	if err != nil {
		return err
	}
	if cur != nil && cur.Status != enum.RoundStatusFinalized {
		return ErrRoundAlreadyActive
	}

	var nextID uint64 = 1
	rollover := decimal.Zero
	if cur != nil {
		nextID = cur.ID + 1
		rollover = cur.Rollover
	}
	return e.activateRound(nextID, price, endTime.Unix(), rollover)
}

// activateRound creates (or promotes a pre-funded pending) round and makes it
// current. Callers hold the engine mutex.
func (e *Engine) activateRound(id uint64, price decimal.Decimal, endTime int64, carried decimal.Decimal) error {
	r, found, err := e.store.GetRound(id)
	if err != nil {
		return err
	}
	if !found {
		r = &Round{ID: id, Pot: decimal.Zero}
	}
	if found && r.Status != enum.RoundStatusPending {
		return ErrRoundAlreadyActive
	}

	// pre-funded pending rounds may already carry a pot or a price override
	if r.Price.IsZero() {
		r.Price = price
	}
	if r.Distribution.IsZero() {
		r.Distribution = e.cfg.Distribution
	}
	r.Status = enum.RoundStatusActive
	r.EndTime = endTime
	r.Pot = r.Pot.Add(carried)
	r.Rollover = decimal.Zero

	if err := e.store.SaveRound(r); err != nil {
		return err
	}
	if err := e.store.SetCurrentRoundID(id); err != nil {
		return err
	}

	logger.Info("round activated", "round", id, "price", r.Price, "pot", r.Pot, "end_time", endTime)
	if err := e.emitter.RoundActivated(events.RoundActivated{
		Round: id, TicketPrice: r.Price.String(), EndTime: endTime,
	}); err != nil {
		logger.Warn("emit round activated", "round", id, "error", err)
	}
	return nil
}

// BuyTickets charges price per ticket in home tokens and records the tickets
// at sequentially increasing indices of the current round.
func (e *Engine) BuyTickets(buyer string, tickets []ticket.Ticket) error {
	if len(tickets) == 0 {
		return ErrInsufficientTickets
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return err
	}
	if r == nil {
		return &RoundInactiveError{Round: 0}
	}
	if r.Status != enum.RoundStatusActive || e.now().Unix() >= r.EndTime {
		return &RoundInactiveError{Round: r.ID}
	}

	cost := r.Price.Mul(decimal.NewFromInt(int64(len(tickets))))
	if cost.IsPositive() {
		if err := e.homeLedger().TransferFrom(VaultAccount, buyer, VaultAccount, cost); err != nil {
			return fmt.Errorf("charge buyer: %w", err)
		}
	}

	if err := e.recordTickets(r, buyer, tickets, cost); err != nil {
		return err
	}

	if err := e.emitter.TicketsPurchased(events.TicketsPurchased{
		Round: r.ID, Buyer: buyer, Count: len(tickets), Currency: e.homeID, Paid: cost.String(),
	}); err != nil {
		logger.Warn("emit tickets purchased", "round", r.ID, "error", err)
	}
	return nil
}

// recordTickets appends tickets to the round table and the buyer record and
// credits the pot. Callers hold the engine mutex and have already collected
// payment.
func (e *Engine) recordTickets(r *Round, buyer string, tickets []ticket.Ticket, potCredit decimal.Decimal) error {
	table, err := e.store.GetTickets(r.ID)
	if err != nil {
		return err
	}
	rec, err := e.store.GetBuyer(r.ID, buyer)
	if err != nil {
		return err
	}

	for _, t := range tickets {
		rec.Indices = append(rec.Indices, uint64(len(table)))
		rec.Claimed = append(rec.Claimed, false)
		table = append(table, t)
	}
	r.TicketCount = uint64(len(table))
	r.Pot = r.Pot.Add(potCredit)

	if err := e.store.SaveTickets(r.ID, table); err != nil {
		return err
	}
	if err := e.store.SaveBuyer(rec); err != nil {
		return err
	}
	return e.store.SaveRound(r)
}

// AddToPot moves owner funds into the pot of the given round. Future rounds
// may be pre-funded; they are created pending and picked up at activation.
func (e *Engine) AddToPot(caller string, roundID uint64, amount decimal.Decimal, override *config.Distribution) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if roundID == 0 {
		return ErrInvalidRound
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if override != nil && override.Sum() != 100 {
		return ErrInvalidDistribution
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	curID, err := e.store.CurrentRoundID()
	if err != nil {
		return err
	}

	r, found, err := e.store.GetRound(roundID)
	if err != nil {
		return err
	}
	if !found {
		if roundID <= curID {
			return ErrInvalidRound
		}
		r = &Round{ID: roundID, Status: enum.RoundStatusPending, Pot: decimal.Zero}
	}
	if r.Status == enum.RoundStatusFinalized {
		return ErrInvalidRound
	}

	if err := e.homeLedger().TransferFrom(VaultAccount, caller, VaultAccount, amount); err != nil {
		return fmt.Errorf("fund pot: %w", err)
	}

	r.Pot = r.Pot.Add(amount)
	if override != nil {
		r.Distribution = *override
	}
	if err := e.store.SaveRound(r); err != nil {
		return err
	}

	if err := e.emitter.PotIncreased(events.PotIncreased{
		Round: roundID, Amount: amount.String(), Pot: r.Pot.String(),
	}); err != nil {
		logger.Warn("emit pot increased", "round", roundID, "error", err)
	}
	return nil
}

// SetPrice overrides the ticket price of a round that has not started selling
// yet. The engine default used for automatically activated rounds changes too.
func (e *Engine) SetPrice(caller string, price decimal.Decimal, roundID uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	curID, err := e.store.CurrentRoundID()
	if err != nil {
		return err
	}
	if roundID <= curID {
		return ErrInvalidRound
	}

	r, found, err := e.store.GetRound(roundID)
	if err != nil {
		return err
	}
	if !found {
		r = &Round{ID: roundID, Status: enum.RoundStatusPending, Pot: decimal.Zero}
	}
	r.Price = price
	return e.store.SaveRound(r)
}

// EndRound closes the active purchase window early by pulling the end time to
// now. The upkeep cycle picks the round up on its next poll.
func (e *Engine) EndRound(caller string) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return err
	}
	if r == nil || r.Status != enum.RoundStatusActive || e.now().Unix() >= r.EndTime {
		return ErrInvalidRoundEndConditions
	}
	r.EndTime = e.now().Unix()
	return e.store.SaveRound(r)
}

// SetRoundDuration changes the window length used when the engine activates
// the next round after a finalize.
func (e *Engine) SetRoundDuration(caller string, d time.Duration) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("round duration must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
	return nil
}

func (e *Engine) SetUpkeeper(caller, addr string, enabled bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SetUpkeeper(addr, enabled)
}

// CheckUpkeep is the automation poll. It never mutates state; the returned
// payload is fed back into PerformUpkeep by the caller.
func (e *Engine) CheckUpkeep() (bool, *UpkeepPayload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return false, nil, err
	}
	if r == nil {
		return false, nil, nil
	}

	switch {
	case r.Ended(e.now()) && r.RequestID == 0 && r.TicketCount > 0:
		return true, &UpkeepPayload{Action: enum.UpkeepActionRequestDraw, Round: r.ID}, nil
	case r.Ended(e.now()) && r.TicketCount == 0:
		// a no-play round skips the randomness round-trip entirely
		return true, &UpkeepPayload{Action: enum.UpkeepActionFinalizeDraw, Round: r.ID}, nil
	case r.Status == enum.RoundStatusDrawn:
		return true, &UpkeepPayload{Action: enum.UpkeepActionFinalizeDraw, Round: r.ID, Histogram: r.Histogram}, nil
	default:
		return false, nil, nil
	}
}

// PerformUpkeep executes an action produced by CheckUpkeep. Only authorized
// upkeepers and the owner may call it.
func (e *Engine) PerformUpkeep(ctx context.Context, caller string, payload *UpkeepPayload) error {
	if payload == nil {
		return ErrInvalidRoundEndConditions
	}
	if caller != e.cfg.Owner {
		ok, err := e.store.IsUpkeeper(caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidUpkeeper
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return err
	}
	if r == nil || r.ID != payload.Round {
		return ErrInvalidRoundEndConditions
	}

	switch payload.Action {
	case enum.UpkeepActionRequestDraw:
		return e.requestDraw(ctx, r)
	case enum.UpkeepActionFinalizeDraw:
		return e.finalizeDraw(r, payload)
	default:
		return ErrInvalidRoundEndConditions
	}
}

// requestDraw issues the single outstanding randomness request for an ended
// round. Callers hold the engine mutex.
func (e *Engine) requestDraw(ctx context.Context, r *Round) error {
	if !r.Ended(e.now()) || r.RequestID != 0 || r.TicketCount == 0 {
		return ErrInvalidRoundEndConditions
	}

	requestID, err := e.oracle.RequestRandomness(ctx, e.cfg.SubscriptionRef, randomWordsPerDraw)
	if err != nil {
		return fmt.Errorf("request randomness: %w", err)
	}

	r.Status = enum.RoundStatusAwaitingRandomness
	r.RequestID = requestID
	if err := e.store.SaveRound(r); err != nil {
		return err
	}

	logger.Info("draw requested", "round", r.ID, "request_id", requestID)
	if err := e.emitter.DrawRequested(events.DrawRequested{Round: r.ID, RequestID: requestID}); err != nil {
		logger.Warn("emit draw requested", "round", r.ID, "error", err)
	}
	return nil
}

// HandleRandomness is the oracle callback. Stale or mismatched fulfillments
// are ignored rather than surfaced; the oracle's timing is not trusted.
func (e *Engine) HandleRandomness(f oracle.Fulfillment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return err
	}
	if r == nil || r.Status != enum.RoundStatusAwaitingRandomness || r.RequestID != f.RequestID {
		logger.Debug("ignoring stale randomness fulfillment", "request_id", f.RequestID)
		return nil
	}
	if len(f.Words) < randomWordsPerDraw {
		return fmt.Errorf("fulfillment %d carries %d words, want %d", f.RequestID, len(f.Words), randomWordsPerDraw)
	}

	var digits [ticket.DigitCount]uint8
	for i := range digits {
		digits[i] = uint8(f.Words[i] % (ticket.MaxDigit + 1))
	}
	winning, err := ticket.Encode(digits)
	if err != nil {
		return err
	}

	table, err := e.store.GetTickets(r.ID)
	if err != nil {
		return err
	}
	var hist Histogram
	for _, t := range table {
		hist[ticket.MatchCount(t, winning)]++
	}

	r.Status = enum.RoundStatusDrawn
	r.WinningTicket = winning
	r.Histogram = hist
	r.RequestID = 0
	if err := e.store.SaveRound(r); err != nil {
		return err
	}

	logger.Info("draw fulfilled", "round", r.ID, "request_id", f.RequestID, "winning_digits", digits)
	if err := e.emitter.DrawFulfilled(events.DrawFulfilled{
		Round: r.ID, RequestID: f.RequestID, WinningDigits: digits,
	}); err != nil {
		logger.Warn("emit draw fulfilled", "round", r.ID, "error", err)
	}
	return nil
}

// CurrentRound returns the round the engine considers current.
func (e *Engine) CurrentRound() (*Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.currentRound()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrInvalidRound
	}
	return r, nil
}

func (e *Engine) RoundInfo(id uint64) (*Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, found, err := e.store.GetRound(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidRound
	}
	return r, nil
}

// UserTickets lists the tickets an address holds in a round, with their
// global indices and claimed flags.
type UserTickets struct {
	Round   uint64          `json:"round"`
	Buyer   string          `json:"buyer"`
	Indices []uint64        `json:"indices"`
	Tickets []ticket.Ticket `json:"tickets"`
	Claimed []bool          `json:"claimed"`
}

// GetUserTickets never rejects the round id: asking about round zero or a
// round that was never opened yields an empty record, the same answer a
// buyer who sat the round out gets.
func (e *Engine) GetUserTickets(buyer string, roundID uint64) (*UserTickets, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.GetBuyer(roundID, buyer)
	if err != nil {
		return nil, err
	}
	table, err := e.store.GetTickets(roundID)
	if err != nil {
		return nil, err
	}

	out := &UserTickets{Round: roundID, Buyer: buyer, Indices: rec.Indices, Claimed: rec.Claimed}
	for _, idx := range rec.Indices {
		out.Tickets = append(out.Tickets, table[idx])
	}
	return out, nil
}

// CheckTicketMatching exposes the codec's matching rule for callers that want
// to evaluate ticket pairs without touching round state.
func (e *Engine) CheckTicketMatching(a, b ticket.Ticket) uint8 {
	return ticket.MatchCount(a, b)
}

// MarshalPayload encodes an upkeep payload for transport to an external
// automation caller.
func MarshalPayload(p *UpkeepPayload) ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalPayload(data []byte) (*UpkeepPayload, error) {
	var p UpkeepPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
