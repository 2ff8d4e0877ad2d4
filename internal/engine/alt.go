package engine

import (
	"fmt"

	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/events"
	"github.com/shopspring/decimal"
)

// AcceptAlt toggles whether a token may be used for purchases. Distribution
// and price must be configured before acceptance.
func (e *Engine) AcceptAlt(caller, tokenID string, accepted bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, found, err := e.store.GetAltToken(tokenID)
	if err != nil {
		return err
	}
	if !found {
		if accepted {
			return fmt.Errorf("token %s has no configuration to accept", tokenID)
		}
		return nil
	}
	if accepted && t.Distribution.Sum() != 100 {
		return ErrInvalidDistribution
	}
	t.Accepted = accepted
	return e.store.SaveAltToken(t)
}

// SetAltDistribution stores the payout split and routing pair of an alternate
// token. The split is validated here, never at purchase time.
func (e *Engine) SetAltDistribution(caller, tokenID string, d config.Distribution, pair string) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if d.Sum() != 100 {
		return ErrInvalidDistribution
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, found, err := e.store.GetAltToken(tokenID)
	if err != nil {
		return err
	}
	if !found {
		t = &AltToken{TokenID: tokenID, Price: decimal.Zero}
	}
	t.Distribution = d
	t.Pair = pair
	return e.store.SaveAltToken(t)
}

// SetAltPrice sets the per-ticket price denominated in the alternate token.
func (e *Engine) SetAltPrice(caller, tokenID string, price decimal.Decimal) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("alt price must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, found, err := e.store.GetAltToken(tokenID)
	if err != nil {
		return err
	}
	if !found {
		t = &AltToken{TokenID: tokenID}
	}
	t.Price = price
	return e.store.SaveAltToken(t)
}

// BuyTicketsWithAlt accepts a purchase denominated in an accepted alternate
// token. The burn and dev portions are routed in the alt token; the tier
// portion enters the pot as home tokens drawn from the treasury at the
// equivalent value.
func (e *Engine) BuyTicketsWithAlt(buyer string, tickets []ticket.Ticket, tokenID string) error {
	if len(tickets) == 0 {
		return ErrInsufficientTickets
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	alt, found, err := e.store.GetAltToken(tokenID)
	if err != nil {
		return err
	}
	if !found || !alt.Accepted {
		return ErrAltTokenNotAccepted
	}
	if !alt.Price.IsPositive() {
		return fmt.Errorf("token %s has no price configured", tokenID)
	}
	altLedger, ok := e.tokens.Ledger(tokenID)
	if !ok {
		return fmt.Errorf("token %s has no registered ledger", tokenID)
	}

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

	n := decimal.NewFromInt(int64(len(tickets)))
	altCost := alt.Price.Mul(n)

	// The tier share funds the pot in home tokens, pulled from the treasury
	// against the alt proceeds kept in the vault. The treasury leg runs
	// first: a dry treasury aborts the purchase before the buyer pays
	// anything, and every later failure refunds what already moved.
	tierPct := alt.Distribution.Match3 + alt.Distribution.Match4 + alt.Distribution.Match5
	potCredit := percentOf(r.Price.Mul(n), tierPct)
	if potCredit.IsPositive() {
		if err := e.homeLedger().Transfer(e.cfg.Treasury, VaultAccount, potCredit); err != nil {
			return fmt.Errorf("fund pot from treasury: %w", err)
		}
	}
	refundTreasury := func() {
		if !potCredit.IsPositive() {
			return
		}
		if err := e.homeLedger().Transfer(VaultAccount, e.cfg.Treasury, potCredit); err != nil {
			logger.Error("alt purchase rollback failed", "round", r.ID, "buyer", buyer, "error", err)
		}
	}

	if err := altLedger.TransferFrom(VaultAccount, buyer, VaultAccount, altCost); err != nil {
		refundTreasury()
		return fmt.Errorf("charge buyer: %w", err)
	}

	if err := e.recordTickets(r, buyer, tickets, potCredit); err != nil {
		if rerr := altLedger.Transfer(VaultAccount, buyer, altCost); rerr != nil {
			logger.Error("alt purchase rollback failed", "round", r.ID, "buyer", buyer, "error", rerr)
		}
		refundTreasury()
		return err
	}

	// The burn and dev shares route out of the collected proceeds after the
	// purchase is committed. A routing fault leaves the share parked in the
	// vault; it never claws back a paid buyer's tickets.
	burnAmount := percentOf(altCost, alt.Distribution.Burn)
	if burnAmount.IsPositive() {
		if err := e.routeBurn(altLedger, burnAmount); err != nil {
			logger.Error("burn alt share", "round", r.ID, "token", tokenID, "amount", burnAmount, "error", err)
		}
	}
	devAmount := percentOf(altCost, alt.Distribution.Dev)
	if devAmount.IsPositive() {
		if err := altLedger.Transfer(VaultAccount, e.cfg.DevWallet, devAmount); err != nil {
			logger.Error("pay alt dev share", "round", r.ID, "token", tokenID, "amount", devAmount, "error", err)
		}
	}

	logger.Info("alt purchase",
		"round", r.ID, "buyer", buyer, "token", tokenID, "tickets", len(tickets),
		"paid", altCost, "pot_credit", potCredit)
	if err := e.emitter.TicketsPurchased(events.TicketsPurchased{
		Round: r.ID, Buyer: buyer, Count: len(tickets), Currency: tokenID, Paid: altCost.String(),
	}); err != nil {
		logger.Warn("emit tickets purchased", "round", r.ID, "error", err)
	}
	return nil
}
