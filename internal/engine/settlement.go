package engine

import (
	"fmt"

	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/internal/token"
	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/events"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// routeBurn destroys the burn share, or parks it on the configured burn
// wallet when the deployment prefers a dead address over supply reduction.
func (e *Engine) routeBurn(ledger token.Ledger, amount decimal.Decimal) error {
	if e.cfg.BurnWallet != "" {
		return ledger.Transfer(VaultAccount, e.cfg.BurnWallet, amount)
	}
	return ledger.Burn(VaultAccount, amount)
}

// percentOf returns amount × pct / 100.
func percentOf(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(oneHundred)
}

// finalizeDraw settles a round and activates its successor. Two paths lead
// here: a drawn round with its histogram computed, and an ended round nobody
// played. Callers hold the engine mutex.
func (e *Engine) finalizeDraw(r *Round, payload *UpkeepPayload) error {
	now := e.now()

	switch {
	case r.Status == enum.RoundStatusDrawn:
		if payload.Histogram != r.Histogram {
			return ErrInvalidRoundEndConditions
		}
		if err := e.settleDrawnRound(r); err != nil {
			return err
		}
	case r.Ended(now) && r.TicketCount == 0:
		if err := e.settleUnplayedRound(r); err != nil {
			return err
		}
	default:
		return ErrInvalidRoundEndConditions
	}

	r.Status = enum.RoundStatusFinalized
	if err := e.store.SaveRound(r); err != nil {
		return err
	}

	if err := e.emitter.RoundFinalized(events.RoundFinalized{
		Round: r.ID, Pot: r.Pot.String(), Rollover: r.Rollover.String(), NextRound: r.ID + 1,
	}); err != nil {
		logger.Warn("emit round finalized", "round", r.ID, "error", err)
	}

	// the successor starts immediately, seeded with the rollover and the same
	// price unless a pending override exists
	endTime := now.Add(e.duration).Unix()
	return e.activateRound(r.ID+1, r.Price, endTime, r.Rollover)
}

// settleDrawnRound routes the burn and dev portions out of the vault and
// rolls winnerless tier pools into the next round. Tier pools with winners
// stay in the vault until claimed.
func (e *Engine) settleDrawnRound(r *Round) error {
	ledger := e.homeLedger()

	burnAmount := percentOf(r.Pot, r.Distribution.Burn)
	if burnAmount.IsPositive() {
		if err := e.routeBurn(ledger, burnAmount); err != nil {
			return fmt.Errorf("burn pot share: %w", err)
		}
	}

	devAmount := percentOf(r.Pot, r.Distribution.Dev)
	if devAmount.IsPositive() {
		if err := ledger.Transfer(VaultAccount, e.cfg.DevWallet, devAmount); err != nil {
			return fmt.Errorf("pay dev share: %w", err)
		}
	}

	rollover := decimal.Zero
	for matches := uint8(3); matches <= ticket.DigitCount; matches++ {
		if r.Histogram[matches] == 0 {
			rollover = rollover.Add(percentOf(r.Pot, r.TierPercent(matches)))
		}
	}
	r.Rollover = rollover

	logger.Info("round settled",
		"round", r.ID, "pot", r.Pot, "burned", burnAmount, "dev", devAmount, "rollover", rollover)
	return nil
}

// settleUnplayedRound rolls the configured fraction of an untouched pot into
// the next round and pays the remainder to the dev wallet.
func (e *Engine) settleUnplayedRound(r *Round) error {
	rollover := percentOf(r.Pot, e.cfg.RolloverPercent)
	remainder := r.Pot.Sub(rollover)
	if remainder.IsPositive() {
		if err := e.homeLedger().Transfer(VaultAccount, e.cfg.DevWallet, remainder); err != nil {
			return fmt.Errorf("pay held-back share: %w", err)
		}
	}
	r.Rollover = rollover

	logger.Info("unplayed round settled", "round", r.ID, "pot", r.Pot, "rollover", rollover)
	return nil
}

// ticketAmount computes the claimable reward of one ticket: its tier's pot
// percentage split equally among every ticket in the same tier. Tickets below
// three matches pay nothing.
func (r *Round) ticketAmount(t ticket.Ticket) decimal.Decimal {
	matches := ticket.MatchCount(t, r.WinningTicket)
	if matches < 3 {
		return decimal.Zero
	}
	winners := r.Histogram[matches]
	if winners == 0 {
		return decimal.Zero
	}
	pool := percentOf(r.Pot, r.TierPercent(matches))
	return pool.Div(decimal.NewFromInt(int64(winners)))
}

// claimableRound loads a round whose rewards can be evaluated, together with
// its ticket table and the owner's record.
func (e *Engine) claimableRound(roundID uint64, owner string) (*Round, []ticket.Ticket, *BuyerRecord, error) {
	r, found, err := e.store.GetRound(roundID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !found {
		return nil, nil, nil, ErrInvalidRound
	}
	if r.Status != enum.RoundStatusDrawn && r.Status != enum.RoundStatusFinalized {
		return nil, nil, nil, ErrRoundNotClaimable
	}

	table, err := e.store.GetTickets(roundID)
	if err != nil {
		return nil, nil, nil, err
	}
	rec, err := e.store.GetBuyer(roundID, owner)
	if err != nil {
		return nil, nil, nil, err
	}
	return r, table, rec, nil
}

// ownedPosition maps a global ticket index to its position in the owner's
// record.
func ownedPosition(rec *BuyerRecord, index uint64) (int, error) {
	for pos, idx := range rec.Indices {
		if idx == index {
			return pos, nil
		}
	}
	return 0, ErrTicketNotOwned
}

// CheckTicket computes the claimable amount of one ticket without mutating
// any state. A ticket below the payable tiers yields zero.
func (e *Engine) CheckTicket(roundID, index uint64, owner string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, table, rec, err := e.claimableRound(roundID, owner)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := ownedPosition(rec, index); err != nil {
		return decimal.Zero, err
	}
	return r.ticketAmount(table[index]), nil
}

// CheckTickets sums the claimable amounts of a batch. Unlike CheckTicket it
// rejects non-winning indices outright: it is a validity check for an
// intended claim, not a balance probe.
func (e *Engine) CheckTickets(roundID uint64, indices []uint64, owner string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, table, rec, err := e.claimableRound(roundID, owner)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, index := range indices {
		if _, err := ownedPosition(rec, index); err != nil {
			return decimal.Zero, err
		}
		amount := r.ticketAmount(table[index])
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: index %d", ErrNotAWinner, index)
		}
		total = total.Add(amount)
	}
	return total, nil
}

// ClaimTickets is the payment path, open from the moment the histogram is
// computed: a drawn round pays the same amounts before and after its
// finalize, because the payout base is the pot frozen at the draw. The whole
// batch settles or none of it does: one wrong declared match count or one
// already-claimed index aborts the claim before any state changes or
// transfers happen.
func (e *Engine) ClaimTickets(caller string, roundID uint64, indices []uint64, matchCounts []uint8) (decimal.Decimal, error) {
	if len(indices) == 0 {
		return decimal.Zero, ErrInsufficientTickets
	}
	if len(indices) != len(matchCounts) {
		return decimal.Zero, fmt.Errorf("got %d indices but %d match counts", len(indices), len(matchCounts))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, table, rec, err := e.claimableRound(roundID, caller)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	positions := make([]int, 0, len(indices))
	for i, index := range indices {
		pos, err := ownedPosition(rec, index)
		if err != nil {
			return decimal.Zero, err
		}
		if rec.Claimed[pos] {
			return decimal.Zero, &DuplicateClaimError{Round: roundID, Index: index}
		}

		t := table[index]
		matches := ticket.MatchCount(t, r.WinningTicket)
		if matches < 3 || matches != matchCounts[i] {
			return decimal.Zero, &InvalidClaimMatchError{Index: index}
		}

		// marking now also catches the same index repeated within the batch
		rec.Claimed[pos] = true
		positions = append(positions, pos)
		total = total.Add(r.ticketAmount(t))
	}

	if err := e.store.SaveBuyer(rec); err != nil {
		// roll back the in-memory marks so a retry sees consistent state
		for _, pos := range positions {
			rec.Claimed[pos] = false
		}
		return decimal.Zero, err
	}

	if err := e.homeLedger().Transfer(VaultAccount, caller, total); err != nil {
		for _, pos := range positions {
			rec.Claimed[pos] = false
		}
		if saveErr := e.store.SaveBuyer(rec); saveErr != nil {
			logger.Error("claim rollback failed", "round", roundID, "caller", caller, "error", saveErr)
		}
		return decimal.Zero, fmt.Errorf("pay claim: %w", err)
	}

	logger.Info("reward claimed", "round", roundID, "caller", caller, "tickets", len(indices), "amount", total)
	if err := e.emitter.RewardClaimed(events.RewardClaimed{
		Round: roundID, Caller: caller, Amount: total.String(),
	}); err != nil {
		logger.Warn("emit reward claimed", "round", roundID, "error", err)
	}
	return total, nil
}
