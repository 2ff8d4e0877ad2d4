// Package engine implements the round accounting and settlement core: the
// round lifecycle state machine, ticket purchases, draw finalization, tier
// payouts and claim settlement.
package engine

import (
	"time"

	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

// Histogram counts the tickets of a round per exact match count. Index k holds
// the number of tickets matching exactly k winner digits.
type Histogram [ticket.DigitCount + 1]uint64

// Round is the persisted per-round state.
//
// Pot is the settlement base: it accrues during the active window and is then
// frozen at finalize time so payout shares stay a pure function of
// (pot, percentages, histogram). Transfers at finalize (burn, dev, rollover)
// do not rewrite it.
type Round struct {
	ID            uint64              `json:"id"`
	Status        enum.RoundStatus    `json:"status"`
	Price         decimal.Decimal     `json:"price"`
	Pot           decimal.Decimal     `json:"pot"`
	EndTime       int64               `json:"end_time"`
	TicketCount   uint64              `json:"ticket_count"`
	RequestID     uint64              `json:"request_id"`
	WinningTicket ticket.Ticket       `json:"winning_ticket"`
	Histogram     Histogram           `json:"histogram"`
	Distribution  config.Distribution `json:"distribution"`
	Rollover      decimal.Decimal     `json:"rollover"`
}

// Ended reports whether the purchase window of an active round has elapsed.
func (r *Round) Ended(now time.Time) bool {
	return r.Status == enum.RoundStatusActive && now.Unix() >= r.EndTime
}

// TierPercent maps a match count to its payout percentage. Counts below the
// minimum payable tier return 0.
func (r *Round) TierPercent(matches uint8) int {
	switch matches {
	case 3:
		return r.Distribution.Match3
	case 4:
		return r.Distribution.Match4
	case 5:
		return r.Distribution.Match5
	default:
		return 0
	}
}

// BuyerRecord tracks the tickets one buyer holds in one round. Claimed runs
// parallel to Indices; an entry flips false to true exactly once.
type BuyerRecord struct {
	Buyer   string   `json:"buyer"`
	Round   uint64   `json:"round"`
	Indices []uint64 `json:"indices"`
	Claimed []bool   `json:"claimed"`
}

// AltToken is the stored configuration of an accepted alternate purchase
// token.
type AltToken struct {
	TokenID      string              `json:"token_id"`
	Accepted     bool                `json:"accepted"`
	Price        decimal.Decimal     `json:"price"`
	Pair         string              `json:"pair"`
	Distribution config.Distribution `json:"distribution"`
}

// UpkeepPayload is the opaque action data flowing from CheckUpkeep back into
// PerformUpkeep. The histogram carried for a finalize action is validated
// against the engine's own stored histogram before it is acted on.
type UpkeepPayload struct {
	Action    enum.UpkeepAction `json:"action"`
	Round     uint64            `json:"round"`
	Histogram Histogram         `json:"histogram"`
}
