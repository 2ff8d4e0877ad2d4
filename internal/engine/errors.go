package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotOwner                  = errors.New("caller is not the owner")
	ErrInvalidUpkeeper           = errors.New("caller is not an authorized upkeeper")
	ErrRoundAlreadyActive        = errors.New("a round is already active")
	ErrInsufficientTickets       = errors.New("ticket list is empty")
	ErrInvalidRound              = errors.New("invalid round")
	ErrInvalidRoundEndConditions = errors.New("round state does not match the requested action")
	ErrAltTokenNotAccepted       = errors.New("alternate token not accepted")
	ErrInvalidDistribution       = errors.New("distribution percentages must sum to 100")
	ErrTicketNotOwned            = errors.New("ticket index does not belong to owner in this round")
	ErrNotAWinner                = errors.New("ticket is not a winner")
	ErrRoundNotClaimable         = errors.New("round rewards are not claimable yet")
)

// RoundInactiveError rejects purchases outside an active window. It carries
// the id of the round the engine considers current.
type RoundInactiveError struct {
	Round uint64
}

func (e *RoundInactiveError) Error() string {
	return fmt.Sprintf("round %d is not accepting purchases", e.Round)
}

// DuplicateClaimError rejects a claim for a ticket index that was already
// paid out.
type DuplicateClaimError struct {
	Round uint64
	Index uint64
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("ticket %d of round %d is already claimed", e.Index, e.Round)
}

// InvalidClaimMatchError rejects a claim whose declared match count disagrees
// with the ticket's true match count, or falls below the minimum payable tier.
type InvalidClaimMatchError struct {
	Index uint64
}

func (e *InvalidClaimMatchError) Error() string {
	return fmt.Sprintf("declared match count for ticket %d is wrong or below the payable tiers", e.Index)
}
