// Package events publishes round lifecycle events to the message queue so
// downstream consumers (notifiers, analytics) can follow the engine without
// polling it.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/blazelabs/lottery-engine/pkg/infra"
)

const (
	StreamName = "lottery"

	SubjectRoundActivated   = "lottery.events.round_activated"
	SubjectTicketsPurchased = "lottery.events.tickets_purchased"
	SubjectPotIncreased     = "lottery.events.pot_increased"
	SubjectDrawRequested    = "lottery.events.draw_requested"
	SubjectDrawFulfilled    = "lottery.events.draw_fulfilled"
	SubjectRoundFinalized   = "lottery.events.round_finalized"
	SubjectRewardClaimed    = "lottery.events.reward_claimed"
)

// SubjectWildcards covers every subject this package publishes. Pass it to the
// queue manager when creating the stream.
var SubjectWildcards = []string{"lottery.events.*"}

type RoundActivated struct {
	Round       uint64 `json:"round"`
	TicketPrice string `json:"ticket_price"`
	EndTime     int64  `json:"end_time"`
}

type TicketsPurchased struct {
	Round    uint64 `json:"round"`
	Buyer    string `json:"buyer"`
	Count    int    `json:"count"`
	Currency string `json:"currency"`
	Paid     string `json:"paid"`
}

type PotIncreased struct {
	Round  uint64 `json:"round"`
	Amount string `json:"amount"`
	Pot    string `json:"pot"`
}

type DrawRequested struct {
	Round     uint64 `json:"round"`
	RequestID uint64 `json:"request_id"`
}

type DrawFulfilled struct {
	Round         uint64   `json:"round"`
	RequestID     uint64   `json:"request_id"`
	WinningDigits [5]uint8 `json:"winning_digits"`
}

type RoundFinalized struct {
	Round     uint64 `json:"round"`
	Pot       string `json:"pot"`
	Rollover  string `json:"rollover"`
	NextRound uint64 `json:"next_round"`
}

type RewardClaimed struct {
	Round  uint64 `json:"round"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// Emitter publishes engine events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	RoundActivated(e RoundActivated) error
	TicketsPurchased(e TicketsPurchased) error
	PotIncreased(e PotIncreased) error
	DrawRequested(e DrawRequested) error
	DrawFulfilled(e DrawFulfilled) error
	RoundFinalized(e RoundFinalized) error
	RewardClaimed(e RewardClaimed) error
}

// QueueEmitter publishes events as JSON onto the message queue. Subjects that
// describe an at-most-once fact (draws, finalization) carry an idempotent key
// so queue-level deduplication drops replays.
type QueueEmitter struct {
	queue infra.MessageQueue
}

func NewQueueEmitter(queue infra.MessageQueue) *QueueEmitter {
	return &QueueEmitter{queue: queue}
}

func (q *QueueEmitter) publish(subject string, payload any, idempotentKey string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	var opts *infra.EnqueueOptions
	if idempotentKey != "" {
		opts = &infra.EnqueueOptions{IdempotentKey: idempotentKey}
	}
	return q.queue.Enqueue(subject, data, opts)
}

func (q *QueueEmitter) RoundActivated(e RoundActivated) error {
	return q.publish(SubjectRoundActivated, e, fmt.Sprintf("round_activated:%d", e.Round))
}

func (q *QueueEmitter) TicketsPurchased(e TicketsPurchased) error {
	return q.publish(SubjectTicketsPurchased, e, "")
}

func (q *QueueEmitter) PotIncreased(e PotIncreased) error {
	return q.publish(SubjectPotIncreased, e, "")
}

func (q *QueueEmitter) DrawRequested(e DrawRequested) error {
	return q.publish(SubjectDrawRequested, e, fmt.Sprintf("draw_requested:%d", e.Round))
}

func (q *QueueEmitter) DrawFulfilled(e DrawFulfilled) error {
	return q.publish(SubjectDrawFulfilled, e, fmt.Sprintf("draw_fulfilled:%d:%d", e.Round, e.RequestID))
}

func (q *QueueEmitter) RoundFinalized(e RoundFinalized) error {
	return q.publish(SubjectRoundFinalized, e, fmt.Sprintf("round_finalized:%d", e.Round))
}

func (q *QueueEmitter) RewardClaimed(e RewardClaimed) error {
	return q.publish(SubjectRewardClaimed, e, "")
}

// NoopEmitter drops every event. Used when no queue is configured and in tests.
type NoopEmitter struct{}

func (NoopEmitter) RoundActivated(RoundActivated) error     { return nil }
func (NoopEmitter) TicketsPurchased(TicketsPurchased) error { return nil }
func (NoopEmitter) PotIncreased(PotIncreased) error         { return nil }
func (NoopEmitter) DrawRequested(DrawRequested) error       { return nil }
func (NoopEmitter) DrawFulfilled(DrawFulfilled) error       { return nil }
func (NoopEmitter) RoundFinalized(RoundFinalized) error     { return nil }
func (NoopEmitter) RewardClaimed(RewardClaimed) error       { return nil }
