package enum

type KVStoreType string

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

// RoundStatus is the explicit lifecycle state of a round. Transitions only
// move forward; illegal flag combinations cannot be represented.
type RoundStatus string

const (
	RoundStatusPending            RoundStatus = "pending"
	RoundStatusActive             RoundStatus = "active"
	RoundStatusAwaitingRandomness RoundStatus = "awaiting_randomness"
	RoundStatusDrawn              RoundStatus = "drawn"
	RoundStatusFinalized          RoundStatus = "finalized"
)

// UpkeepAction is the action kind a checkUpkeep poll asks the caller to
// perform.
type UpkeepAction string

const (
	UpkeepActionNone         UpkeepAction = "none"
	UpkeepActionRequestDraw  UpkeepAction = "request_draw"
	UpkeepActionFinalizeDraw UpkeepAction = "finalize_draw"
)
