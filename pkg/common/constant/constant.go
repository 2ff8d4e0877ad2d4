package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// KV namespace roots
	KVPrefixRounds       = "rounds"
	KVPrefixTickets      = "tickets"
	KVPrefixBuyers       = "buyers"
	KVPrefixAltTokens    = "alt_tokens"
	KVPrefixUpkeepers    = "upkeepers"
	KVPrefixBalances     = "balances"
	KVPrefixAllowances   = "allowances"
	KVKeyCurrentRound    = "current_round"
	KVKeyRequestSequence = "request_seq"
)
