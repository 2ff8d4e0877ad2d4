// Package token defines the fungible token ledger consumed by the engine and
// a KV-backed implementation used in development and tests.
package token

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is the balance-transfer surface of a single fungible token.
type Ledger interface {
	BalanceOf(account string) (decimal.Decimal, error)
	Allowance(owner, spender string) (decimal.Decimal, error)
	Approve(owner, spender string, amount decimal.Decimal) error
	Transfer(from, to string, amount decimal.Decimal) error
	// TransferFrom moves owner funds on behalf of spender, consuming allowance.
	TransferFrom(spender, from, to string, amount decimal.Decimal) error
	Burn(from string, amount decimal.Decimal) error
}

// Registry resolves ledgers by opaque currency identifier. The home token and
// every accepted alternate token get their own entry.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[string]Ledger
}

func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]Ledger)}
}

func (r *Registry) Register(tokenID string, l Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[tokenID] = l
}

func (r *Registry) Ledger(tokenID string) (Ledger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[tokenID]
	return l, ok
}
