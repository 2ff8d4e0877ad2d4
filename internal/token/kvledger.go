package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blazelabs/lottery-engine/pkg/common/constant"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
	"github.com/shopspring/decimal"
)

// KVLedger keeps balances and allowances in a durable keyed store. A single
// mutex linearizes balance updates; the engine is the only writer in practice.
type KVLedger struct {
	mu      sync.Mutex
	store   infra.KVStore
	tokenID string
}

func NewKVLedger(store infra.KVStore, tokenID string) *KVLedger {
	return &KVLedger{store: store, tokenID: tokenID}
}

func (l *KVLedger) balanceKey(account string) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixBalances, l.tokenID, account)
}

func (l *KVLedger) allowanceKey(owner, spender string) string {
	return fmt.Sprintf("%s/%s/%s/%s", constant.KVPrefixAllowances, l.tokenID, owner, spender)
}

func (l *KVLedger) readAmount(key string) (decimal.Decimal, error) {
	raw, err := l.store.Get(key)
	if err != nil {
		// An account with no entry simply holds zero.
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (l *KVLedger) writeAmount(key string, amount decimal.Decimal) error {
	return l.store.Set(key, amount.String())
}

func (l *KVLedger) BalanceOf(account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAmount(l.balanceKey(account))
}

func (l *KVLedger) Allowance(owner, spender string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAmount(l.allowanceKey(owner, spender))
}

func (l *KVLedger) Approve(owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeAmount(l.allowanceKey(owner, spender), amount)
}

// Mint credits an account. Used to seed development and test environments.
func (l *KVLedger) Mint(account string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.readAmount(l.balanceKey(account))
	if err != nil {
		return err
	}
	return l.writeAmount(l.balanceKey(account), balance.Add(amount))
}

func (l *KVLedger) Transfer(from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

func (l *KVLedger) TransferFrom(spender, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		allowance, err := l.readAmount(l.allowanceKey(from, spender))
		if err != nil {
			return err
		}
		if allowance.LessThan(amount) {
			return fmt.Errorf("%w: %s allows %s to spend %s, want %s",
				ErrInsufficientAllowance, from, spender, allowance, amount)
		}
		if err := l.writeAmount(l.allowanceKey(from, spender), allowance.Sub(amount)); err != nil {
			return err
		}
	}
	return l.move(from, to, amount)
}

func (l *KVLedger) Burn(from string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, err := l.readAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, want to burn %s", ErrInsufficientBalance, from, balance, amount)
	}
	return l.writeAmount(l.balanceKey(from), balance.Sub(amount))
}

func (l *KVLedger) move(from, to string, amount decimal.Decimal) error {
	fromBalance, err := l.readAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, want %s", ErrInsufficientBalance, from, fromBalance, amount)
	}
	toBalance, err := l.readAmount(l.balanceKey(to))
	if err != nil {
		return err
	}
	if err := l.writeAmount(l.balanceKey(from), fromBalance.Sub(amount)); err != nil {
		return err
	}
	return l.writeAmount(l.balanceKey(to), toBalance.Add(amount))
}
