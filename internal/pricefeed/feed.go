// Package pricefeed exposes spot prices for display purposes, for example
// quoting the current pot in USD. Settlement math never depends on it.
package pricefeed

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrStalePrice = errors.New("price feed answer is stale")

// Feed returns the latest spot price for a trading pair such as "BLZ/USD".
type Feed interface {
	SpotPrice(pair string) (decimal.Decimal, error)
}

// Quote is one feed answer with its publication time.
type Quote struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// StaticFeed serves operator-configured quotes and rejects answers older than
// the configured staleness window. A zero window disables the check.
type StaticFeed struct {
	mu        sync.RWMutex
	quotes    map[string]Quote
	staleness time.Duration
}

func NewStaticFeed(staleness time.Duration) *StaticFeed {
	return &StaticFeed{
		quotes:    make(map[string]Quote),
		staleness: staleness,
	}
}

func (f *StaticFeed) SetPrice(pair string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[pair] = Quote{Price: price, UpdatedAt: time.Now()}
}

func (f *StaticFeed) SpotPrice(pair string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	q, ok := f.quotes[pair]
	if !ok {
		return decimal.Zero, errors.New("no quote for pair " + pair)
	}
	if f.staleness > 0 && time.Since(q.UpdatedAt) > f.staleness {
		return decimal.Zero, ErrStalePrice
	}
	return q.Price, nil
}
