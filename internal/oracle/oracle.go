// Package oracle provides the randomness coordinator boundary. Draws request
// random words through a Coordinator and receive them later through a
// fulfillment callback, never synchronously.
package oracle

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blazelabs/lottery-engine/pkg/common/constant"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
)

var ErrNoFulfillmentHandler = errors.New("no fulfillment handler registered")

// Fulfillment carries the random words answered for one request.
type Fulfillment struct {
	RequestID uint64   `json:"request_id"`
	Words     []uint64 `json:"words"`
}

// FulfillFunc consumes a fulfillment. Handlers must tolerate replays of the
// same request id.
type FulfillFunc func(f Fulfillment) error

// Coordinator is the randomness source behind draws.
type Coordinator interface {
	// RequestRandomness asks for numWords random words billed against the
	// given subscription and returns the request id. Words arrive later
	// through the registered fulfillment handler.
	RequestRandomness(ctx context.Context, subscriptionRef string, numWords int) (uint64, error)
	OnFulfillment(fn FulfillFunc)
}

// LocalCoordinator fulfills requests from the operating system entropy source
// after a short delay, mimicking the asynchronous answer of an external
// randomness service. Request ids are a persisted monotonic sequence so they
// stay unique across restarts.
type LocalCoordinator struct {
	mu      sync.Mutex
	store   infra.KVStore
	delay   time.Duration
	fulfill FulfillFunc
	wg      sync.WaitGroup

	quit      chan struct{}
	closeOnce sync.Once
}

func NewLocalCoordinator(store infra.KVStore, delay time.Duration) *LocalCoordinator {
	return &LocalCoordinator{store: store, delay: delay, quit: make(chan struct{})}
}

func (c *LocalCoordinator) OnFulfillment(fn FulfillFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulfill = fn
}

func (c *LocalCoordinator) RequestRandomness(ctx context.Context, subscriptionRef string, numWords int) (uint64, error) {
	if numWords <= 0 {
		return 0, fmt.Errorf("numWords must be positive, got %d", numWords)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fulfill == nil {
		return 0, ErrNoFulfillmentHandler
	}

	requestID, err := c.nextRequestID()
	if err != nil {
		return 0, err
	}

	words := make([]uint64, numWords)
	var buf [8]byte
	for i := range words {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read entropy: %w", err)
		}
		words[i] = binary.BigEndian.Uint64(buf[:])
	}

	logger.Info("randomness requested",
		"request_id", requestID, "num_words", numWords, "subscription", subscriptionRef)

	// Delivery is tied to the coordinator's lifetime, not the caller's
	// context: an issued request id is already persisted on the round, so
	// dropping its words would strand the round waiting forever. Callers
	// such as HTTP handlers cancel their context as soon as they return.
	fn := c.fulfill
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if c.delay > 0 {
			select {
			case <-time.After(c.delay):
			case <-c.quit:
				logger.Warn("randomness request dropped at shutdown", "request_id", requestID)
				return
			}
		}
		if err := fn(Fulfillment{RequestID: requestID, Words: words}); err != nil {
			logger.Error("fulfillment handler failed", "request_id", requestID, "error", err)
		}
	}()

	return requestID, nil
}

// Close aborts pending deliveries and waits for the delivery goroutines to
// drain. Requests issued after Close still fulfill immediately.
func (c *LocalCoordinator) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
}

// Wait blocks until every in-flight fulfillment has been delivered.
func (c *LocalCoordinator) Wait() {
	c.wg.Wait()
}

func (c *LocalCoordinator) nextRequestID() (uint64, error) {
	var seq uint64
	raw, err := c.store.Get(constant.KVKeyRequestSequence)
	if err != nil && !errors.Is(err, kvstore.ErrKeyNotFound) {
		return 0, err
	}
	if raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &seq); err != nil {
			return 0, fmt.Errorf("corrupt request sequence %q: %w", raw, err)
		}
	}
	seq++
	if err := c.store.Set(constant.KVKeyRequestSequence, fmt.Sprintf("%d", seq)); err != nil {
		return 0, err
	}
	return seq, nil
}
