package token

import (
	"testing"

	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, tokenID string) *KVLedger {
	t.Helper()
	store, err := kvstore.NewBadgerStore(t.TempDir(), "test", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewKVLedger(store, tokenID)
}

func TestKVLedger_MintAndBalance(t *testing.T) {
	l := newTestLedger(t, "BLZ")

	balance, err := l.BalanceOf("alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	require.NoError(t, l.Mint("alice", decimal.NewFromInt(500)))

	balance, err = l.BalanceOf("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))
}

func TestKVLedger_Transfer(t *testing.T) {
	l := newTestLedger(t, "BLZ")
	require.NoError(t, l.Mint("alice", decimal.NewFromInt(100)))

	require.NoError(t, l.Transfer("alice", "bob", decimal.NewFromInt(30)))

	aliceBalance, err := l.BalanceOf("alice")
	require.NoError(t, err)
	bobBalance, err := l.BalanceOf("bob")
	require.NoError(t, err)
	assert.True(t, aliceBalance.Equal(decimal.NewFromInt(70)))
	assert.True(t, bobBalance.Equal(decimal.NewFromInt(30)))
}

func TestKVLedger_TransferInsufficientBalance(t *testing.T) {
	l := newTestLedger(t, "BLZ")
	require.NoError(t, l.Mint("alice", decimal.NewFromInt(10)))

	err := l.Transfer("alice", "bob", decimal.NewFromInt(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// failed transfers leave both sides untouched
	aliceBalance, _ := l.BalanceOf("alice")
	bobBalance, _ := l.BalanceOf("bob")
	assert.True(t, aliceBalance.Equal(decimal.NewFromInt(10)))
	assert.True(t, bobBalance.IsZero())
}

func TestKVLedger_TransferRejectsNonPositive(t *testing.T) {
	l := newTestLedger(t, "BLZ")

	assert.ErrorIs(t, l.Transfer("alice", "bob", decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer("alice", "bob", decimal.NewFromInt(-1)), ErrInvalidAmount)
}

func TestKVLedger_TransferFromConsumesAllowance(t *testing.T) {
	l := newTestLedger(t, "BLZ")
	require.NoError(t, l.Mint("alice", decimal.NewFromInt(100)))
	require.NoError(t, l.Approve("alice", "engine", decimal.NewFromInt(40)))

	require.NoError(t, l.TransferFrom("engine", "alice", "pot", decimal.NewFromInt(25)))

	allowance, err := l.Allowance("alice", "engine")
	require.NoError(t, err)
	assert.True(t, allowance.Equal(decimal.NewFromInt(15)))

	err = l.TransferFrom("engine", "alice", "pot", decimal.NewFromInt(16))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
}

func TestKVLedger_TransferFromSelfSkipsAllowance(t *testing.T) {
	l := newTestLedger(t, "BLZ")
	require.NoError(t, l.Mint("alice", decimal.NewFromInt(100)))

	require.NoError(t, l.TransferFrom("alice", "alice", "pot", decimal.NewFromInt(100)))

	potBalance, err := l.BalanceOf("pot")
	require.NoError(t, err)
	assert.True(t, potBalance.Equal(decimal.NewFromInt(100)))
}

func TestKVLedger_Burn(t *testing.T) {
	l := newTestLedger(t, "BLZ")
	require.NoError(t, l.Mint("alice", decimal.NewFromInt(100)))

	require.NoError(t, l.Burn("alice", decimal.NewFromInt(60)))

	balance, err := l.BalanceOf("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))

	assert.ErrorIs(t, l.Burn("alice", decimal.NewFromInt(41)), ErrInsufficientBalance)
}

func TestKVLedger_IsolatedPerToken(t *testing.T) {
	store, err := kvstore.NewBadgerStore(t.TempDir(), "test", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	home := NewKVLedger(store, "BLZ")
	alt := NewKVLedger(store, "ALT")
	require.NoError(t, home.Mint("alice", decimal.NewFromInt(100)))

	altBalance, err := alt.BalanceOf("alice")
	require.NoError(t, err)
	assert.True(t, altBalance.IsZero())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	l := newTestLedger(t, "ALT")
	r.Register("ALT", l)

	got, ok := r.Ledger("ALT")
	assert.True(t, ok)
	assert.Same(t, l, got.(*KVLedger))

	_, ok = r.Ledger("MISSING")
	assert.False(t, ok)
}
