package engine

import (
	"testing"

	"github.com/blazelabs/lottery-engine/internal/token"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const altTokenID = "BUSD"

// the home-token tier share of alt purchases comes out of the treasury
var altSplit = config.Distribution{Burn: 20, Dev: 5, Match3: 25, Match4: 25, Match5: 25}

func newAltEnv(t *testing.T) (*testEnv, *token.KVLedger) {
	t.Helper()

	kv, err := kvstore.NewBadgerStore(t.TempDir(), "lottery", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	home := token.NewKVLedger(kv, homeTokenID)
	alt := token.NewKVLedger(kv, altTokenID)
	registry := token.NewRegistry()
	registry.Register(homeTokenID, home)
	registry.Register(altTokenID, alt)

	coord := &stubCoordinator{}
	cfg := config.EngineCfg{
		Owner:           testOwner,
		DevWallet:       testDev,
		Treasury:        testTreasury,
		SubscriptionRef: "sub-1",
		TicketPrice:     "10",
		RoundDuration:   3600,
		RolloverPercent: 75,
		Distribution:    config.Distribution{Burn: 20, Dev: 5, Match3: 25, Match4: 25, Match5: 25},
	}

	eng, err := New(cfg, kv, registry, homeTokenID, coord, nil)
	require.NoError(t, err)

	clock := &testClock{now: testEnvEpoch}
	eng.now = clock.Now
	require.NoError(t, eng.SetUpkeeper(testOwner, testUpkeeper, true))

	env := &testEnv{engine: eng, home: home, coord: coord, clock: clock}
	return env, alt
}

func configureAlt(t *testing.T, env *testEnv, price int64) {
	t.Helper()
	require.NoError(t, env.engine.SetAltDistribution(testOwner, altTokenID, altSplit, "busd-blz-pair"))
	require.NoError(t, env.engine.SetAltPrice(testOwner, altTokenID, decimal.NewFromInt(price)))
	require.NoError(t, env.engine.AcceptAlt(testOwner, altTokenID, true))
}

func TestSetAltDistribution_RejectsBadSum(t *testing.T) {
	env, _ := newAltEnv(t)

	bad := config.Distribution{Burn: 50, Dev: 50, Match3: 50}
	err := env.engine.SetAltDistribution(testOwner, altTokenID, bad, "pair")
	assert.ErrorIs(t, err, ErrInvalidDistribution)
}

func TestAcceptAlt_RequiresConfiguration(t *testing.T) {
	env, _ := newAltEnv(t)

	err := env.engine.AcceptAlt(testOwner, "UNKNOWN", true)
	assert.Error(t, err)
}

func TestBuyTicketsWithAlt_RejectsUnacceptedToken(t *testing.T) {
	env, _ := newAltEnv(t)
	env.activate(t)

	err := env.engine.BuyTicketsWithAlt("alice", repeatTickets(mustTicket(t, [5]uint8{1, 2, 3, 4, 5}), 1), altTokenID)
	assert.ErrorIs(t, err, ErrAltTokenNotAccepted)
}

func TestBuyTicketsWithAlt_RoutesSplitsAndFundsPot(t *testing.T) {
	env, alt := newAltEnv(t)
	env.activate(t)
	configureAlt(t, env, 2)

	// seed the treasury with home tokens and the buyer with alt tokens
	require.NoError(t, env.home.Mint(testTreasury, decimal.NewFromInt(10_000)))
	require.NoError(t, alt.Mint("alice", decimal.NewFromInt(1000)))
	require.NoError(t, alt.Approve("alice", VaultAccount, decimal.NewFromInt(1000)))

	tk := mustTicket(t, [5]uint8{10, 20, 30, 40, 50})
	require.NoError(t, env.engine.BuyTicketsWithAlt("alice", repeatTickets(tk, 10), altTokenID))

	// 10 tickets at alt price 2: paid 20, burn 20% = 4, dev 5% = 1
	aliceAlt, err := alt.BalanceOf("alice")
	require.NoError(t, err)
	assert.True(t, aliceAlt.Equal(decimal.NewFromInt(980)))

	devAlt, err := alt.BalanceOf(testDev)
	require.NoError(t, err)
	assert.True(t, devAlt.Equal(decimal.NewFromInt(1)))

	vaultAlt, err := alt.BalanceOf(VaultAccount)
	require.NoError(t, err)
	assert.True(t, vaultAlt.Equal(decimal.NewFromInt(15)))

	// pot credit: tier share of the home-token value, 75% of 10×10
	r, err := env.engine.CurrentRound()
	require.NoError(t, err)
	assert.True(t, r.Pot.Equal(decimal.NewFromInt(75)), "pot is %s", r.Pot)
	assert.Equal(t, uint64(10), r.TicketCount)

	treasury, err := env.home.BalanceOf(testTreasury)
	require.NoError(t, err)
	assert.True(t, treasury.Equal(decimal.NewFromInt(9925)))

	// alt-bought tickets settle exactly like native ones
	owned, err := env.engine.GetUserTickets("alice", r.ID)
	require.NoError(t, err)
	assert.Len(t, owned.Indices, 10)
}

func TestBuyTicketsWithAlt_DryTreasuryLeavesBuyerWhole(t *testing.T) {
	env, alt := newAltEnv(t)
	env.activate(t)
	configureAlt(t, env, 2)

	// the buyer is funded but the treasury is not, so the pot leg must fail
	require.NoError(t, alt.Mint("alice", decimal.NewFromInt(1000)))
	require.NoError(t, alt.Approve("alice", VaultAccount, decimal.NewFromInt(1000)))

	tk := mustTicket(t, [5]uint8{10, 20, 30, 40, 50})
	err := env.engine.BuyTicketsWithAlt("alice", repeatTickets(tk, 10), altTokenID)
	require.Error(t, err)

	// nothing moved: no alt tokens left the buyer and no tickets were sold
	aliceAlt, balErr := alt.BalanceOf("alice")
	require.NoError(t, balErr)
	assert.True(t, aliceAlt.Equal(decimal.NewFromInt(1000)), "alice holds %s", aliceAlt)

	vaultAlt, balErr := alt.BalanceOf(VaultAccount)
	require.NoError(t, balErr)
	assert.True(t, vaultAlt.IsZero())

	devAlt, balErr := alt.BalanceOf(testDev)
	require.NoError(t, balErr)
	assert.True(t, devAlt.IsZero())

	r, rErr := env.engine.CurrentRound()
	require.NoError(t, rErr)
	assert.Zero(t, r.TicketCount)
	assert.True(t, r.Pot.IsZero())
}

func TestBuyTicketsWithAlt_TicketsWinLikeNativeOnes(t *testing.T) {
	env, alt := newAltEnv(t)
	env.activate(t)
	configureAlt(t, env, 2)

	require.NoError(t, env.home.Mint(testTreasury, decimal.NewFromInt(10_000)))
	require.NoError(t, alt.Mint("alice", decimal.NewFromInt(1000)))
	require.NoError(t, alt.Approve("alice", VaultAccount, decimal.NewFromInt(1000)))

	fiveMatch := mustTicket(t, [5]uint8{10, 20, 30, 40, 50})
	require.NoError(t, env.engine.BuyTicketsWithAlt("alice", repeatTickets(fiveMatch, 1), altTokenID))

	settled := env.drawAndFinalize(t, [5]uint8{10, 20, 30, 40, 50})
	assert.Equal(t, uint64(1), settled.Histogram[5])

	total, err := env.engine.ClaimTickets("alice", settled.ID, []uint64{0}, []uint8{5})
	require.NoError(t, err)
	assert.True(t, total.Equal(percentOf(settled.Pot, altSplit.Match5)))
}
