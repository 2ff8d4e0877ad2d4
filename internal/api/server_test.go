package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blazelabs/lottery-engine/internal/engine"
	"github.com/blazelabs/lottery-engine/internal/oracle"
	"github.com/blazelabs/lottery-engine/internal/pricefeed"
	"github.com/blazelabs/lottery-engine/internal/token"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	server *Server
	engine *engine.Engine
	home   *token.KVLedger
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	kv, err := kvstore.NewBadgerStore(t.TempDir(), "lottery", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	home := token.NewKVLedger(kv, "BLZ")
	registry := token.NewRegistry()
	registry.Register("BLZ", home)

	cfg := config.EngineCfg{
		Owner:           "owner",
		DevWallet:       "dev",
		Treasury:        "treasury",
		SubscriptionRef: "sub-1",
		TicketPrice:     "10",
		RoundDuration:   3600,
		RolloverPercent: 75,
		Distribution:    config.Distribution{Burn: 20, Dev: 5, Match3: 25, Match4: 25, Match5: 25},
	}

	coord := oracle.NewLocalCoordinator(kv, 0)
	eng, err := engine.New(cfg, kv, registry, "BLZ", coord, nil)
	require.NoError(t, err)

	feed := pricefeed.NewStaticFeed(0)
	feed.SetPrice("BLZ/USD", decimal.RequireFromString("0.5"))

	server := NewServer(config.APICfg{Port: 0}, eng, feed, "BLZ/USD")
	return &apiEnv{server: server, engine: eng, home: home}
}

func (env *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) activateAndFund(t *testing.T) {
	t.Helper()
	require.NoError(t, env.engine.Activate("owner", decimal.NewFromInt(10), time.Now().Add(time.Hour)))
	require.NoError(t, env.home.Mint("alice", decimal.NewFromInt(1000)))
	require.NoError(t, env.home.Approve("alice", engine.VaultAccount, decimal.NewFromInt(1000)))
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentRound_NotFoundBeforeActivation(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/rounds/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateAndBuyFlow(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/activate", activateRequest{
		Caller: "owner", Price: "10", EndTime: time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, env.home.Mint("alice", decimal.NewFromInt(1000)))
	require.NoError(t, env.home.Approve("alice", engine.VaultAccount, decimal.NewFromInt(1000)))

	rec = env.do(t, http.MethodPost, "/api/v1/tickets/buy", buyRequest{
		Buyer:   "alice",
		Tickets: [][5]uint8{{10, 20, 30, 40, 50}, {1, 2, 3, 4, 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/rounds/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var round engine.Round
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &round))
	assert.Equal(t, uint64(2), round.TicketCount)
	assert.True(t, round.Pot.Equal(decimal.NewFromInt(20)))

	rec = env.do(t, http.MethodGet, "/api/v1/rounds/1/tickets?buyer=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var owned engine.UserTickets
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &owned))
	assert.Equal(t, []uint64{0, 1}, owned.Indices)
}

func TestBuy_RejectsInvalidDigit(t *testing.T) {
	env := newAPIEnv(t)
	env.activateAndFund(t)

	rec := env.do(t, http.MethodPost, "/api/v1/tickets/buy", buyRequest{
		Buyer:   "alice",
		Tickets: [][5]uint8{{99, 0, 0, 0, 0}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_ForbiddenForStranger(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/activate", activateRequest{
		Caller: "stranger", Price: "10", EndTime: time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMatchEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/match?a=10,20,30,40,50&b=10,10,30,40,10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]uint8
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint8(3), resp["matches"])
}

func TestPotUSD(t *testing.T) {
	env := newAPIEnv(t)
	env.activateAndFund(t)

	rec := env.do(t, http.MethodPost, "/api/v1/tickets/buy", buyRequest{
		Buyer:   "alice",
		Tickets: [][5]uint8{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/pot/usd", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "20", resp["pot"])
	assert.Equal(t, "10", resp["pot_usd"])
}

func TestUpkeepEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/upkeep/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check upkeepCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.False(t, check.Needed)

	// performing without a payload is a state fault, not a crash
	rec = env.do(t, http.MethodPost, "/api/v1/upkeep/perform", upkeepPerformRequest{
		Caller: "owner", Payload: json.RawMessage(`{"action":"request_draw","round":1}`),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaim_ConflictBeforeDraw(t *testing.T) {
	env := newAPIEnv(t)
	env.activateAndFund(t)

	rec := env.do(t, http.MethodPost, "/api/v1/tickets/claim", claimRequest{
		Caller: "alice", Round: 1, Indices: []uint64{0}, MatchCounts: []uint8{5},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
