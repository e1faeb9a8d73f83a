package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"liquidityhub/core/events"
	nativecommon "liquidityhub/native/common"
	"liquidityhub/native/liquidity"
	ledgermw "liquidityhub/services/ledgerd/middleware"
	"liquidityhub/storage"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "ledger-ops"
)

type harness struct {
	t      *testing.T
	engine *liquidity.Engine
	hub    *Hub
	pauses *nativecommon.PauseSet
	server *Server
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	state := liquidity.NewKVState(storage.NewMemDB())
	h.engine = liquidity.NewEngine(liquidity.DefaultConfig())
	h.engine.SetState(state)
	h.engine.SetClock(func() time.Time { return h.now })
	kinked := liquidity.NewKinkedStrategy()
	require.NoError(t, h.engine.RegisterStrategy(liquidity.KinkedStrategyName, kinked))

	h.hub = NewHub(16, logger)
	h.pauses = nativecommon.NewPauseSet()
	h.engine.SetEmitter(h.hub)
	h.engine.SetPauses(h.pauses)

	h.server = New(Config{
		Engine:    h.engine,
		Kinked:    kinked,
		Journal:   state,
		Hub:       h.hub,
		Pauses:    h.pauses,
		Auth:      ledgermw.AuthConfig{HMACSecret: testSecret, Issuer: testIssuer, Admins: []string{"governance"}},
		RateLimit: ledgermw.RateLimit{RequestsPerMinute: 60_000, Burst: 1_000},
		Registry:  prometheus.NewRegistry(),
		Logger:    logger,
	})
	return h
}

func (h *harness) token(subject string) string {
	h.t.Helper()
	token, err := ledgermw.IssueToken(testSecret, testIssuer, "", subject, time.Hour, time.Now())
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, subject string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = strings.NewReader(string(payload))
	}
	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(subject))
	}
	res := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(res, req)
	return res
}

func (h *harness) listUSDC() {
	h.t.Helper()
	res := h.do(http.MethodPut, "/v1/admin/assets/usdc", "governance", assetConfigRequest{
		ReinvestmentController: "vault",
		Model:                  &modelRequest{BaseRateBps: 200, Slope1Bps: 400, Slope2Bps: 6_000, OptimalUtilBps: 8_000},
	})
	require.Equal(h.t, http.StatusCreated, res.Code, res.Body.String())
	for _, participant := range []string{"alice", "vault"} {
		res = h.do(http.MethodPut, "/v1/admin/assets/usdc/participants/"+participant, "governance", participantConfigRequest{Active: true})
		require.Equal(h.t, http.StatusOK, res.Code, res.Body.String())
	}
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func TestServerLedgerLifecycle(t *testing.T) {
	h := newHarness(t)
	h.listUSDC()

	res := h.do(http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "1000000"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "1000000", decode[map[string]string](t, res)["shares"])

	res = h.do(http.MethodPost, "/v1/assets/usdc/draw", "alice", amountRequest{Amount: "250000"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	h.now = h.now.Add(365 * 24 * time.Hour)

	res = h.do(http.MethodGet, "/v1/assets/usdc", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	pool := decode[poolResponse](t, res)
	require.Equal(t, "750000", pool.Liquidity)
	require.Equal(t, "kinked", pool.Strategy)
	drawn, ok := new(big.Int).SetString(pool.Drawn, 10)
	require.True(t, ok)
	require.Equal(t, 1, drawn.Cmp(big.NewInt(250_000)), "drawn value should include a year of interest")
	require.Equal(t, liquidity.Ray().String(), pool.DrawnIndex, "reads must not commit accrual")

	res = h.do(http.MethodGet, "/v1/assets/usdc/participants/alice", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	participant := decode[participantResponse](t, res)
	require.Equal(t, "750000", participant.Withdrawable)
	require.Equal(t, pool.Drawn, participant.OwedDrawn)

	res = h.do(http.MethodGet, "/v1/assets/usdc/preview/shares?value=1000&rounding=up", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "up", decode[map[string]string](t, res)["rounding"])

	res = h.do(http.MethodPost, "/v1/assets/usdc/accrue", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	accrued := decode[poolResponse](t, res)
	require.NotEqual(t, liquidity.Ray().String(), accrued.DrawnIndex)

	res = h.do(http.MethodPost, "/v1/assets/usdc/transfer", "alice", transferRequest{To: "vault", Shares: "1000"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())

	res = h.do(http.MethodPost, "/v1/assets/usdc/sweep", "vault", amountRequest{Amount: "100000"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	res = h.do(http.MethodPost, "/v1/assets/usdc/reclaim", "vault", amountRequest{Amount: "40000"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())

	res = h.do(http.MethodGet, "/v1/assets/usdc", "alice", nil)
	pool = decode[poolResponse](t, res)
	require.Equal(t, "690000", pool.Liquidity)
	require.Equal(t, "60000", pool.Swept)

	res = h.do(http.MethodGet, "/v1/assets", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, decode[map[string][]poolResponse](t, res)["assets"], 1)

	res = h.do(http.MethodPut, "/v1/admin/assets/usdc", "governance", assetConfigRequest{
		Strategy:               liquidity.KinkedStrategyName,
		ReinvestmentController: "vault",
	})
	require.Equal(t, http.StatusOK, res.Code, "reconfiguring a listed asset updates it")
}

func TestServerErrorMapping(t *testing.T) {
	h := newHarness(t)
	h.listUSDC()

	cases := []struct {
		name    string
		method  string
		path    string
		subject string
		body    any
		status  int
		code    string
	}{
		{"unlisted asset", http.MethodPost, "/v1/assets/eth/add", "alice", amountRequest{Amount: "10"}, http.StatusNotFound, "asset_not_listed"},
		{"zero amount", http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "0"}, http.StatusBadRequest, "invalid_amount"},
		{"malformed amount", http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "1e6"}, http.StatusBadRequest, "invalid_amount"},
		{"inactive participant", http.MethodPost, "/v1/assets/usdc/add", "mallory", amountRequest{Amount: "10"}, http.StatusUnprocessableEntity, "participant_not_active"},
		{"insufficient liquidity", http.MethodPost, "/v1/assets/usdc/draw", "alice", amountRequest{Amount: "10"}, http.StatusUnprocessableEntity, "insufficient_liquidity"},
		{"not controller", http.MethodPost, "/v1/assets/usdc/sweep", "alice", amountRequest{Amount: "10"}, http.StatusForbidden, "unauthorized"},
		{"unknown participant", http.MethodGet, "/v1/assets/usdc/participants/bob", "alice", nil, http.StatusNotFound, "participant_not_found"},
		{"unknown strategy", http.MethodPut, "/v1/admin/assets/dai", "governance", assetConfigRequest{Strategy: "missing"}, http.StatusBadRequest, "strategy_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := h.do(tc.method, tc.path, tc.subject, tc.body)
			require.Equal(t, tc.status, res.Code, res.Body.String())
			require.Equal(t, tc.code, decode[errorBody](t, res).Error)
		})
	}
}

func TestServerAuthorization(t *testing.T) {
	h := newHarness(t)

	res := h.do(http.MethodGet, "/v1/assets", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(http.MethodPut, "/v1/admin/assets/usdc", "alice", assetConfigRequest{})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestServerPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	h.listUSDC()

	res := h.do(http.MethodPost, "/v1/admin/pause", "governance", nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = h.do(http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "10"})
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Equal(t, "paused", decode[errorBody](t, res).Error)

	res = h.do(http.MethodGet, "/v1/admin/pauses", "governance", nil)
	require.Equal(t, []string{liquidity.ModuleName}, decode[map[string][]string](t, res)["paused"])

	res = h.do(http.MethodPost, "/v1/admin/resume", "governance", nil)
	require.Equal(t, http.StatusNoContent, res.Code)
	res = h.do(http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "10"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestServerJournalPaging(t *testing.T) {
	h := newHarness(t)
	h.listUSDC()
	res := h.do(http.MethodPost, "/v1/assets/usdc/add", "alice", amountRequest{Amount: "500"})
	require.Equal(t, http.StatusOK, res.Code)

	res = h.do(http.MethodGet, "/v1/journal?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	page := decode[map[string][]events.JournalEntry](t, res)["entries"]
	require.Len(t, page, 2)
	require.Equal(t, events.TypeLiquidityAssetConfigured, page[0].Type)

	res = h.do(http.MethodGet, "/v1/journal", "alice", nil)
	all := decode[map[string][]events.JournalEntry](t, res)["entries"]
	require.NoError(t, events.VerifyJournal(all))
	require.Equal(t, events.TypeLiquidityAdded, all[len(all)-1].Type)

	res = h.do(http.MethodGet, "/v1/journal?limit=-1", "alice", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHubFiltersAndDrops(t *testing.T) {
	hub := NewHub(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	usdc, cancelUSDC := hub.Subscribe("usdc")
	defer cancelUSDC()
	all, cancelAll := hub.Subscribe("")

	hub.Emit(events.LiquidityMovement{Type: events.TypeLiquidityAdded, Asset: "eth", Participant: "alice"})
	hub.Emit(events.LiquidityMovement{Type: events.TypeLiquidityDrawn, Asset: "usdc", Participant: "alice"})

	got := <-usdc
	require.Equal(t, events.TypeLiquidityDrawn, got.Type)
	require.Equal(t, "usdc", got.Attributes["asset"])

	first := <-all
	require.Equal(t, "eth", first.Attributes["asset"])
	require.Equal(t, uint64(1), hub.Dropped(), "second event overflows the single-slot buffer")

	cancelAll()
	cancelAll()
	_, open := <-all
	require.False(t, open)
}

func TestStreamReplaysJournalThenFollows(t *testing.T) {
	h := newHarness(t)
	h.listUSDC()

	srv := httptest.NewServer(h.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?asset=usdc&from=1"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + h.token("alice")}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() StreamEvent {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt StreamEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}

	replayed := read()
	require.Equal(t, events.TypeLiquidityAssetConfigured, replayed.Type)
	require.NotZero(t, replayed.Sequence)

	_, err = h.engine.Add(ctx, "usdc", "alice", big.NewInt(42))
	require.NoError(t, err)
	for {
		evt := read()
		if evt.Type == events.TypeLiquidityAdded {
			require.Equal(t, "42", evt.Attributes["value"])
			break
		}
	}
}
