package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmrest"
	"github.com/lnm-trading/agent/internal/storage"
)

// fakeTradeRepo is a hand-rolled storage.TradeRepository backed by an
// in-memory map, since LiveExecutor only ever upserts/reads by ID here.
type fakeTradeRepo struct {
	mu     sync.Mutex
	trades map[string]storage.Trade
}

func newFakeTradeRepo() *fakeTradeRepo {
	return &fakeTradeRepo{trades: make(map[string]storage.Trade)}
}

func (r *fakeTradeRepo) Upsert(ctx context.Context, trade storage.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[trade.ID] = trade
	return nil
}

func (r *fakeTradeRepo) GetByID(ctx context.Context, id string) (*storage.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *fakeTradeRepo) GetRunning(ctx context.Context) ([]storage.Trade, error) {
	return nil, nil
}

func (r *fakeTradeRepo) GetClosed(ctx context.Context, limit int) ([]storage.Trade, error) {
	return nil, nil
}

// fakeVenue is a minimal stand-in for the venue's REST API, just enough to
// drive LiveExecutor.reconcile and the stoploss-update path.
type fakeVenue struct {
	mu      sync.Mutex
	running map[string]lnmrest.TradePage
	balance uint64
	ticker  lnmrest.TickerPage
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		running: make(map[string]lnmrest.TradePage),
		balance: 1_000_000,
		ticker:  lnmrest.TickerPage{LastPrice: 50000, IndexPrice: 50000},
	}
}

func (v *fakeVenue) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/futures" && r.URL.Query().Get("type") == "running":
			out := make([]lnmrest.TradePage, 0, len(v.running))
			for _, t := range v.running {
				out = append(out, t)
			}
			json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodGet && r.URL.Path == "/v2/futures" && r.URL.Query().Get("type") == "closed":
			json.NewEncoder(w).Encode([]lnmrest.TradePage{})

		case r.Method == http.MethodGet && r.URL.Path == "/v2/user":
			json.NewEncoder(w).Encode(lnmrest.AccountInfo{Balance: v.balance})

		case r.Method == http.MethodGet && r.URL.Path == "/v2/futures/ticker":
			json.NewEncoder(w).Encode(v.ticker)

		case r.Method == http.MethodPut && r.URL.Path == "/v2/futures":
			var req lnmrest.UpdateStoplossRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			t, ok := v.running[req.ID]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sl := req.Value
			t.Stoploss = &sl
			v.running[req.ID] = t
			json.NewEncoder(w).Encode(t)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestLiveExecutor(t *testing.T, venue *fakeVenue) (*LiveExecutor, *fakeTradeRepo) {
	t.Helper()
	srv := httptest.NewServer(venue.handler())
	t.Cleanup(srv.Close)

	rest := lnmrest.NewClient(lnmrest.Credentials{Key: "k", Secret: "s", Passphrase: "p"}, lnmrest.WithBaseURL(srv.URL))
	repo := newFakeTradeRepo()
	exec := NewLiveExecutor(rest, repo, zerolog.Nop())
	return exec, repo
}

func runningTradePage(id string, stoploss *float64) lnmrest.TradePage {
	return lnmrest.TradePage{
		ID:          id,
		Side:        "b",
		Type:        "m",
		Quantity:    1000,
		Margin:      200000,
		Leverage:    10,
		Price:       50000,
		Liquidation: 45000,
		Stoploss:    stoploss,
		OpeningFee:  400,
		ClosingFee:  400,
		CreationTS:  1700000000000,
		Running:     true,
	}
}

func TestLiveExecutorUpdateStoplossReconcilesRunningTradeState(t *testing.T) {
	ctx := context.Background()
	venue := newFakeVenue()
	venue.running["trade-1"] = runningTradePage("trade-1", nil)

	exec, _ := newTestLiveExecutor(t, venue)

	// UpdateTradeStoploss requires readiness, normally set by Run's initial
	// reconcile; drive reconcile directly and flip readiness for the test.
	require.NoError(t, exec.reconcile(ctx))
	exec.setReadiness(ReadinessReady)

	require.Empty(t, exec.TradingState().Running["trade-1"].Stoploss)

	newSL := 48000.0
	slPrice, err := lnm.NewPrice(newSL)
	require.NoError(t, err)

	require.NoError(t, exec.UpdateTradeStoploss(ctx, "trade-1", slPrice))

	st := exec.TradingState()
	trade, ok := st.Running["trade-1"]
	require.True(t, ok)
	require.NotNil(t, trade.Stoploss)
	assert.Equal(t, newSL, trade.Stoploss.Float64())
}

func TestLiveExecutorRejectsMutationsBeforeReady(t *testing.T) {
	ctx := context.Background()
	venue := newFakeVenue()
	exec, _ := newTestLiveExecutor(t, venue)

	slPrice, err := lnm.NewPrice(48000)
	require.NoError(t, err)

	err = exec.UpdateTradeStoploss(ctx, "trade-1", slPrice)
	assert.ErrorIs(t, err, ErrExecutorNotReady)
}

func TestLiveExecutorReconcileComputesUnrealizedPLFromTicker(t *testing.T) {
	ctx := context.Background()
	venue := newFakeVenue()
	venue.running["trade-1"] = runningTradePage("trade-1", nil)
	venue.ticker = lnmrest.TickerPage{LastPrice: 51000, IndexPrice: 51000}

	exec, _ := newTestLiveExecutor(t, venue)
	require.NoError(t, exec.reconcile(ctx))

	st := exec.TradingState()
	assert.NotZero(t, st.UnrealizedPL, "a long marked up from entry must show positive unrealized PL")
	assert.Greater(t, st.UnrealizedPL, int64(0))
}
