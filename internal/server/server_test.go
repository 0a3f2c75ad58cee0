package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/server"
	"PortfolioLedger/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, ready bool) (http.Handler, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()
	if ready {
		health.MarkReplayed(3)
	}
	srv, err := server.New(":0", ":0", server.Deps{
		Query:         query.NewService(testutil.SampleLedger(t, nil)),
		HealthChecker: health,
		Metrics:       metrics,
		Log:           zerolog.Nop(),
	})
	require.NoError(t, err)
	return srv.Handler(), metrics
}

func get(t *testing.T, h http.Handler, url string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newServer(t, false)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz", nil))

	h, _ = newServer(t, true)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz", nil))
}

func TestSummaryEndpoint(t *testing.T) {
	h, _ := newServer(t, true)
	var s query.SummaryResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/v1/summary", &s))
	assert.Equal(t, 3, s.Transactions)
	assert.Equal(t, "2024-06-30", s.End)
}

func TestBalancesEndpoint(t *testing.T) {
	h, metrics := newServer(t, true)

	var r query.BalanceReport
	code := get(t, h, "/v1/balances?account_type=share_capital&group_by=broker", &r)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, r.Lines, 2)
	assert.Equal(t, "DEGIRO", r.Lines[0].Group)
	assert.Equal(t, "-10000", r.Lines[0].Balance.String())

	var failure map[string]any
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/balances?group_by=country", &failure))
	assert.Contains(t, failure["message"], "country")

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.QueryRequests.WithLabelValues("balances", "200")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.QueryRequests.WithLabelValues("balances", "400")))
}

func TestAccountsAndEntriesEndpoints(t *testing.T) {
	h, _ := newServer(t, true)

	var accounts []query.AccountSummary
	require.Equal(t, http.StatusOK, get(t, h, "/v1/books/tax/accounts", &accounts))
	assert.NotEmpty(t, accounts)

	var entries []query.EntryResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/entries?book=main&account=assets:cash:PF2:EUR", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "500", entries[0].Amount.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/entries", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/entries?account=assets:cash:PF9:EUR", nil))
}

func TestAssetEndpoints(t *testing.T) {
	h, _ := newServer(t, true)

	var assets []query.AssetResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/assets?portfolio=PF1", &assets))
	var id string
	for _, a := range assets {
		if a.Instrument == "EQ" {
			id = a.ID.String()
		}
	}
	require.NotEmpty(t, id)

	var one query.AssetResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/assets/"+id, &one))
	assert.Equal(t, "50", one.Count.String())

	var events []query.EventResponse
	require.Equal(t, http.StatusOK, get(t, h, "/v1/assets/"+id+"/events?on=2024-01-03", &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Recognition", events[0].Kind)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/assets?all=maybe", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/assets/00000000-0000-0000-0000-000000000000", nil))
}
