package observability_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PortfolioLedger/internal/observability"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness_FlipsAfterReplay(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.MarkReplayed(12)
	assert.True(t, h.IsReady())

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.EqualValues(t, 12, body["replay"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, observability.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, observability.ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLevel("verbose"))
}

func TestNewLoggerTo_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLoggerTo(&buf, "replay", zerolog.InfoLevel)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"replay"`)
}

func TestMetrics_ServedFromOwnRegistry(t *testing.T) {
	m := observability.NewMetrics()
	m.Valuations.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pledger_valuations_total 3"))
}
