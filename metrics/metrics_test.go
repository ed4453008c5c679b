package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/metrics"
)

func TestMetrics_CountersAreExported(t *testing.T) {
	m := metrics.New()

	m.ObserveClaim(metrics.ClaimOK, 13)
	m.ObserveClaim(metrics.ClaimAlreadyClaimed, 0)
	m.ObserveSweep(4)
	m.SweepFailed()
	m.ObserveCommand("claim", "ok")

	expected := `
# HELP clanpoints_reward_points_total Points paid out by daily claims
# TYPE clanpoints_reward_points_total counter
clanpoints_reward_points_total 13
# HELP clanpoints_sweep_lapses_total Streaks lapsed by the reset sweep
# TYPE clanpoints_sweep_lapses_total counter
clanpoints_sweep_lapses_total 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"clanpoints_reward_points_total", "clanpoints_sweep_lapses_total"))

	n, err := testutil.GatherAndCount(m.Registry(), "clanpoints_claims_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ObserveCommand("grant", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clanpoints_commands_total{command="grant",result="ok"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveClaim(metrics.ClaimOK, 10)
		m.ObserveSweep(1)
		m.SweepFailed()
		m.ObserveCommand("claim", "ok")
	})
	assert.Nil(t, m.Registry())
}
