package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncRejectedDefaultsEmptyCode(t *testing.T) {
	before := counterValue(t, RejectedTotal.WithLabelValues("unknown"))
	IncRejected("")
	require.Equal(t, before+1, counterValue(t, RejectedTotal.WithLabelValues("unknown")))
}

func TestObserveOutcomeCountsAndTimes(t *testing.T) {
	before := counterValue(t, OutcomesTotal.WithLabelValues("failed", "SDK_ERROR"))
	ObserveOutcome("failed", "SDK_ERROR", 2*time.Second)
	require.Equal(t, before+1, counterValue(t, OutcomesTotal.WithLabelValues("failed", "SDK_ERROR")))

	noneBefore := counterValue(t, OutcomesTotal.WithLabelValues("completed", "none"))
	ObserveOutcome("completed", "", time.Second)
	require.Equal(t, noneBefore+1, counterValue(t, OutcomesTotal.WithLabelValues("completed", "none")))
}

func TestIncLaunchLabels(t *testing.T) {
	okBefore := counterValue(t, LaunchesTotal.WithLabelValues("ok"))
	errBefore := counterValue(t, LaunchesTotal.WithLabelValues("error"))
	IncLaunch(true)
	IncLaunch(false)
	IncLaunch(false)
	require.Equal(t, okBefore+1, counterValue(t, LaunchesTotal.WithLabelValues("ok")))
	require.Equal(t, errBefore+2, counterValue(t, LaunchesTotal.WithLabelValues("error")))
}

func TestMetricsExposedOverHTTP(t *testing.T) {
	IncRaceNoop("callback")
	IncStateTransition("ready")
	IncInvocation("ws", "startDiditVerification")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"didit_bridge_race_noops_total",
		"didit_sdk_state_transitions_total",
		"didit_channel_invocations_total",
	} {
		require.True(t, strings.Contains(body, name), "missing %s in /metrics output", name)
	}
}
