package observability

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	metrics.ObservePermissionCheck("resource", "allow", time.Millisecond)
	metrics.IncLedgerChange("assign")
	metrics.IncLogin("success")
	metrics.IncTokenRejection("expired")

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["accessd_permission_checks_total"])
	assert.True(t, names["accessd_ledger_changes_total"])
	assert.True(t, names["accessd_logins_total"])
	assert.True(t, names["accessd_token_rejections_total"])
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.ObservePermissionCheck("field", "HIDDEN", time.Millisecond)
		metrics.IncLedgerChange("revoke")
		metrics.IncLogin("failure")
		metrics.IncTokenRejection("invalid")
		metrics.RecordDBStats(sql.DBStats{})
	})
}

func TestMetrics_Counters(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObservePermissionCheck("resource", "deny", time.Millisecond)
	metrics.ObservePermissionCheck("resource", "deny", time.Millisecond)
	metrics.IncLogin("failure")

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("resource", "deny")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues("failure")))

	metrics.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2, WaitCount: 7})
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.DBConnectionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DBConnectionsIdle))
	assert.Equal(t, float64(7), testutil.ToFloat64(metrics.DBConnectionsWait))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/permissions/user/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	req := httptest.NewRequest("GET", "/permissions/user/17", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/permissions/user/{userId}", "418")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.IncLogin("success")

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rr := httptest.NewRecorder()
	serveMux.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `accessd_logins_total{result="success"} 1`))
}
