package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBusiness_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBusiness(reg, nil)

	b.PurchaseEvent("purchase_updated", "committed")
	b.PurchaseEvent("purchase_updated", "committed")
	b.GateDecision("practice", "allow")
	b.StatusCheck("premium")
	b.UsageIncrement("practice", "ok")
	b.ObserveProcess("purchase", "validate", time.Now())

	require.Equal(t, 2.0, testutil.ToFloat64(b.purchaseEvents.WithLabelValues("purchase_updated", "committed")))
	require.Equal(t, 1.0, testutil.ToFloat64(b.gateDecisions.WithLabelValues("practice", "allow")))

	// a second set on the same registry shares the collectors
	b2 := NewBusiness(reg, nil)
	b2.StatusCheck("premium")
	require.Equal(t, 2.0, testutil.ToFloat64(b.statusChecks.WithLabelValues("premium")))
}

func TestBusiness_NilIsNoop(t *testing.T) {
	var b *Business
	require.NotPanics(t, func() {
		b.PurchaseEvent("k", "r")
		b.StatusCheck("r")
		b.GateDecision("f", "d")
		b.UsageIncrement("f", "r")
		b.ObserveProcess("a", "b", time.Now())
	})
}

func TestPrometheus_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{Registry: reg})

	r := gin.New()
	p.Use(r)
	r.GET("/api/v1/usage/:feature", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage/practice", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(p.reqCnt.WithLabelValues("200", "GET", "/api/v1/usage/:feature", "")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "req_total"))
}

func TestNewMetric_UnsupportedType(t *testing.T) {
	_, err := NewMetric(&Metric{ID: "x", Name: "x_total", Type: "gauge"}, "entitlement")
	require.Error(t, err)

	c, err := NewMetric(&Metric{ID: "y", Name: "y_total", Type: TypeCounterVec, Args: []string{"a"}}, "entitlement")
	require.NoError(t, err)
	require.IsType(t, &prometheus.CounterVec{}, c)
}

func TestRequestSize(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/events", strings.NewReader("{}"))
	r.Header.Set("X-Referer", "paywall")
	require.Equal(t, len("POST")+len("HTTP/1.1")+len(r.Host)+len("/api/v1/purchases/events")+len("X-Referer")+len("paywall")+2, requestSize(r))
}
