package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	r := newEngine(Metrics())
	r.GET("/generations/:id/progress", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	route := "/generations/:id/progress"
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/generations/"+id+"/progress", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/1", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v", v)
	}
}

func TestObserveUpload(t *testing.T) {
	before := testutil.CollectAndCount(uploadSize)
	ObserveUpload("test-slot", 1<<20)
	if after := testutil.CollectAndCount(uploadSize); after != before+1 {
		t.Fatalf("upload series = %d; want %d", after, before+1)
	}
}
