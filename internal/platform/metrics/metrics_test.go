package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hms/hms/internal/platform/collection"
)

func TestObserver(t *testing.T) {
	m := New()
	m.Mutated("bills", collection.ActionCreated)
	m.Mutated("bills", collection.ActionCreated)
	m.Resized("bills", 4)

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("bills", "created")); got != 2 {
		t.Errorf("expected 2 mutations, got %v", got)
	}
	if got := testutil.ToFloat64(m.records.WithLabelValues("bills")); got != 4 {
		t.Errorf("expected 4 records, got %v", got)
	}
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/bills/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "bill not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bills/b-9", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/v1/bills/:id", "404"))
	if got != 1 {
		t.Errorf("expected 1 request counted, got %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.Resized("patients", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `hms_collection_records{collection="patients"} 3`) {
		t.Errorf("expected records gauge in output")
	}
}
