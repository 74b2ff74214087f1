package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/store"
)

type brokenStore struct{ store.Store }

func (brokenStore) Keys(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestHealthHandler_Healthy(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.Save(ctx, "patients", []byte(`[]`))
	_ = s.Save(ctx, "bills", []byte(`[]`))
	_ = s.Save(ctx, "initialized", []byte(`true`))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/store", nil), rec)

	if err := HealthHandler("memory", s, nil)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body StoreHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Keys != 2 || !body.Initialized || body.Driver != "memory" || body.Pool != nil {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/store", nil), rec)

	if err := HealthHandler("redis", brokenStore{}, nil)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
