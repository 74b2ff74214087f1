package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/store"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// StoreHealth is the body of GET /health/store.
type StoreHealth struct {
	Status      string     `json:"status"`
	Driver      string     `json:"driver"`
	Keys        int        `json:"keys"`
	Initialized bool       `json:"initialized"`
	Error       string     `json:"error,omitempty"`
	Pool        *PoolStats `json:"pool,omitempty"`
}

// HealthHandler checks that the collection store answers and, for the
// postgres driver, reports pool statistics. pool may be nil.
func HealthHandler(driver string, s store.Store, pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := StoreHealth{Status: "healthy", Driver: driver}
		if pool != nil {
			body.Pool = GetPoolStats(pool)
		}

		keys, err := s.Keys(ctx)
		if err == nil && pool != nil {
			err = pool.Ping(ctx)
		}
		if err != nil {
			body.Status = "unhealthy"
			body.Error = err.Error()
			if body.Pool != nil {
				body.Pool.Healthy = false
			}
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		for _, k := range keys {
			if k == "initialized" {
				body.Initialized = true
				continue
			}
			body.Keys++
		}
		return c.JSON(http.StatusOK, body)
	}
}
