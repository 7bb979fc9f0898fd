package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 5 * time.Second

// PoolStats is the connection pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// DBHealth is the body of the database health endpoint.
type DBHealth struct {
	Status string     `json:"status"`
	Schema string     `json:"schema"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool"`
}

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

// healthReport folds a ping result into the response. The driver error is
// never echoed to the caller.
func healthReport(schema string, stats *PoolStats, pingErr error) (int, DBHealth) {
	if pingErr != nil {
		stats.Healthy = false
		return http.StatusServiceUnavailable, DBHealth{
			Status: "unhealthy",
			Schema: schema,
			Error:  "database unreachable",
			Pool:   stats,
		}
	}
	return http.StatusOK, DBHealth{Status: "healthy", Schema: schema, Pool: stats}
}

// HealthHandler pings the pool and reports its statistics.
func HealthHandler(pool *pgxpool.Pool, schema Schema) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		err := pool.Ping(ctx)
		if err != nil {
			c.Logger().Errorf("database health check failed: %v", err)
		}
		status, body := healthReport(schema.Name, GetPoolStats(pool), err)
		return c.JSON(status, body)
	}
}
