package handler

import (
	"context"
	"net/http"
	"time"

	"tarkostock/internal/infra"
	"tarkostock/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health returns a JSON health check response.
// Checks store and Redis connectivity; never exposes credentials or internals.
// rdb and breaker may be nil when redis is not configured.
func Health(store repository.Store, rdb *redis.Client, breaker *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		storeStatus := "connected"
		if store.Ping(ctx) != nil {
			storeStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			}
		}

		status := http.StatusOK
		if storeStatus != "connected" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"ok":    status == http.StatusOK,
			"store": storeStatus,
			"redis": redisStatus,
		}
		if breaker != nil {
			body["events_breaker"] = breaker.State().String()
		}
		c.JSON(status, body)
	}
}
