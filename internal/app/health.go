package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type HealthChecker struct {
	infra Infrastructure
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		infra: infra,
	}
}

// componentStatus pings each backing store concurrently
func (h *HealthChecker) componentStatus(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 2)

	go func() {
		results <- result{name: "postgres", err: h.infra.Postgres().Ping(ctx)}
	}()

	go func() {
		results <- result{name: "redis", err: h.infra.Redis().Ping(ctx)}
	}()

	status := make(map[string]string, 2)
	for range 2 {
		r := <-results
		if r.err != nil {
			status[r.name] = "fail"
		} else {
			status[r.name] = "pass"
		}
	}
	return status
}

func (h *HealthChecker) Handler(c *gin.Context) {
	components := h.componentStatus(c.Request.Context())

	for _, state := range components {
		if state != "pass" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "fail",
				"components": components,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "pass",
		"components": components,
	})
}
