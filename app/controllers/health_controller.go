package controllers

import (
	"context"
	"net/http"
	"time"
)

// RootController 服务根路径
type RootController struct {
	BaseController
}

// GET /
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "pdfchat-backend",
		"status":  "running",
	})
}

// HealthController 健康检查：逐个探测已启用的组件
type HealthController struct {
	BaseController
}

// GET /health
func (c *HealthController) Health() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(deps.Probes))
	healthy := true
	for name, probe := range deps.Probes {
		if err := probe(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		components[name] = "healthy"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
