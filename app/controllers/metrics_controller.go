package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsController Prometheus指标输出
type MetricsController struct {
	web.Controller
	handler http.Handler
}

func (c *MetricsController) Prepare() {
	c.handler = promhttp.Handler()
}

// GET /metrics
func (c *MetricsController) Metrics() {
	c.handler.ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
