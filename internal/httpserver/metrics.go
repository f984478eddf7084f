package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func registerMetricsRoute(r *gin.Engine) {
	handler := promhttp.Handler()
	r.GET("/metrics", gin.WrapH(handler))
}
