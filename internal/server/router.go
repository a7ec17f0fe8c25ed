package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paygate/internal/handler"
	"paygate/pkg/monitor"
)

// NewRouter 组装 API 服务的全部路由
func NewRouter(h *handler.AddressHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(monitor.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/addresses", h.Create)
		v1.GET("/addresses/:address", h.Get)
		v1.GET("/addresses/:address/payments", h.ListPayments)
		v1.GET("/orders/:order_id/address", h.GetByOrder)
	}

	return r
}
