package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Ezekiel98Tz/PrintingAgent/api/handlers"
	"github.com/Ezekiel98Tz/PrintingAgent/api/middleware"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())

	r.GET("/health", handlers.Health)
	if h.Webhook != nil {
		r.POST("/webhook/whatsapp", h.Webhook.Receive)
	}

	// API 版本组
	v1 := r.Group("/api/v1")
	v1.GET("/printers", h.Document.Printers)
	v1.GET("/printers/:name", h.Document.Printer)
	v1.POST("/printers/:name/test", h.Document.TestPrinter)

	docs := v1.Group("/documents")
	{
		docs.GET("", h.Document.List)
		docs.GET("/:id", h.Document.Get)
		docs.GET("/:id/log", h.Document.Log)
		docs.GET("/:id/output", h.Document.Output)
		docs.POST("/:id/confirm", h.Document.Confirm)
		docs.POST("/:id/resubmit", h.Document.Resubmit)
		docs.DELETE("/:id", h.Document.Cancel)
	}
}

// NewRouter builds a gin engine with every route installed.
func NewRouter(h *handlers.Handlers, log logger.Logger) *gin.Engine {
	r := gin.New()
	SetupRoutes(r, h, log)
	return r
}
