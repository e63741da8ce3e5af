package routes

import (
	"device_loan_tool/app"
	"device_loan_tool/controllers"
	"device_loan_tool/scanner"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App, sc *scanner.Scanner) {
	// 控制器与依赖
	s := controllers.GetSrv(a, sc)
	deviceCtl := controllers.NewDeviceController(s)
	adminCtl := controllers.NewAdminController(s)

	adminMW := app.AdminRequired(a.AdminSessions())

	// ------------------------------
	// 借还（公开，按原系统不登录）
	// ------------------------------
	devices := r.Group("/api/devices")
	{
		devices.GET("", deviceCtl.ListDevices) // ?status=all|available|loaned|overdue|missing
		devices.POST("/:id/loan", deviceCtl.Loan)
		devices.POST("/:id/return", deviceCtl.Return)
		devices.GET("/:id/history", deviceCtl.History)
	}

	// ------------------------------
	// 管理口令会话
	// ------------------------------
	r.POST("/admin/login", adminCtl.Login)
	r.POST("/admin/logout", adminCtl.Logout)

	// ------------------------------
	// 管理操作（仅管理员）
	// ------------------------------
	admin := r.Group("/api/admin", adminMW)
	{
		admin.POST("/devices", adminCtl.CreateDevice)
		admin.PUT("/devices/:id", adminCtl.EditDevice)
		admin.DELETE("/devices/:id", adminCtl.DeleteDevice)
		admin.POST("/devices/:id/missing", adminCtl.MarkMissing)
		admin.POST("/devices/:id/found", adminCtl.MarkFound)

		admin.GET("/users", adminCtl.ListUsers)
		admin.DELETE("/users/:id", adminCtl.DeleteUser)

		admin.GET("/overdue-report", adminCtl.OverdueReport)
		admin.POST("/scan", adminCtl.TriggerScan)
	}
}
