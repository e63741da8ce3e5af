// controllers/admin_controller.go
package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"device_loan_tool/app"
	"device_loan_tool/db"
	"device_loan_tool/models"
	"device_loan_tool/scanner"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

func userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}

// POST /admin/login — 口令对上了就发 Redis 会话
func (ac *AdminController) Login(c *gin.Context) {
	var in struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if ac.Cfg.AdminPassword == "" {
		c.JSON(http.StatusServiceUnavailable, app.H{"error": "admin password not configured"})
		return
	}
	if in.Password != ac.Cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, app.H{"error": "incorrect password"})
		return
	}

	id := uuid.NewString()
	if err := ac.AdminSess.Create(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	ac.setAdminCookie(c.Writer, id, ac.Cfg.SessionTTL)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /admin/logout — 删 Redis，会话 Cookie 置空
func (ac *AdminController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AdminSessionCookie); err == nil && ck.Value != "" {
		_ = ac.AdminSess.Delete(c.Request.Context(), ck.Value)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AdminSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(ac.Cfg.WebOrigin, "https://"),
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/admin/devices — 登记一台新设备
func (ac *AdminController) CreateDevice(c *gin.Context) {
	var in struct {
		Identifier   string `json:"identifier" binding:"required"`
		SerialNumber string `json:"serialNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	d := &models.Device{Identifier: in.Identifier, SerialNumber: in.SerialNumber}
	if err := ac.Repo.CreateDevice(c.Request.Context(), d); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, d)
}

// PUT /api/admin/devices/:id — 改编号/序列号
func (ac *AdminController) EditDevice(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	var in struct {
		Identifier   string `json:"identifier" binding:"required"`
		SerialNumber string `json:"serialNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	d, err := ac.Repo.UpdateDevice(c.Request.Context(), id, in.Identifier, in.SerialNumber)
	if err != nil {
		respondLoanErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DELETE /api/admin/devices/:id — 履历一并删
func (ac *AdminController) DeleteDevice(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	if _, err := ac.Repo.FindDeviceByID(c.Request.Context(), id); err != nil {
		respondLoanErr(c, err)
		return
	}
	if err := ac.Repo.DeleteDevice(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/admin/devices/:id/missing
func (ac *AdminController) MarkMissing(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	d, err := ac.Repo.MarkMissing(c.Request.Context(), id)
	if err != nil {
		respondLoanErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// POST /api/admin/devices/:id/found
func (ac *AdminController) MarkFound(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	d, err := ac.Repo.MarkFound(c.Request.Context(), id)
	if err != nil {
		respondLoanErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/admin/users
func (ac *AdminController) ListUsers(c *gin.Context) {
	users, err := ac.Repo.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"users": users})
}

// DELETE /api/admin/users/:id — 设备上的引用置空后删除
func (ac *AdminController) DeleteUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if _, err := ac.Repo.FindUserByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}
	if err := ac.Repo.DeleteUserByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/admin/overdue-report — 给前台的汇总报告（不影响 email_sent）
func (ac *AdminController) OverdueReport(c *gin.Context) {
	now := ac.Repo.Now()
	devices, err := ac.Repo.ListDevices(c.Request.Context(), db.DevicesQuery{
		Status:  "overdue",
		Now:     now,
		Overdue: scanner.DefaultThreshold,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}

	names := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.UserID == nil {
			continue
		}
		u, err := ac.Repo.FindUserByID(c.Request.Context(), *d.UserID)
		if err != nil {
			continue
		}
		names = append(names, fmt.Sprintf("%s (device %s)", u.Username, d.Identifier))
	}

	body := "Dear Reception,\n\nThe following users have devices that are overdue for return:\n\n" +
		strings.Join(names, "\n") +
		"\n\nPlease follow up with them.\n\nThank you."
	c.JSON(http.StatusOK, app.H{
		"subject": "Overdue Device Report",
		"body":    body,
		"devices": devices,
	})
}

// POST /api/admin/scan — 手动触发一轮超期扫描
func (ac *AdminController) TriggerScan(c *gin.Context) {
	if err := ac.Scanner.RunOnce(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
