// controllers/device_loan_controller.go
package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"device_loan_tool/app"
	"device_loan_tool/db"
	"device_loan_tool/models"
	"device_loan_tool/scanner"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type DeviceController struct{ *Srv }

func NewDeviceController(s *Srv) *DeviceController { return &DeviceController{Srv: s} }

// DeviceRow 列表行：借出中的带借用人和超期标记
type DeviceRow struct {
	models.Device
	Borrower string `json:"borrower,omitempty"`
	Overdue  bool   `json:"overdue"`
}

func deviceIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid device id"})
		return 0, false
	}
	return uint(id), true
}

// 生命周期校验失败 → 409，设备不存在 → 404
func respondLoanErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "device not found"})
	case errors.Is(err, db.ErrAlreadyLoaned),
		errors.Is(err, db.ErrDeviceMissing),
		errors.Is(err, db.ErrNotLoaned),
		errors.Is(err, db.ErrStillLoaned):
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
	}
}

// GET /api/devices?status=all|available|loaned|overdue|missing
func (dc *DeviceController) ListDevices(c *gin.Context) {
	now := dc.Repo.Now()
	devices, err := dc.Repo.ListDevices(c.Request.Context(), db.DevicesQuery{
		Status:  c.DefaultQuery("status", "all"),
		Now:     now,
		Overdue: scanner.DefaultThreshold,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}

	rows := make([]DeviceRow, 0, len(devices))
	for _, d := range devices {
		row := DeviceRow{Device: d}
		if d.Status == models.StatusLoaned && d.UserID != nil {
			if u, err := dc.Repo.FindUserByID(c.Request.Context(), *d.UserID); err == nil {
				row.Borrower = u.Username
			}
			row.Overdue = d.LoanedAt != nil && now.Sub(*d.LoanedAt) > scanner.DefaultThreshold
		}
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, app.H{"devices": rows})
}

// POST /api/devices/:id/loan
func (dc *DeviceController) Loan(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	var in struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	d, err := dc.Repo.LoanDevice(c.Request.Context(), id, in.Username)
	if err != nil {
		respondLoanErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// POST /api/devices/:id/return
func (dc *DeviceController) Return(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	d, err := dc.Repo.ReturnDevice(c.Request.Context(), id)
	if err != nil {
		respondLoanErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/devices/:id/history — 有上限的履历，新的在前
func (dc *DeviceController) History(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	if _, err := dc.Repo.FindDeviceByID(c.Request.Context(), id); err != nil {
		respondLoanErr(c, err)
		return
	}
	entries, err := dc.Repo.ListDeviceHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"history": entries})
}
