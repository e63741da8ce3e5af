// db/repo_device.go
package db

import (
	"context"
	"sort"
	"strconv"
	"time"

	"device_loan_tool/models"

	"gorm.io/gorm"
)

// Devices

func (r *Repo) CreateDevice(ctx context.Context, d *models.Device) error {
	if d.Status == "" {
		d.Status = models.StatusAvailable
	}
	return r.DB.WithContext(ctx).Create(d).Error
}

func (r *Repo) FindDeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	if err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDevice 只改业务编号/序列号，状态走生命周期接口
func (r *Repo) UpdateDevice(ctx context.Context, id uint, identifier, serialNumber string) (*models.Device, error) {
	var d models.Device
	if err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	d.Identifier = identifier
	d.SerialNumber = serialNumber
	if err := r.DB.WithContext(ctx).Save(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDevice 连带删履历（级联之外再显式删一次，保险起见）
func (r *Repo) DeleteDevice(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.DeviceHistory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Device{}, id).Error
	})
}

// DevicesQuery 列表过滤："", "all", "available", "loaned", "missing", "overdue"
type DevicesQuery struct {
	Status  string
	Now     time.Time
	Overdue time.Duration
}

func (r *Repo) ListDevices(ctx context.Context, q DevicesQuery) ([]models.Device, error) {
	tx := r.DB.WithContext(ctx).Model(&models.Device{})
	switch q.Status {
	case "", "all":
	case "available":
		tx = tx.Where("status = ?", models.StatusAvailable)
	case "loaned":
		tx = tx.Where("status = ?", models.StatusLoaned)
	case "missing":
		tx = tx.Where("status = ?", models.StatusMissing)
	case "overdue":
		tx = tx.Where("status = ? AND loaned_at < ?", models.StatusLoaned, q.Now.Add(-q.Overdue))
	}
	var devices []models.Device
	if err := tx.Find(&devices).Error; err != nil {
		return nil, err
	}
	SortDevicesByIdentifier(devices)
	return devices, nil
}

// SortDevicesByIdentifier 编号按整数比较排序："9" 排在 "10" 前面。
// 非数字编号排到最后，按字面序兜底。
func SortDevicesByIdentifier(devices []models.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, errA := strconv.Atoi(devices[i].Identifier)
		b, errB := strconv.Atoi(devices[j].Identifier)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return devices[i].Identifier < devices[j].Identifier
		}
	})
}

// History

// ListDeviceHistory 新的在前
func (r *Repo) ListDeviceHistory(ctx context.Context, deviceID uint) ([]models.DeviceHistory, error) {
	var entries []models.DeviceHistory
	err := r.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("action_date DESC").
		Find(&entries).Error
	return entries, err
}

// Overdue

// ListOverdueUnsent 本轮扫描的超期集合：Loaned、未发过提醒、借出超过阈值
func (r *Repo) ListOverdueUnsent(ctx context.Context, now time.Time, threshold time.Duration) ([]models.Device, error) {
	var devices []models.Device
	err := r.DB.WithContext(ctx).
		Where("status = ? AND email_sent = ? AND loaned_at < ?",
			models.StatusLoaned, false, now.Add(-threshold)).
		Find(&devices).Error
	return devices, err
}

// MarkEmailSent 整组一起标记，一组一个小事务
func (r *Repo) MarkEmailSent(ctx context.Context, deviceIDs []uint) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("id IN ?", deviceIDs).
		Update("email_sent", true).Error
}
