// db/repo_device_loan.go
package db

import (
	"context"
	"errors"
	"time"

	"device_loan_tool/models"

	"gorm.io/gorm"
)

// 生命周期校验失败：设备保持原状态，只向调用方报告
var (
	ErrAlreadyLoaned = errors.New("device is already loaned")
	ErrDeviceMissing = errors.New("device is marked as missing and cannot be loaned")
	ErrNotLoaned     = errors.New("device is not currently loaned")
	ErrStillLoaned   = errors.New("device is currently loaned and must be returned first")
)

// historyCap 每台设备保留的履历条数上限
const historyCap = 7

// LoanDevice 借出：Available → Loaned。
// 原子操作 = 解析/创建用户 → 置 Loaned → 写履历（含淘汰）
func (r *Repo) LoanDevice(ctx context.Context, deviceID uint, username string) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, "id = ?", deviceID).Error; err != nil {
			return err
		}
		switch d.Status {
		case models.StatusLoaned:
			return ErrAlreadyLoaned
		case models.StatusMissing:
			return ErrDeviceMissing
		}

		// 用户不存在则新建
		u, err := findOrCreateUser(tx, username)
		if err != nil {
			return err
		}

		now := r.Now()
		d.Status = models.StatusLoaned
		d.UserID = &u.ID
		d.LoanedAt = &now
		d.EmailSent = false
		if err := tx.Save(&d).Error; err != nil {
			return err
		}

		return r.appendHistory(tx, d.ID, u.Username, models.ActionLoaned, now)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ReturnDevice 归还：Loaned → Available。其他状态拒绝，状态不变。
func (r *Repo) ReturnDevice(ctx context.Context, deviceID uint) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if d.Status != models.StatusLoaned {
			return ErrNotLoaned
		}

		// 先取借用人用户名做履历快照。借用人被删时设备上的引用已置空，
		// 快照记 unknown，归还照常走
		username := "unknown"
		if d.UserID != nil {
			var u models.User
			err := tx.First(&u, "id = ?", *d.UserID).Error
			switch {
			case err == nil:
				username = u.Username
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		now := r.Now()
		d.Status = models.StatusAvailable
		d.UserID = nil
		d.LoanedAt = nil
		d.EmailSent = false
		// Save 不会把字段写回 NULL，这里用显式 Updates
		if err := tx.Model(&models.Device{}).
			Where("id = ?", d.ID).
			Updates(map[string]any{
				"status":     models.StatusAvailable,
				"user_id":    nil,
				"loaned_at":  nil,
				"email_sent": false,
			}).Error; err != nil {
			return err
		}

		return r.appendHistory(tx, d.ID, username, models.ActionReturned, now)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkMissing 报失：仅 Available/Missing 可标。借出中必须先归还。
// 不写履历（与借还不同，沿用既有行为）。
func (r *Repo) MarkMissing(ctx context.Context, deviceID uint) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if d.Status == models.StatusLoaned {
			return ErrStillLoaned
		}
		d.Status = models.StatusMissing
		return tx.Model(&d).Update("status", models.StatusMissing).Error
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkFound 找回：→ Available。从 Loaned 标找回会让 user_id/loaned_at
// 跟状态脱节，这里直接拒绝，先归还再说。
func (r *Repo) MarkFound(ctx context.Context, deviceID uint) (*models.Device, error) {
	var d models.Device
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if d.Status == models.StatusLoaned {
			return ErrStillLoaned
		}
		d.Status = models.StatusAvailable
		return tx.Model(&d).Update("status", models.StatusAvailable).Error
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// appendHistory 追加一条履历；超过上限就按 action_date 删最旧的一条。
// 淘汰只作为插入的副作用发生。
func (r *Repo) appendHistory(tx *gorm.DB, deviceID uint, username, action string, at time.Time) error {
	entry := models.DeviceHistory{
		DeviceID:   deviceID,
		Username:   username,
		Action:     action,
		ActionDate: at,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}

	var n int64
	if err := tx.Model(&models.DeviceHistory{}).
		Where("device_id = ?", deviceID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > historyCap {
		var oldest models.DeviceHistory
		if err := tx.Where("device_id = ?", deviceID).
			Order("action_date").
			First(&oldest).Error; err != nil {
			return err
		}
		if err := tx.Delete(&oldest).Error; err != nil {
			return err
		}
	}
	return nil
}
