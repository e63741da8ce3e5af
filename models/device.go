// models/device.go
package models

import "time"

const DeviceTable = "dlt_devices"
const HistoryTable = "dlt_device_history"

// 设备生命周期状态
const (
	StatusAvailable = "Available"
	StatusLoaned    = "Loaned"
	StatusMissing   = "Missing"
)

// 履历动作
const (
	ActionLoaned   = "Loaned"
	ActionReturned = "Returned"
)

// Device 单件设备。Identifier 是数字编号（显示/排序用），SerialNumber 出厂序列号。
// 不变量：Status == Loaned ⟺ UserID 与 LoanedAt 同时非空。
type Device struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Identifier   string     `gorm:"size:80;uniqueIndex;not null" json:"identifier"`
	SerialNumber string     `gorm:"size:80;uniqueIndex;not null" json:"serialNumber"`
	Status       string     `gorm:"size:20;not null;default:'Available'" json:"status"`
	UserID       *uint      `gorm:"index" json:"userId,omitempty"` // 弱引用，删用户时置空
	LoanedAt     *time.Time `gorm:"index" json:"loanedAt,omitempty"`
	EmailSent    bool       `gorm:"not null;default:false" json:"emailSent"` // 仅在 Loaned 期间有意义

	User    *User           `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	History []DeviceHistory `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeviceHistory 借还履历，随设备级联删除。Username 是快照，不是外键。
// 每台设备最多保留 7 条，插入时淘汰最旧一条。
type DeviceHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DeviceID   uint      `gorm:"index;not null" json:"deviceId"`
	Username   string    `gorm:"size:80;not null" json:"username"`
	Action     string    `gorm:"size:20;not null" json:"action"` // Loaned / Returned
	ActionDate time.Time `gorm:"index;not null" json:"actionDate"`
}

func (Device) TableName() string        { return DeviceTable }
func (DeviceHistory) TableName() string { return HistoryTable }
