// internal/service/coupon/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"ecoupon/internal/service/coupon/domain"
)

// CouponModel 对应数据库中的 coupon 表
type CouponModel struct {
	ID         int64                 `gorm:"primaryKey;autoIncrement"`
	Title      string                `gorm:"type:varchar(128);not null"`
	Category   domain.CouponCategory `gorm:"type:varchar(32);index;not null"`
	Publish    domain.PublishStatus  `gorm:"type:varchar(16);not null"`
	Price      float64               `gorm:"type:decimal(16,2)"`
	Stock      int                   `gorm:"not null"`
	UserLimit  int                   `gorm:"not null;default:1"`
	StartTime  time.Time             `gorm:"not null"`
	EndTime    time.Time             `gorm:"not null"`
	ClaimRule  string                `gorm:"type:text"`
	CreateTime time.Time             `gorm:"autoCreateTime"`
}

func (CouponModel) TableName() string {
	return "coupon"
}

// CouponRecordModel 对应数据库中的 coupon_record 表
type CouponRecordModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	CouponID    int64           `gorm:"index;not null"`
	UserID      int64           `gorm:"index;not null"`
	UserName    string          `gorm:"type:varchar(128)"`
	CouponTitle string          `gorm:"type:varchar(128)"`
	Price       float64         `gorm:"type:decimal(16,2)"`
	UseState    domain.UseState `gorm:"type:varchar(16);not null"`
	CreateTime  time.Time       `gorm:"autoCreateTime"`
}

func (CouponRecordModel) TableName() string {
	return "coupon_record"
}

// CouponTaskModel 对应数据库中的 coupon_task 表
type CouponTaskModel struct {
	ID             int64            `gorm:"primaryKey;autoIncrement"`
	CouponRecordID int64            `gorm:"index;not null"`
	OutTradeNo     string           `gorm:"type:varchar(64);index;not null"`
	LockState      domain.LockState `gorm:"type:varchar(16);not null"`
	CreateTime     time.Time        `gorm:"autoCreateTime"`
}

func (CouponTaskModel) TableName() string {
	return "coupon_task"
}

// Models 返回全部数据库模型，迁移用。
func Models() []interface{} {
	return []interface{}{&CouponModel{}, &CouponRecordModel{}, &CouponTaskModel{}}
}
