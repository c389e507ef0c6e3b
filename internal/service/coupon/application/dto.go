// internal/service/coupon/application/dto.go
package application

import (
	"time"

	"ecoupon/internal/service/coupon/domain"
)

// ClaimRequest 是领券接口的入参。调用方身份显式携带。
type ClaimRequest struct {
	CouponID int64  `json:"couponId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// NewUserBundleRequest 由用户服务在注册成功后发起，没有登录态。
type NewUserBundleRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// LockRecordsRequest 是订单服务锁券的入参。
type LockRecordsRequest struct {
	UserID          int64   `json:"userId"`
	OrderOutTradeNo string  `json:"orderOutTradeNo"`
	LockRecordIDs   []int64 `json:"lockRecordIds"`
}

// CouponVO 是对外展示的券信息。
type CouponVO struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	UserLimit int       `json:"userLimit"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// RecordVO 是对外展示的领券记录。
type RecordVO struct {
	ID          int64     `json:"id"`
	CouponID    int64     `json:"couponId"`
	CouponTitle string    `json:"couponTitle"`
	Price       float64   `json:"price"`
	UseState    string    `json:"useState"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PageResult 是统一的分页响应。
type PageResult struct {
	TotalRecord int64       `json:"total_record"`
	TotalPage   int64       `json:"total_page"`
	CurrentData interface{} `json:"current_data"`
}

func toCouponVO(c *domain.Coupon) *CouponVO {
	return &CouponVO{
		ID:        c.ID,
		Title:     c.Title,
		Category:  string(c.Category),
		Price:     c.Price,
		Stock:     c.Stock,
		UserLimit: c.UserLimit,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
	}
}

func toRecordVO(r *domain.CouponRecord) *RecordVO {
	return &RecordVO{
		ID:          r.ID,
		CouponID:    r.CouponID,
		CouponTitle: r.CouponTitle,
		Price:       r.Price,
		UseState:    string(r.UseState),
		CreatedAt:   r.CreatedAt,
	}
}

func totalPages(total int64, size int) int64 {
	if size <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}
