// internal/service/coupon/domain/record.go
package domain

import "time"

// UseState 是领券记录的使用状态。
// NEW -> USED 发生在锁券时；订单失败后允许 USED -> NEW 回退。
type UseState string

const (
	UseStateNew  UseState = "NEW"
	UseStateUsed UseState = "USED"
)

// CouponRecord 是一次成功领取的凭证，每成功领取一张生成一条。
// 记录只增不删，券的消费状态以这张表为准。
type CouponRecord struct {
	ID          int64
	CouponID    int64
	UserID      int64
	UserName    string
	CouponTitle string
	Price       float64
	UseState    UseState
	CreatedAt   time.Time
}

// NewCouponRecord 由一张券和领取人构造初始记录。
func NewCouponRecord(coupon *Coupon, user Identity) *CouponRecord {
	return &CouponRecord{
		CouponID:    coupon.ID,
		UserID:      user.ID,
		UserName:    user.Name,
		CouponTitle: coupon.Title,
		Price:       coupon.Price,
		UseState:    UseStateNew,
		CreatedAt:   time.Now(),
	}
}

// MarkUsed 把记录置为已使用（锁券）。
func (r *CouponRecord) MarkUsed() error {
	if r.UseState != UseStateNew {
		return ErrRecordLockFail
	}
	r.UseState = UseStateUsed
	return nil
}

// Release 把记录释放回可用状态，用于订单取消后的回补。
func (r *CouponRecord) Release() {
	r.UseState = UseStateNew
}
