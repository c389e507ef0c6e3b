// internal/service/coupon/domain/coupon.go
package domain

import "time"

// CouponCategory 区分优惠券的发放场景。
type CouponCategory string

const (
	CategoryPromotion CouponCategory = "PROMOTION" // 促销活动券，用户主动领取
	CategoryNewUser   CouponCategory = "NEW_USER"  // 新人注册券，注册流程自动发放
)

// PublishStatus 表示优惠券活动是否上线。
type PublishStatus string

const (
	PublishDraft     PublishStatus = "DRAFT"
	PublishPublished PublishStatus = "PUBLISH"
)

// Coupon 是优惠券活动的聚合根。
// Stock 只会被领券流程的原子扣减改小，本核心不做补库存。
type Coupon struct {
	ID        int64
	Title     string
	Category  CouponCategory
	Publish   PublishStatus
	Price     float64
	Stock     int
	UserLimit int
	StartTime time.Time
	EndTime   time.Time
	// ClaimRule 是可选的 CEL 表达式，对领取人做额外的资格限制。
	// 空串表示没有额外规则。
	ClaimRule string
	CreatedAt time.Time
}

// CheckClaimable 按固定顺序校验一次领取请求，任何一条不满足立即返回对应错误。
// claimedCount 是该用户在这张券上已有的领取记录数。
// 库存在这里只做预检，真正的防超卖由仓储层的条件扣减兜底。
func (c *Coupon) CheckClaimable(now time.Time, claimedCount int64) error {
	if c == nil {
		return ErrCouponNotFound
	}
	if c.Stock <= 0 {
		return ErrCouponOutOfStock
	}
	if c.Publish != PublishPublished {
		return ErrCouponNotPublished
	}
	if now.Before(c.StartTime) || now.After(c.EndTime) {
		return ErrCouponOutOfWindow
	}
	if claimedCount >= int64(c.UserLimit) {
		return ErrCouponOverLimit
	}
	return nil
}

// Identity 是调用方的显式身份，所有接口逐参传递，不走任何进程级隐式状态。
type Identity struct {
	ID   int64
	Name string
}
