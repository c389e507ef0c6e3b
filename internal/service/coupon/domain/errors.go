// internal/service/coupon/domain/errors.go
package domain

import "errors"

// 业务拒绝类错误，全部可恢复：调用方要么稍后重试，要么就是不符合条件。
var (
	ErrCouponNotFound     = errors.New("coupon does not exist")
	ErrCouponOutOfStock   = errors.New("coupon is out of stock")
	ErrCouponNotPublished = errors.New("coupon is not published")
	ErrCouponOutOfWindow  = errors.New("coupon is outside its validity window")
	ErrCouponOverLimit    = errors.New("user reached the claim limit for this coupon")
	ErrCouponNotEligible  = errors.New("user does not satisfy the coupon claim rule")

	// ErrRecordLockFail 表示批量锁券的三方计数不一致，整批回滚，无任何副作用残留。
	ErrRecordLockFail = errors.New("failed to lock coupon records")

	ErrRecordNotFound = errors.New("coupon record does not exist")
	ErrTaskNotFound   = errors.New("coupon task does not exist")
)
