// internal/service/coupon/domain/task.go
package domain

import "time"

// LockState 是锁券工作单的状态机。
// LOCK 是唯一的非终态；FINISH 和 CANCEL 一旦达到不再迁移。
type LockState string

const (
	LockStateLock   LockState = "LOCK"
	LockStateFinish LockState = "FINISH"
	LockStateCancel LockState = "CANCEL"
)

// CouponTask 记录一次"记录 × 订单"的锁定尝试，驱动异步的确认/回退。
// 它只引用记录，不拥有记录：券的状态以 CouponRecord 为准。
type CouponTask struct {
	ID             int64
	CouponRecordID int64
	OutTradeNo     string
	LockState      LockState
	CreatedAt      time.Time
}

// NewCouponTask 为一条记录和一笔订单创建 LOCK 状态的工作单。
func NewCouponTask(recordID int64, outTradeNo string) *CouponTask {
	return &CouponTask{
		CouponRecordID: recordID,
		OutTradeNo:     outTradeNo,
		LockState:      LockStateLock,
		CreatedAt:      time.Now(),
	}
}

// IsTerminal 判断工作单是否已经到达终态。
func (t *CouponTask) IsTerminal() bool {
	return t.LockState == LockStateFinish || t.LockState == LockStateCancel
}
