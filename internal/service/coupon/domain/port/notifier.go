// internal/service/coupon/domain/port/notifier.go
package port

import "context"

// ReleaseOutcome 是一次释放对账的最终结果。
type ReleaseOutcome string

const (
	OutcomeFinished ReleaseOutcome = "FINISH" // 订单已支付，券确认消耗
	OutcomeCanceled ReleaseOutcome = "CANCEL" // 订单失败，券已退回可用池
)

// ReleaseEvent 推送给用户的释放结果事件。
type ReleaseEvent struct {
	UserID     int64          `json:"userId"`
	RecordID   int64          `json:"recordId"`
	TaskID     int64          `json:"taskId"`
	OutTradeNo string         `json:"outTradeNo"`
	Outcome    ReleaseOutcome `json:"outcome"`
}

// ReleaseNotifier 把释放结果交给下游推送渠道。失败只记日志，不影响主流程。
type ReleaseNotifier interface {
	NotifyRelease(ctx context.Context, event ReleaseEvent) error
}
