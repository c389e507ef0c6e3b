// internal/service/coupon/domain/port/scheduler.go
package port

import "context"

// ReleaseMessage 是延迟释放消息的载荷。
// Attempt 从 0 开始，每次重投递加一，用于实现重试上限。
type ReleaseMessage struct {
	OutTradeNo string `json:"outTradeNo"`
	TaskID     int64  `json:"taskId"`
	Attempt    int    `json:"attempt"`
}

// ReleaseScheduler 把释放检查任务投入延迟队列。
// 投递语义是 at-least-once：消费方必须自行幂等。
type ReleaseScheduler interface {
	// ScheduleRelease 安排一条延迟消息，到期后由 release-worker 消费。
	ScheduleRelease(ctx context.Context, msg ReleaseMessage) error

	// DeadLetter 把超过重试上限的消息移入死信主题，供人工排查。
	DeadLetter(ctx context.Context, msg ReleaseMessage) error
}
