// internal/service/coupon/domain/port/oracle.go
package port

import "context"

// OrderState 是订单服务返回的订单生命周期状态。
type OrderState string

const (
	OrderStateNew  OrderState = "NEW" // 已创建未支付
	OrderStatePaid OrderState = "PAY" // 已支付
	// 其余取值（含订单不存在、已取消）统一按不可保留处理。
)

// OrderStateOracle 是订单服务的状态查询端口。
// 对端不可信：可能失败、可能超时，实现必须自带超时控制。
type OrderStateOracle interface {
	QueryOrderState(ctx context.Context, outTradeNo string) (OrderState, error)
}
