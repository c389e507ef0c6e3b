// internal/service/coupon/domain/port/stock.go
package port

import "context"

// StockGuard 是数据库扣减之前的快速售罄挡板。
// 它只做"明显没货就别排队了"的优化，判定必须偏乐观：
// 拿不准时一律放行，让数据库的条件扣减做最终裁决。
type StockGuard interface {
	// Warm 在券上线时把库存镜像写入缓存。
	Warm(ctx context.Context, couponID int64, stock int) error

	// Available 返回 false 仅当确认已售罄；缓存缺失或出错都返回 true。
	Available(ctx context.Context, couponID int64) bool

	// OnGranted 在一次成功扣减后同步镜像计数。
	OnGranted(ctx context.Context, couponID int64)

	// OnExhausted 在数据库宣告售罄后标记，后续请求直接短路。
	OnExhausted(ctx context.Context, couponID int64)
}
