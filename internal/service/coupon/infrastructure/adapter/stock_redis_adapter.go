package adapter

import (
	"context"
	"fmt"
	"sync"

	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/redis"
)

const stockDecrScriptName = "coupon_stock_decr"

// StockRedisAdapter 实现了 port.StockGuard 接口。
// 缓存里的库存只是镜像，判定偏乐观：任何读取失败都视为有货放行，
// 最终以数据库的条件扣减为准。
type StockRedisAdapter struct {
	redisClient *redis.Client
	// soldOut 是进程内的售罄短路缓存，省掉热点券售罄后的 Redis 往返。
	soldOut sync.Map
}

// NewStockRedisAdapter 创建一个新的库存挡板适配器，创建时加载扣减脚本。
func NewStockRedisAdapter(redisClient *redis.Client) (*StockRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(stockDecrScriptName, stockDecrScript); err != nil {
		return nil, fmt.Errorf("failed to load stock decr script: %w", err)
	}
	return &StockRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(couponID int64) string {
	return fmt.Sprintf("coupon:stock:%d", couponID)
}

// Warm 在券上线时把库存镜像写入缓存，同时清掉本地售罄标记。
func (a *StockRedisAdapter) Warm(ctx context.Context, couponID int64, stock int) error {
	a.soldOut.Delete(couponID)
	return a.redisClient.GetClient().Set(ctx, stockKey(couponID), stock, 0).Err()
}

// Available 返回 false 仅当确认已售罄。
func (a *StockRedisAdapter) Available(ctx context.Context, couponID int64) bool {
	if _, ok := a.soldOut.Load(couponID); ok {
		return false
	}

	val, err := a.redisClient.GetClient().Get(ctx, stockKey(couponID)).Int64()
	if err != nil {
		// 缓存缺失或 Redis 故障都放行，数据库兜底
		return true
	}
	if val <= 0 {
		a.soldOut.Store(couponID, struct{}{})
		return false
	}
	return true
}

// OnGranted 在一次成功扣减后同步镜像计数，脚本保证不会减成负数。
func (a *StockRedisAdapter) OnGranted(ctx context.Context, couponID int64) {
	_, err := a.redisClient.RunScript(ctx, stockDecrScriptName, []string{stockKey(couponID)})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("coupon_id", couponID).
			Msg("stock mirror decr failed")
	}
}

// OnExhausted 在数据库宣告售罄后标记，后续请求直接短路。
func (a *StockRedisAdapter) OnExhausted(ctx context.Context, couponID int64) {
	a.soldOut.Store(couponID, struct{}{})
	if err := a.redisClient.GetClient().Set(ctx, stockKey(couponID), 0, 0).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("coupon_id", couponID).
			Msg("stock mirror mark sold-out failed")
	}
}

var stockDecrScript = `
-- KEYS[1]: 券库存镜像的 Key, 例如: coupon:stock:1001

local stock = tonumber(redis.call('get', KEYS[1]))

-- 镜像缺失时不做任何事，等下一次 Warm
if not stock then
    return -1
end

-- 只在大于零时递减，镜像永远不为负
if stock > 0 then
    return redis.call('decr', KEYS[1])
end
return 0
`
