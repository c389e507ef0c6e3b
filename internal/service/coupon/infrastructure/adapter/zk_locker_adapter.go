package adapter

import (
	"context"

	"ecoupon/internal/service/coupon/domain/port"
	"ecoupon/internal/zookeeper"
)

// ZkLockerAdapter 实现了 port.DistributedLocker 接口。
// 锁节点是临时顺序节点，进程崩溃会话过期后锁自动释放，不需要额外的租约续期。
type ZkLockerAdapter struct {
	conn *zookeeper.Conn
}

// NewZkLockerAdapter 创建一个基于 ZooKeeper 的分布式锁适配器。
func NewZkLockerAdapter(conn *zookeeper.Conn) *ZkLockerAdapter {
	return &ZkLockerAdapter{conn: conn}
}

// Acquire 阻塞直到拿到锁或 ctx 结束。
func (a *ZkLockerAdapter) Acquire(ctx context.Context, key string) (port.Lock, error) {
	mutex := zookeeper.NewMutex(a.conn, key)
	if err := mutex.Lock(ctx); err != nil {
		return nil, err
	}
	return mutex, nil
}
