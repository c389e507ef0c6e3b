// internal/service/coupon/domain/port/locker.go
package port

import "context"

// Lock 是一次互斥持有，调用方负责在所有退出路径上 Unlock。
type Lock interface {
	Unlock() error
}

// DistributedLocker 提供跨进程的按 key 互斥。
// Acquire 阻塞直到拿到锁或 ctx 结束；同一个 key 全集群串行。
type DistributedLocker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}
