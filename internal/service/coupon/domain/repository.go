// internal/service/coupon/domain/repository.go
package domain

import "context"

// CouponRepository 定义了优惠券目录的持久化接口。
// 它位于领域层，由基础设施层实现。
type CouponRepository interface {
	// FindByIDAndCategory 查一张指定场景的券，查不到返回 ErrCouponNotFound。
	FindByIDAndCategory(ctx context.Context, id int64, category CouponCategory) (*Coupon, error)

	// FindByCategory 列出某个场景下的全部券（新人礼包遍历用）。
	FindByCategory(ctx context.Context, category CouponCategory) ([]*Coupon, error)

	// PagePublished 分页列出已上线的券，按创建时间倒序。
	PagePublished(ctx context.Context, category CouponCategory, page, size int) ([]*Coupon, int64, error)

	// Grant 在一个事务里完成条件扣减和记录落库：
	// 只有 stock > 0 时扣减才生效，否则返回 ErrCouponOutOfStock 且不落记录。
	// 成功后回填 record.ID。
	Grant(ctx context.Context, couponID int64, record *CouponRecord) error
}

// RecordRepository 定义了领券记录的持久化接口。
type RecordRepository interface {
	// FindByID 不限定用户，释放流程回查记录用。
	FindByID(ctx context.Context, id int64) (*CouponRecord, error)

	// FindByIDForUser 限定用户查询，防横向越权。
	FindByIDForUser(ctx context.Context, id, userID int64) (*CouponRecord, error)

	// PageByUser 分页列出某个用户的记录，按创建时间倒序。
	PageByUser(ctx context.Context, userID int64, page, size int) ([]*CouponRecord, int64, error)

	// CountByCouponAndUser 统计一个用户在一张券上的领取记录数（领取上限校验）。
	CountByCouponAndUser(ctx context.Context, couponID, userID int64) (int64, error)

	// LockForOrder 在一个事务里完成：记录批量 NEW->USED（限定 userID）、
	// 按记录批量插入 LOCK 工作单、三方计数比对。
	// 任何一方不等即回滚并返回 ErrRecordLockFail。成功返回创建好的工作单。
	LockForOrder(ctx context.Context, userID int64, recordIDs []int64, outTradeNo string) ([]*CouponTask, error)

	// ReleaseState 把一条记录置回 NEW（释放流程的回补动作单独使用时）。
	ReleaseState(ctx context.Context, recordID int64) error
}

// TaskRepository 定义了锁券工作单的持久化接口。
type TaskRepository interface {
	// FindByID 查不到返回 ErrTaskNotFound。
	FindByID(ctx context.Context, id int64) (*CouponTask, error)

	// MarkFinished 执行 LOCK->FINISH，条件更新保证幂等：
	// 只有当前是 LOCK 的行才会被改写，返回是否真的发生了迁移。
	MarkFinished(ctx context.Context, taskID int64) (bool, error)

	// CancelAndRelease 在一个事务里执行 LOCK->CANCEL 并把关联记录置回 NEW。
	// 工作单已是终态时整体不动，返回 false。
	CancelAndRelease(ctx context.Context, taskID, recordID int64) (bool, error)
}
