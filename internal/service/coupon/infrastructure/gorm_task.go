// internal/service/coupon/infrastructure/gorm_task.go
package infrastructure

import (
	"context"
	"errors"

	"ecoupon/internal/service/coupon/domain"

	"gorm.io/gorm"
)

// GormTaskRepository 是 domain.TaskRepository 的 GORM 实现
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id int64) (*domain.CouponTask, error) {
	var model CouponTaskModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return toDomainTask(&model), nil
}

// MarkFinished 把 LOCK 态的工作单推进到 FINISH。
// 返回 false 说明工作单已经不在 LOCK 态，重复投递直接跳过。
func (r *GormTaskRepository) MarkFinished(ctx context.Context, taskID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&CouponTaskModel{}).
		Where("id = ? AND lock_state = ?", taskID, domain.LockStateLock).
		Update("lock_state", domain.LockStateFinish)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelAndRelease 在一个事务里把工作单推进到 CANCEL 并把记录放回 NEW。
// 只有从 LOCK 态真正推进成功才会动记录，保证重复投递不会二次放券。
func (r *GormTaskRepository) CancelAndRelease(ctx context.Context, taskID, recordID int64) (bool, error) {
	transitioned := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&CouponTaskModel{}).
			Where("id = ? AND lock_state = ?", taskID, domain.LockStateLock).
			Update("lock_state", domain.LockStateCancel)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		transitioned = true
		return tx.Model(&CouponRecordModel{}).
			Where("id = ?", recordID).
			Update("use_state", domain.UseStateNew).Error
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}
