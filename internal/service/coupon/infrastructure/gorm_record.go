// internal/service/coupon/infrastructure/gorm_record.go
package infrastructure

import (
	"context"
	"errors"

	"ecoupon/internal/service/coupon/domain"

	"gorm.io/gorm"
)

// GormRecordRepository 是 domain.RecordRepository 的 GORM 实现
type GormRecordRepository struct {
	db *gorm.DB
}

func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

func (r *GormRecordRepository) FindByID(ctx context.Context, id int64) (*domain.CouponRecord, error) {
	var model CouponRecordModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return toDomainRecord(&model), nil
}

func (r *GormRecordRepository) FindByIDForUser(ctx context.Context, id, userID int64) (*domain.CouponRecord, error) {
	var model CouponRecordModel
	// user_id 一起限定，防止水平越权
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return toDomainRecord(&model), nil
}

func (r *GormRecordRepository) PageByUser(ctx context.Context, userID int64, page, size int) ([]*domain.CouponRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&CouponRecordModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []CouponRecordModel
	err := query.
		Order("create_time DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]*domain.CouponRecord, 0, len(models))
	for i := range models {
		records = append(records, toDomainRecord(&models[i]))
	}
	return records, total, nil
}

func (r *GormRecordRepository) CountByCouponAndUser(ctx context.Context, couponID, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&CouponRecordModel{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// LockForOrder 批量锁券。三步在一个事务里：
//  1. 记录批量 NEW->USED，同时限定 user_id，别人的记录一行都改不动；
//  2. 按请求的每个记录 id 插入一条 LOCK 工作单；
//  3. 请求数、更新数、插入数三方比对，任何不等整体回滚。
//
// 计数比对放在事务内部，崩溃或不等都不会留下半锁状态。
func (r *GormRecordRepository) LockForOrder(ctx context.Context, userID int64, recordIDs []int64, outTradeNo string) ([]*domain.CouponTask, error) {
	var tasks []*domain.CouponTask

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated := tx.Model(&CouponRecordModel{}).
			Where("id IN ? AND user_id = ? AND use_state = ?", recordIDs, userID, domain.UseStateNew).
			Update("use_state", domain.UseStateUsed)
		if updated.Error != nil {
			return updated.Error
		}

		models := make([]*CouponTaskModel, 0, len(recordIDs))
		for _, recordID := range recordIDs {
			task := domain.NewCouponTask(recordID, outTradeNo)
			models = append(models, &CouponTaskModel{
				CouponRecordID: task.CouponRecordID,
				OutTradeNo:     task.OutTradeNo,
				LockState:      task.LockState,
				CreateTime:     task.CreatedAt,
			})
		}
		inserted := tx.Create(&models)
		if inserted.Error != nil {
			return inserted.Error
		}

		want := int64(len(recordIDs))
		if updated.RowsAffected != want || inserted.RowsAffected != want {
			return domain.ErrRecordLockFail
		}

		tasks = make([]*domain.CouponTask, 0, len(models))
		for _, m := range models {
			tasks = append(tasks, toDomainTask(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *GormRecordRepository) ReleaseState(ctx context.Context, recordID int64) error {
	return r.db.WithContext(ctx).Model(&CouponRecordModel{}).
		Where("id = ?", recordID).
		Update("use_state", domain.UseStateNew).Error
}
