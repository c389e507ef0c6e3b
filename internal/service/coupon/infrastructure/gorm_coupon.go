// internal/service/coupon/infrastructure/gorm_coupon.go
package infrastructure

import (
	"context"
	"errors"

	"ecoupon/internal/service/coupon/domain"

	"gorm.io/gorm"
)

// GormCouponRepository 是 domain.CouponRepository 的 GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) FindByIDAndCategory(ctx context.Context, id int64, category domain.CouponCategory) (*domain.Coupon, error) {
	var model CouponModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND category = ?", id, category).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return toDomainCoupon(&model), nil
}

func (r *GormCouponRepository) FindByCategory(ctx context.Context, category domain.CouponCategory) ([]*domain.Coupon, error) {
	var models []CouponModel
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("create_time DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	coupons := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		coupons = append(coupons, toDomainCoupon(&models[i]))
	}
	return coupons, nil
}

func (r *GormCouponRepository) PagePublished(ctx context.Context, category domain.CouponCategory, page, size int) ([]*domain.Coupon, int64, error) {
	query := r.db.WithContext(ctx).Model(&CouponModel{}).
		Where("publish = ? AND category = ?", domain.PublishPublished, category)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []CouponModel
	err := query.
		Order("create_time DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	coupons := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		coupons = append(coupons, toDomainCoupon(&models[i]))
	}
	return coupons, total, nil
}

// Grant 在一个事务里完成条件扣减和记录插入。
// 扣减带 stock > 0 条件：RowsAffected 为 0 说明并发写已把库存清零，
// 事务回滚，不会留下没有库存支撑的领券记录。
func (r *GormCouponRepository) Grant(ctx context.Context, couponID int64, record *domain.CouponRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&CouponModel{}).
			Where("id = ? AND stock > 0", couponID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrCouponOutOfStock
		}

		model := fromDomainRecord(record)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		record.ID = model.ID
		return nil
	})
}
