// internal/service/coupon/infrastructure/mapper.go
package infrastructure

import "ecoupon/internal/service/coupon/domain"

// 数据库模型和领域模型之间的双向转换。

func toDomainCoupon(m *CouponModel) *domain.Coupon {
	if m == nil {
		return nil
	}
	return &domain.Coupon{
		ID:        m.ID,
		Title:     m.Title,
		Category:  m.Category,
		Publish:   m.Publish,
		Price:     m.Price,
		Stock:     m.Stock,
		UserLimit: m.UserLimit,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		ClaimRule: m.ClaimRule,
		CreatedAt: m.CreateTime,
	}
}

func toDomainRecord(m *CouponRecordModel) *domain.CouponRecord {
	if m == nil {
		return nil
	}
	return &domain.CouponRecord{
		ID:          m.ID,
		CouponID:    m.CouponID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		CouponTitle: m.CouponTitle,
		Price:       m.Price,
		UseState:    m.UseState,
		CreatedAt:   m.CreateTime,
	}
}

func fromDomainRecord(r *domain.CouponRecord) *CouponRecordModel {
	if r == nil {
		return nil
	}
	return &CouponRecordModel{
		ID:          r.ID,
		CouponID:    r.CouponID,
		UserID:      r.UserID,
		UserName:    r.UserName,
		CouponTitle: r.CouponTitle,
		Price:       r.Price,
		UseState:    r.UseState,
		CreateTime:  r.CreatedAt,
	}
}

func toDomainTask(m *CouponTaskModel) *domain.CouponTask {
	if m == nil {
		return nil
	}
	return &domain.CouponTask{
		ID:             m.ID,
		CouponRecordID: m.CouponRecordID,
		OutTradeNo:     m.OutTradeNo,
		LockState:      m.LockState,
		CreatedAt:      m.CreateTime,
	}
}
