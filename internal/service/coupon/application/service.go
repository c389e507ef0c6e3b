// internal/service/coupon/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/metrics"
	"ecoupon/internal/service/coupon/domain"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CouponApplicationService 编排领券和锁券两条业务流程。
// 所有外部依赖都是出站端口，由组装根注入。
type CouponApplicationService struct {
	coupons domain.CouponRepository
	records domain.RecordRepository

	locker    port.DistributedLocker
	scheduler port.ReleaseScheduler
	rules     port.EligibilityRules // 可为 nil：不启用额外规则
	stock     port.StockGuard       // 可为 nil：不启用快速售罄挡板

	tracer trace.Tracer
}

func NewCouponApplicationService(
	coupons domain.CouponRepository,
	records domain.RecordRepository,
	locker port.DistributedLocker,
	scheduler port.ReleaseScheduler,
	rules port.EligibilityRules,
	stock port.StockGuard,
	tracer trace.Tracer,
) *CouponApplicationService {
	return &CouponApplicationService{
		coupons:   coupons,
		records:   records,
		locker:    locker,
		scheduler: scheduler,
		rules:     rules,
		stock:     stock,
		tracer:    tracer,
	}
}

// lockKey 与原有部署保持一致的锁命名，滚动升级期间新老实例互斥同一把锁。
func lockKey(couponID int64) string {
	return fmt.Sprintf("lock:coupon:%d", couponID)
}

// Claim 给 user 发放一张券。
// 流程：分布式锁 -> 读券 -> 资格链 -> 条件扣减 + 落记录（一个事务）。
// 同一张券的所有领取在全集群内被锁串行化；锁在所有退出路径上释放。
func (s *CouponApplicationService) Claim(ctx context.Context, couponID int64, category domain.CouponCategory, user domain.Identity) error {
	ctx, span := s.tracer.Start(ctx, "coupon.Claim")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("coupon.id", couponID),
		attribute.String("coupon.category", string(category)),
		attribute.Int64("user.id", user.ID),
	)

	err := s.claim(ctx, couponID, category, user)
	metrics.ClaimsTotal.WithLabelValues(claimResultLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *CouponApplicationService) claim(ctx context.Context, couponID int64, category domain.CouponCategory, user domain.Identity) error {
	// 0. 快速售罄挡板：明确没货就不去排队抢锁了
	if s.stock != nil && !s.stock.Available(ctx, couponID) {
		return domain.ErrCouponOutOfStock
	}

	lockStart := time.Now()
	lock, err := s.locker.Acquire(ctx, lockKey(couponID))
	if err != nil {
		return errors.Wrap(err, "acquire coupon lock")
	}
	metrics.LockWaitSeconds.Observe(time.Since(lockStart).Seconds())
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Ctx(ctx).Error().Err(unlockErr).
				Int64("coupon_id", couponID).
				Msg("failed to release coupon lock")
		}
	}()

	// 1. 读券
	coupon, err := s.coupons.FindByIDAndCategory(ctx, couponID, category)
	if err != nil {
		return err
	}

	// 2. 资格链：存在、库存、上线、时间窗、限领，逐条短路
	claimed, err := s.records.CountByCouponAndUser(ctx, couponID, user.ID)
	if err != nil {
		return errors.Wrap(err, "count user records")
	}
	if err := coupon.CheckClaimable(time.Now(), claimed); err != nil {
		return err
	}

	// 2.5 券面附加规则（可选）
	if s.rules != nil && coupon.ClaimRule != "" {
		ok, err := s.rules.Eligible(ctx, coupon.ClaimRule, port.EligibilityFact{
			UserID:   user.ID,
			UserName: user.Name,
			Claimed:  claimed,
		})
		if err != nil {
			return errors.Wrap(err, "evaluate claim rule")
		}
		if !ok {
			return domain.ErrCouponNotEligible
		}
	}

	// 3. 条件扣减 + 落记录，一个事务。
	// 即使持锁，扣减仍然带 stock > 0 条件：其它绕过锁的写入路径
	// （比如另一套部署）耗尽库存时，这里是最后一道防线。
	record := domain.NewCouponRecord(coupon, user)
	if err := s.coupons.Grant(ctx, couponID, record); err != nil {
		if errors.Is(err, domain.ErrCouponOutOfStock) && s.stock != nil {
			s.stock.OnExhausted(ctx, couponID)
		}
		return err
	}
	if s.stock != nil {
		s.stock.OnGranted(ctx, couponID)
	}

	logger.Ctx(ctx).Info().
		Int64("coupon_id", couponID).
		Int64("user_id", user.ID).
		Int64("record_id", record.ID).
		Msg("coupon claimed")
	return nil
}

// GrantNewUserBundle 给新注册用户逐张发放 NEW_USER 场景的券。
// 每张券各自走完整的 Claim 流程；中途失败不回滚已发放的券，
// 因为每一次成功发放各自都是合法的。
func (s *CouponApplicationService) GrantNewUserBundle(ctx context.Context, req *NewUserBundleRequest) error {
	ctx, span := s.tracer.Start(ctx, "coupon.GrantNewUserBundle")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", req.UserID))

	user := domain.Identity{ID: req.UserID, Name: req.Name}

	coupons, err := s.coupons.FindByCategory(ctx, domain.CategoryNewUser)
	if err != nil {
		return errors.Wrap(err, "list new user coupons")
	}

	for _, c := range coupons {
		if err := s.Claim(ctx, c.ID, domain.CategoryNewUser, user); err != nil {
			return errors.Wrapf(err, "grant new user coupon %d", c.ID)
		}
	}
	return nil
}

// LockForOrder 把一批已领取的记录绑定到一笔订单上。
// 记录批量 NEW->USED、工作单批量插入和计数比对在仓储层的
// 单个事务里完成；成功后为每个工作单投递一条延迟释放消息。
func (s *CouponApplicationService) LockForOrder(ctx context.Context, req *LockRecordsRequest) error {
	ctx, span := s.tracer.Start(ctx, "coupon.LockForOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.String("order.out_trade_no", req.OrderOutTradeNo),
		attribute.Int("record.count", len(req.LockRecordIDs)),
	)

	if len(req.LockRecordIDs) == 0 || req.OrderOutTradeNo == "" {
		metrics.RecordLocksTotal.WithLabelValues("rejected").Inc()
		return domain.ErrRecordLockFail
	}

	tasks, err := s.records.LockForOrder(ctx, req.UserID, req.LockRecordIDs, req.OrderOutTradeNo)
	if err != nil {
		metrics.RecordLocksTotal.WithLabelValues("rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.RecordLocksTotal.WithLabelValues("locked").Inc()

	// 延迟消息是订单的支付时间预算：到期后 release-worker 去对账。
	for _, task := range tasks {
		msg := port.ReleaseMessage{
			OutTradeNo: req.OrderOutTradeNo,
			TaskID:     task.ID,
		}
		if err := s.scheduler.ScheduleRelease(ctx, msg); err != nil {
			// 锁券事务已提交，这里失败意味着该工作单暂时无人对账。
			// 返回错误让调用方感知并重试投递。
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to schedule release message")
			logger.Ctx(ctx).Error().Err(err).
				Int64("task_id", task.ID).
				Str("out_trade_no", req.OrderOutTradeNo).
				Msg("failed to schedule coupon release message")
			return errors.Wrap(err, "schedule release message")
		}
		logger.Ctx(ctx).Info().
			Int64("task_id", task.ID).
			Str("out_trade_no", req.OrderOutTradeNo).
			Msg("coupon release message scheduled")
	}
	return nil
}

// WarmStock 把已上线促销券的库存镜像预热进快速挡板缓存。
func (s *CouponApplicationService) WarmStock(ctx context.Context) error {
	if s.stock == nil {
		return nil
	}
	// 热点券都在前面几页，预热一批就够，漏掉的券挡板会放行
	coupons, _, err := s.coupons.PagePublished(ctx, domain.CategoryPromotion, 1, 100)
	if err != nil {
		return err
	}
	for _, c := range coupons {
		if err := s.stock.Warm(ctx, c.ID, c.Stock); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("coupon_id", c.ID).Msg("stock warm failed")
		}
	}
	return nil
}

// PageCoupons 分页查询已上线的促销券。
func (s *CouponApplicationService) PageCoupons(ctx context.Context, page, size int) (*PageResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.PageCoupons")
	defer span.End()

	page, size = normalizePage(page, size)
	coupons, total, err := s.coupons.PagePublished(ctx, domain.CategoryPromotion, page, size)
	if err != nil {
		return nil, err
	}

	vos := make([]*CouponVO, 0, len(coupons))
	for _, c := range coupons {
		vos = append(vos, toCouponVO(c))
	}
	return &PageResult{
		TotalRecord: total,
		TotalPage:   totalPages(total, size),
		CurrentData: vos,
	}, nil
}

// PageRecords 分页查询调用方自己的领券记录。
func (s *CouponApplicationService) PageRecords(ctx context.Context, userID int64, page, size int) (*PageResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.PageRecords")
	defer span.End()

	page, size = normalizePage(page, size)
	records, total, err := s.records.PageByUser(ctx, userID, page, size)
	if err != nil {
		return nil, err
	}

	vos := make([]*RecordVO, 0, len(records))
	for _, r := range records {
		vos = append(vos, toRecordVO(r))
	}
	return &PageResult{
		TotalRecord: total,
		TotalPage:   totalPages(total, size),
		CurrentData: vos,
	}, nil
}

// FindRecord 查单条记录，强制限定调用方的 userID，防横向越权。
func (s *CouponApplicationService) FindRecord(ctx context.Context, recordID, userID int64) (*RecordVO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.FindRecord")
	defer span.End()

	record, err := s.records.FindByIDForUser(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}
	return toRecordVO(record), nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	return page, size
}

func claimResultLabel(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, domain.ErrCouponNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCouponOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrCouponNotPublished):
		return "not_published"
	case errors.Is(err, domain.ErrCouponOutOfWindow):
		return "out_of_window"
	case errors.Is(err, domain.ErrCouponOverLimit):
		return "over_limit"
	case errors.Is(err, domain.ErrCouponNotEligible):
		return "not_eligible"
	default:
		return "error"
	}
}
