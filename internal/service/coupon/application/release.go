// internal/service/coupon/application/release.go
package application

import (
	"context"

	"ecoupon/internal/pkg/config"
	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/metrics"
	"ecoupon/internal/service/coupon/domain"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Decision 是对一条释放消息的消费结论。
type Decision int

const (
	// DecisionAck 确认消息：要么处理完成，要么确认无事可做。
	DecisionAck Decision = iota
	// DecisionRequeue 把消息重投回延迟队列，过一个延迟周期再查。
	DecisionRequeue
)

// ReleaseService 消费到期的释放消息，对每个锁券工作单做最终对账：
// 订单支付了 -> 工作单 FINISH，券保持消耗；
// 订单没了/取消了 -> 工作单 CANCEL，记录退回 NEW；
// 订单还没支付 -> 重投，下个周期再来。
// 消息是 at-least-once 投递的，所有状态迁移都以 LOCK 为前置条件做条件更新，
// 重复消息最多只有一次能真正迁移状态，其余都是无操作。
type ReleaseService struct {
	tasks   domain.TaskRepository
	records domain.RecordRepository
	oracle  port.OrderStateOracle

	scheduler port.ReleaseScheduler // 死信投递用
	notifier  port.ReleaseNotifier  // 可为 nil

	// onOracleError: 查单失败时 cancel（按取消处理）还是 requeue（重投）。
	onOracleError string
	// maxAttempts: 单任务重投上限，0 表示不限制。
	maxAttempts int

	tracer trace.Tracer
}

func NewReleaseService(
	tasks domain.TaskRepository,
	records domain.RecordRepository,
	oracle port.OrderStateOracle,
	scheduler port.ReleaseScheduler,
	notifier port.ReleaseNotifier,
	cfg config.CouponConfig,
	tracer trace.Tracer,
) *ReleaseService {
	return &ReleaseService{
		tasks:         tasks,
		records:       records,
		oracle:        oracle,
		scheduler:     scheduler,
		notifier:      notifier,
		onOracleError: cfg.OnOracleError,
		maxAttempts:   cfg.MaxAttempts,
		tracer:        tracer,
	}
}

// Reconcile 处理一条到期消息。返回的 Decision 告诉消费端是确认还是重投；
// error 仅表示基础设施故障（数据库不可用之类），此时同样重投。
func (s *ReleaseService) Reconcile(ctx context.Context, msg *port.ReleaseMessage) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Reconcile", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("task.id", msg.TaskID),
		attribute.String("order.out_trade_no", msg.OutTradeNo),
		attribute.Int("message.attempt", msg.Attempt),
	)

	decision, err := s.reconcile(ctx, msg)
	metrics.ReconcileTotal.WithLabelValues(decisionLabel(decision, err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return decision, err
}

func (s *ReleaseService) reconcile(ctx context.Context, msg *port.ReleaseMessage) (Decision, error) {
	log := logger.Ctx(ctx)

	// 1. 工作单还在不在
	task, err := s.tasks.FindByID(ctx, msg.TaskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		// 工作单已不存在，视为已处理完毕。重复投递打到已清理的行时走这里。
		log.Warn().Int64("task_id", msg.TaskID).Msg("release task not found, ack")
		return DecisionAck, nil
	}
	if err != nil {
		return DecisionRequeue, errors.Wrap(err, "load release task")
	}

	// 2. 终态工作单直接确认，重复投递的幂等出口
	if task.IsTerminal() {
		log.Warn().
			Int64("task_id", task.ID).
			Str("lock_state", string(task.LockState)).
			Msg("release task already terminal, ack")
		return DecisionAck, nil
	}

	// 3. 重试上限：超限的任务按取消处理并送死信，不再无限循环
	if s.maxAttempts > 0 && msg.Attempt >= s.maxAttempts {
		log.Warn().
			Int64("task_id", task.ID).
			Int("attempt", msg.Attempt).
			Msg("release task exceeded max attempts, cancelling and dead-lettering")
		if err := s.scheduler.DeadLetter(ctx, *msg); err != nil {
			log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to dead-letter release message")
		}
		return s.cancel(ctx, task)
	}

	// 4. 问订单服务要订单状态
	state, err := s.oracle.QueryOrderState(ctx, msg.OutTradeNo)
	if err != nil {
		log.Warn().Err(err).
			Str("out_trade_no", msg.OutTradeNo).
			Str("policy", s.onOracleError).
			Msg("order state query failed")
		if s.onOracleError == config.OracleErrorRequeue {
			return DecisionRequeue, nil
		}
		// 源系统行为：查不到就当订单没成，释放券
		return s.cancel(ctx, task)
	}

	switch state {
	case port.OrderStateNew:
		// 订单还没支付，留给下一个延迟周期
		log.Info().
			Int64("task_id", task.ID).
			Str("out_trade_no", msg.OutTradeNo).
			Msg("order still unpaid, requeue release message")
		return DecisionRequeue, nil

	case port.OrderStatePaid:
		// 订单已支付，券确认消耗，工作单封板
		transitioned, err := s.tasks.MarkFinished(ctx, task.ID)
		if err != nil {
			return DecisionRequeue, errors.Wrap(err, "finish release task")
		}
		if transitioned {
			log.Info().
				Int64("task_id", task.ID).
				Str("out_trade_no", msg.OutTradeNo).
				Msg("order paid, release task finished")
			s.notify(ctx, task, port.OutcomeFinished)
		}
		return DecisionAck, nil

	default:
		// 订单不存在或已取消
		log.Warn().
			Int64("task_id", task.ID).
			Str("out_trade_no", msg.OutTradeNo).
			Str("order_state", string(state)).
			Msg("order gone or cancelled, releasing coupon record")
		return s.cancel(ctx, task)
	}
}

// cancel 执行取消分支：工作单 LOCK->CANCEL、记录退回 NEW，单个事务。
// 工作单已被并发消费者封板时整体不动，直接确认。
func (s *ReleaseService) cancel(ctx context.Context, task *domain.CouponTask) (Decision, error) {
	transitioned, err := s.tasks.CancelAndRelease(ctx, task.ID, task.CouponRecordID)
	if err != nil {
		return DecisionRequeue, errors.Wrap(err, "cancel release task")
	}
	if transitioned {
		logger.Ctx(ctx).Info().
			Int64("task_id", task.ID).
			Int64("record_id", task.CouponRecordID).
			Msg("release task cancelled, coupon record restored to NEW")
		s.notify(ctx, task, port.OutcomeCanceled)
	}
	return DecisionAck, nil
}

// notify 尽力推送释放结果，失败只记日志。
func (s *ReleaseService) notify(ctx context.Context, task *domain.CouponTask, outcome port.ReleaseOutcome) {
	if s.notifier == nil {
		return
	}
	record, err := s.records.FindByID(ctx, task.CouponRecordID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Int64("record_id", task.CouponRecordID).
			Msg("failed to load record for release notification")
		return
	}
	event := port.ReleaseEvent{
		UserID:     record.UserID,
		RecordID:   record.ID,
		TaskID:     task.ID,
		OutTradeNo: task.OutTradeNo,
		Outcome:    outcome,
	}
	if err := s.notifier.NotifyRelease(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Int64("task_id", task.ID).
			Msg("failed to publish release notification")
	}
}

func decisionLabel(d Decision, err error) string {
	switch {
	case err != nil:
		return "error"
	case d == DecisionRequeue:
		return "requeue"
	default:
		return "ack"
	}
}
