package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/service/coupon/application"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/segmentio/kafka-go"
)

// ReleaseConsumer 监听到期的释放消息并驱动对账服务。
type ReleaseConsumer struct {
	reader     *kafka.Reader
	releaseSvc *application.ReleaseService
	scheduler  port.ReleaseScheduler

	// 重投发布失败时的重试间隔，以及落死信前的发布尝试次数
	requeueBackoff time.Duration
	requeueRetries int

	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewReleaseConsumer 创建一个新的释放消息消费者。
func NewReleaseConsumer(reader *kafka.Reader, releaseSvc *application.ReleaseService, scheduler port.ReleaseScheduler) *ReleaseConsumer {
	return &ReleaseConsumer{
		reader:         reader,
		releaseSvc:     releaseSvc,
		scheduler:      scheduler,
		requeueBackoff: 1 * time.Second,
		requeueRetries: 3,
	}
}

// Start 开始监听释放主题。这是一个长期运行的方法。
func (c *ReleaseConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("release consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			// 用 FetchMessage 手动控制 offset 提交时机
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("release consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			newCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			if err := c.processMessage(newCtx, msg); err != nil {
				// 只有 ctx 结束才会走到这里：不提交 offset，
				// 重启后这条消息会重新投递。
				logger.Ctx(ctx).Warn().Err(err).Msg("release message left uncommitted")
				return
			}

			// 结论已落地（确认、重投或死信都已发布成功）才推进 offset
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *ReleaseConsumer) Stop(ctx context.Context) {
	c.stopped.Store(true)
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Msg("release consumer stopped")
}

// processMessage 对一条消息做对账并落实结论。返回非 nil 仅表示 ctx 已结束、
// 结论没能落地，调用方不得提交这条消息的 offset。
func (c *ReleaseConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var task port.ReleaseMessage
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal release message, skipping")
		return nil
	}

	decision, err := c.releaseSvc.Reconcile(ctx, &task)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("task_id", task.TaskID).
			Str("out_trade_no", task.OutTradeNo).
			Msg("reconcile failed, requeueing")
		decision = application.DecisionRequeue
	}

	if decision != application.DecisionRequeue {
		return nil
	}
	next := port.ReleaseMessage{
		OutTradeNo: task.OutTradeNo,
		TaskID:     task.TaskID,
		Attempt:    task.Attempt + 1,
	}
	return c.requeue(ctx, next)
}

// requeue 把消息重投回延迟队列。重投是唯一的"还没好"通道，发布失败不能
// 静默吞掉：带退避重试，连续失败就送死信，两条路都走不通才带错返回。
func (c *ReleaseConsumer) requeue(ctx context.Context, next port.ReleaseMessage) error {
	for attempt := 1; ; attempt++ {
		err := c.scheduler.ScheduleRelease(ctx, next)
		if err == nil {
			return nil
		}
		logger.Ctx(ctx).Error().Err(err).
			Int64("task_id", next.TaskID).
			Int("publish_attempt", attempt).
			Msg("failed to requeue release message")

		if attempt >= c.requeueRetries {
			dlqErr := c.scheduler.DeadLetter(ctx, next)
			if dlqErr == nil {
				logger.Ctx(ctx).Warn().
					Int64("task_id", next.TaskID).
					Msg("requeue kept failing, release message dead-lettered")
				return nil
			}
			logger.Ctx(ctx).Error().Err(dlqErr).
				Int64("task_id", next.TaskID).
				Msg("failed to dead-letter release message")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.requeueBackoff):
		}
	}
}
