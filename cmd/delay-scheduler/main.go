// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ecoupon/internal/pkg/config"
	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/tracing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const serviceName = "delay-scheduler"

var tracer trace.Tracer

// levelScheduler 消费一个延迟级别的主题，把到期消息转投 real-topic 头指定的业务主题。
// 同一主题内消息按写入顺序排队，队头到期前后面的更不会到期，
// 所以持有队头原地等到期即可，不会饿死后续消息。
type levelScheduler struct {
	level   string
	delay   time.Duration
	brokers []string

	reader *kafka.Reader

	writerLock sync.Mutex
	writers    map[string]*kafka.Writer // key: realTopic
}

func newLevelScheduler(brokers []string, level string, delay time.Duration) *levelScheduler {
	return &levelScheduler{
		level:   level,
		delay:   delay,
		brokers: brokers,
		reader:  mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		writers: make(map[string]*kafka.Writer),
	}
}

// run 持续消费本级主题，直到 ctx 结束。
func (s *levelScheduler) run(ctx context.Context) error {
	logger.Ctx(ctx).Info().
		Str("level", s.level).
		Dur("delay", s.delay).
		Msg("delay scheduler started")

	defer s.reader.Close()
	defer s.closeWriters()

	for {
		if err := s.forwardNext(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("level", s.level).Msg("delay scheduler stopped")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("forward failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(1 * time.Second):
			}
		}
	}
}

// forwardNext 取出队头消息，未到期就原地等到期，再转投并提交。
// FetchMessage 会推进会话内的消费位置：队头一旦取出就必须处理到提交为止，
// 不提交地放弃会把这条消息跳过去，只有重平衡或重启才会重投。
func (s *levelScheduler) forwardNext(parentCtx context.Context) error {
	msg, err := s.reader.FetchMessage(parentCtx)
	if err != nil {
		return err
	}

	spanCtx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := tracer.Start(spanCtx, "scheduler.HoldAndPublish", trace.WithAttributes(
		attribute.String("delay.level", s.level),
	))
	defer span.End()

	// 消息进入延迟主题的时间 + 延迟时长 = 理论投递时间
	deliveryTime := msg.Time.Add(s.delay)
	if time.Until(deliveryTime) > 0 {
		span.AddEvent("HoldingUntilDue", trace.WithAttributes(
			attribute.String("delivery.time", deliveryTime.UTC().Format(time.RFC3339)),
		))
		if err := holdUntilDue(ctx, deliveryTime); err != nil {
			// ctx 结束，消息未提交，重启后重新消费
			span.SetStatus(codes.Error, "wait aborted before due")
			return err
		}
	}

	realTopic := mq.Header(msg.Headers, "real-topic")
	if realTopic == "" {
		logger.Ctx(ctx).Error().Str("level", s.level).Msg("real-topic header missing, skipping message")
		// 坏消息也要提交，否则会一直堵在队头
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit skipped message")
			return err
		}
		return nil
	}

	// 转投失败不能放弃已取出的队头，退避重试直到成功或 ctx 结束
	for {
		err := s.publish(ctx, realTopic, msg)
		if err == nil {
			break
		}
		logger.Ctx(ctx).Error().Err(err).
			Str("real_topic", realTopic).
			Msg("failed to publish due message, retrying")
		span.RecordError(err)
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "failed to publish to real topic")
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		// 提交失败意味着重启后这条消息会重复投递；下游对账是幂等的
		logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("failed to commit after publish")
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().
		Str("level", s.level).
		Str("real_topic", realTopic).
		Msg("due message published")
	span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
	return nil
}

// holdUntilDue 阻塞到 due 时刻；已到期立即返回，ctx 先结束返回其错误。
func holdUntilDue(ctx context.Context, due time.Time) error {
	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// publish 把消息转投真实业务主题，trace 上下文原样续接。
func (s *levelScheduler) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, exists := s.writers[realTopic]
	if !exists {
		writer = mq.NewKafkaWriter(s.brokers, realTopic)
		s.writers[realTopic] = writer
	}
	s.writerLock.Unlock()

	publishMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	traceCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	mq.InjectTraceContext(traceCtx, &publishMsg.Headers)

	return writer.WriteMessages(ctx, publishMsg)
}

func (s *levelScheduler) closeWriters() {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for topic, writer := range s.writers {
		if err := writer.Close(); err != nil {
			log.Printf("failed to close writer for topic %s: %v", topic, err)
		}
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(serviceName, cfg.Server.Console)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer tp.Shutdown(context.Background())
	tracer = otel.Tracer(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for level, delay := range cfg.Kafka.DelayLevels {
		scheduler := newLevelScheduler(cfg.Kafka.Brokers, level, delay)
		g.Go(func() error {
			return scheduler.run(gctx)
		})
	}

	log.Printf("%s running with %d delay levels", serviceName, len(cfg.Kafka.DelayLevels))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("scheduler exited with error: %v", err)
	}
}
