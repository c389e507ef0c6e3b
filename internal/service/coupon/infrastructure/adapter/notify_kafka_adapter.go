package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/segmentio/kafka-go"
)

// NotifyKafkaAdapter 实现了 port.ReleaseNotifier 接口。
// 释放结果事件以 userId 为 key 投入事件主题，push-gateway 按用户分发。
type NotifyKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotifyKafkaAdapter 创建一个新的释放结果通知适配器。
func NewNotifyKafkaAdapter(brokers []string, eventsTopic string) *NotifyKafkaAdapter {
	return &NotifyKafkaAdapter{
		writer: mq.NewKafkaWriter(brokers, eventsTopic),
	}
}

// NotifyRelease 把释放结果事件发到事件主题。
func (a *NotifyKafkaAdapter) NotifyRelease(ctx context.Context, event port.ReleaseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: payload,
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.writer.WriteMessages(ctx, msg)
}

// Close 关闭底层的Kafka writer。
func (a *NotifyKafkaAdapter) Close() error {
	return a.writer.Close()
}
