package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/segmentio/kafka-go"
)

// ReleaseKafkaAdapter 实现了 port.ReleaseScheduler 接口。
// 延迟消息先进延迟主题，到期后由 delay-scheduler 按 real-topic 头转投业务主题。
type ReleaseKafkaAdapter struct {
	delayWriter *kafka.Writer
	dlqWriter   *kafka.Writer
	realTopic   string
}

// NewReleaseKafkaAdapter 创建一个新的延迟释放调度器适配器。
func NewReleaseKafkaAdapter(brokers []string, delayTopic, releaseTopic string) *ReleaseKafkaAdapter {
	return &ReleaseKafkaAdapter{
		delayWriter: mq.NewKafkaWriter(brokers, delayTopic),
		dlqWriter:   mq.NewKafkaWriter(brokers, releaseTopic+".dlq"),
		realTopic:   releaseTopic,
	}
}

// ScheduleRelease 把释放检查任务投入延迟主题。
func (a *ReleaseKafkaAdapter) ScheduleRelease(ctx context.Context, task port.ReleaseMessage) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(task.OutTradeNo),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "real-topic", Value: []byte(a.realTopic)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.delayWriter.WriteMessages(ctx, msg)
}

// DeadLetter 把超限消息移入死信主题，保留重试次数方便排查。
func (a *ReleaseKafkaAdapter) DeadLetter(ctx context.Context, task port.ReleaseMessage) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(task.OutTradeNo),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "attempts", Value: []byte(strconv.Itoa(task.Attempt))},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.dlqWriter.WriteMessages(ctx, msg)
}

// Close 关闭底层的Kafka writer。
func (a *ReleaseKafkaAdapter) Close() error {
	if err := a.delayWriter.Close(); err != nil {
		return err
	}
	return a.dlqWriter.Close()
}
