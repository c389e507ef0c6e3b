package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ecoupon/internal/pkg/config"
	"ecoupon/internal/service/coupon/application"
	"ecoupon/internal/service/coupon/domain"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel"
)

type mockTaskRepo struct {
	mock.Mock
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id int64) (*domain.CouponTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CouponTask), args.Error(1)
}

func (m *mockTaskRepo) MarkFinished(ctx context.Context, taskID int64) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTaskRepo) CancelAndRelease(ctx context.Context, taskID, recordID int64) (bool, error) {
	args := m.Called(ctx, taskID, recordID)
	return args.Bool(0), args.Error(1)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) ScheduleRelease(ctx context.Context, msg port.ReleaseMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockScheduler) DeadLetter(ctx context.Context, msg port.ReleaseMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func newTestConsumer(tasks *mockTaskRepo, sched *mockScheduler) *ReleaseConsumer {
	svc := application.NewReleaseService(
		tasks, nil, nil, sched, nil,
		config.CouponConfig{OnOracleError: config.OracleErrorCancel},
		otel.Tracer("test"),
	)
	c := NewReleaseConsumer(nil, svc, sched)
	c.requeueBackoff = time.Millisecond
	c.requeueRetries = 2
	return c
}

func releaseKafkaMessage(t *testing.T, msg port.ReleaseMessage) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(msg)
	assert.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()
	in := port.ReleaseMessage{OutTradeNo: "T-1", TaskID: 100, Attempt: 2}
	next := port.ReleaseMessage{OutTradeNo: "T-1", TaskID: 100, Attempt: 3}

	t.Run("ack outcome never touches the scheduler", func(t *testing.T) {
		tasks, sched := new(mockTaskRepo), new(mockScheduler)
		tasks.On("FindByID", mock.Anything, int64(100)).Return(nil, domain.ErrTaskNotFound)

		err := newTestConsumer(tasks, sched).processMessage(ctx, releaseKafkaMessage(t, in))

		assert.NoError(t, err)
		sched.AssertNotCalled(t, "ScheduleRelease", mock.Anything, mock.Anything)
	})

	t.Run("malformed payload is skipped and committed", func(t *testing.T) {
		tasks, sched := new(mockTaskRepo), new(mockScheduler)

		err := newTestConsumer(tasks, sched).processMessage(ctx, kafka.Message{Value: []byte("not json")})

		assert.NoError(t, err)
		sched.AssertNotCalled(t, "ScheduleRelease", mock.Anything, mock.Anything)
	})

	t.Run("requeue retries the publish until it succeeds", func(t *testing.T) {
		tasks, sched := new(mockTaskRepo), new(mockScheduler)
		tasks.On("FindByID", mock.Anything, int64(100)).Return(nil, errors.New("db down"))
		sched.On("ScheduleRelease", mock.Anything, next).Return(errors.New("broker down")).Once()
		sched.On("ScheduleRelease", mock.Anything, next).Return(nil).Once()

		err := newTestConsumer(tasks, sched).processMessage(ctx, releaseKafkaMessage(t, in))

		assert.NoError(t, err)
		sched.AssertNumberOfCalls(t, "ScheduleRelease", 2)
		sched.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything)
	})

	t.Run("requeue falls back to the dead letter topic", func(t *testing.T) {
		tasks, sched := new(mockTaskRepo), new(mockScheduler)
		tasks.On("FindByID", mock.Anything, int64(100)).Return(nil, errors.New("db down"))
		sched.On("ScheduleRelease", mock.Anything, next).Return(errors.New("broker down"))
		sched.On("DeadLetter", mock.Anything, next).Return(nil)

		err := newTestConsumer(tasks, sched).processMessage(ctx, releaseKafkaMessage(t, in))

		assert.NoError(t, err)
		sched.AssertNumberOfCalls(t, "ScheduleRelease", 2)
		sched.AssertCalled(t, "DeadLetter", mock.Anything, next)
	})

	t.Run("unplaceable message reports an error instead of vanishing", func(t *testing.T) {
		tasks, sched := new(mockTaskRepo), new(mockScheduler)
		tasks.On("FindByID", mock.Anything, int64(100)).Return(nil, errors.New("db down"))
		sched.On("ScheduleRelease", mock.Anything, next).Return(errors.New("broker down"))
		sched.On("DeadLetter", mock.Anything, next).Return(errors.New("broker down"))

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := newTestConsumer(tasks, sched).processMessage(cancelCtx, releaseKafkaMessage(t, in))

		assert.ErrorIs(t, err, context.Canceled)
	})
}
