package application

import (
	"context"

	"ecoupon/internal/service/coupon/domain"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/stretchr/testify/mock"
)

// MockCouponRepository is a mock of domain.CouponRepository
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) FindByIDAndCategory(ctx context.Context, id int64, category domain.CouponCategory) (*domain.Coupon, error) {
	args := m.Called(ctx, id, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *MockCouponRepository) FindByCategory(ctx context.Context, category domain.CouponCategory) ([]*domain.Coupon, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Coupon), args.Error(1)
}

func (m *MockCouponRepository) PagePublished(ctx context.Context, category domain.CouponCategory, page, size int) ([]*domain.Coupon, int64, error) {
	args := m.Called(ctx, category, page, size)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Coupon), args.Get(1).(int64), args.Error(2)
}

func (m *MockCouponRepository) Grant(ctx context.Context, couponID int64, record *domain.CouponRecord) error {
	args := m.Called(ctx, couponID, record)
	return args.Error(0)
}

// MockRecordRepository is a mock of domain.RecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) FindByID(ctx context.Context, id int64) (*domain.CouponRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CouponRecord), args.Error(1)
}

func (m *MockRecordRepository) FindByIDForUser(ctx context.Context, id, userID int64) (*domain.CouponRecord, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CouponRecord), args.Error(1)
}

func (m *MockRecordRepository) PageByUser(ctx context.Context, userID int64, page, size int) ([]*domain.CouponRecord, int64, error) {
	args := m.Called(ctx, userID, page, size)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.CouponRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockRecordRepository) CountByCouponAndUser(ctx context.Context, couponID, userID int64) (int64, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordRepository) LockForOrder(ctx context.Context, userID int64, recordIDs []int64, outTradeNo string) ([]*domain.CouponTask, error) {
	args := m.Called(ctx, userID, recordIDs, outTradeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CouponTask), args.Error(1)
}

func (m *MockRecordRepository) ReleaseState(ctx context.Context, recordID int64) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

// MockTaskRepository is a mock of domain.TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) FindByID(ctx context.Context, id int64) (*domain.CouponTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CouponTask), args.Error(1)
}

func (m *MockTaskRepository) MarkFinished(ctx context.Context, taskID int64) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) CancelAndRelease(ctx context.Context, taskID, recordID int64) (bool, error) {
	args := m.Called(ctx, taskID, recordID)
	return args.Bool(0), args.Error(1)
}

// MockLock is a mock of port.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Unlock() error {
	args := m.Called()
	return args.Error(0)
}

// MockLocker is a mock of port.DistributedLocker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (port.Lock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(port.Lock), args.Error(1)
}

// MockScheduler is a mock of port.ReleaseScheduler
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleRelease(ctx context.Context, msg port.ReleaseMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockScheduler) DeadLetter(ctx context.Context, msg port.ReleaseMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockOracle is a mock of port.OrderStateOracle
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) QueryOrderState(ctx context.Context, outTradeNo string) (port.OrderState, error) {
	args := m.Called(ctx, outTradeNo)
	return args.Get(0).(port.OrderState), args.Error(1)
}

// MockNotifier is a mock of port.ReleaseNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRelease(ctx context.Context, event port.ReleaseEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockRules is a mock of port.EligibilityRules
type MockRules struct {
	mock.Mock
}

func (m *MockRules) Eligible(ctx context.Context, rule string, fact port.EligibilityFact) (bool, error) {
	args := m.Called(ctx, rule, fact)
	return args.Bool(0), args.Error(1)
}

// MockStockGuard is a mock of port.StockGuard
type MockStockGuard struct {
	mock.Mock
}

func (m *MockStockGuard) Warm(ctx context.Context, couponID int64, stock int) error {
	args := m.Called(ctx, couponID, stock)
	return args.Error(0)
}

func (m *MockStockGuard) Available(ctx context.Context, couponID int64) bool {
	args := m.Called(ctx, couponID)
	return args.Bool(0)
}

func (m *MockStockGuard) OnGranted(ctx context.Context, couponID int64) {
	m.Called(ctx, couponID)
}

func (m *MockStockGuard) OnExhausted(ctx context.Context, couponID int64) {
	m.Called(ctx, couponID)
}
