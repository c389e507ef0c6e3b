package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"ecoupon/internal/service/coupon/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试一个独立的内存库；cache=shared 让连接池里的连接看到同一份数据
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func seedCoupon(t *testing.T, db *gorm.DB, stock int) *CouponModel {
	t.Helper()
	now := time.Now()
	model := &CouponModel{
		Title:     "满100减20",
		Category:  domain.CategoryPromotion,
		Publish:   domain.PublishPublished,
		Price:     20,
		Stock:     stock,
		UserLimit: 2,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
	require.NoError(t, db.Create(model).Error)
	return model
}

func seedRecord(t *testing.T, db *gorm.DB, couponID, userID int64, state domain.UseState) *CouponRecordModel {
	t.Helper()
	model := &CouponRecordModel{
		CouponID:    couponID,
		UserID:      userID,
		UserName:    "alice",
		CouponTitle: "满100减20",
		Price:       20,
		UseState:    state,
	}
	require.NoError(t, db.Create(model).Error)
	return model
}

func TestGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements stock and inserts record", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormCouponRepository(db)
		coupon := seedCoupon(t, db, 10)

		record := &domain.CouponRecord{
			CouponID: coupon.ID, UserID: 7, UserName: "alice",
			CouponTitle: coupon.Title, Price: coupon.Price, UseState: domain.UseStateNew,
		}
		err := repo.Grant(ctx, coupon.ID, record)

		require.NoError(t, err)
		assert.NotZero(t, record.ID)

		var reloaded CouponModel
		require.NoError(t, db.First(&reloaded, coupon.ID).Error)
		assert.Equal(t, 9, reloaded.Stock)

		var count int64
		db.Model(&CouponRecordModel{}).Where("coupon_id = ?", coupon.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("exhausted stock grants nothing", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormCouponRepository(db)
		coupon := seedCoupon(t, db, 0)

		record := &domain.CouponRecord{CouponID: coupon.ID, UserID: 7, UseState: domain.UseStateNew}
		err := repo.Grant(ctx, coupon.ID, record)

		assert.ErrorIs(t, err, domain.ErrCouponOutOfStock)

		var reloaded CouponModel
		require.NoError(t, db.First(&reloaded, coupon.ID).Error)
		assert.Equal(t, 0, reloaded.Stock)

		var count int64
		db.Model(&CouponRecordModel{}).Count(&count)
		assert.Zero(t, count, "no record may exist without a decrement")
	})

	t.Run("stock never goes negative under repeated grants", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormCouponRepository(db)
		coupon := seedCoupon(t, db, 3)

		granted := 0
		for i := 0; i < 10; i++ {
			record := &domain.CouponRecord{CouponID: coupon.ID, UserID: int64(i), UseState: domain.UseStateNew}
			if err := repo.Grant(ctx, coupon.ID, record); err == nil {
				granted++
			} else {
				assert.ErrorIs(t, err, domain.ErrCouponOutOfStock)
			}
		}

		assert.Equal(t, 3, granted)
		var reloaded CouponModel
		require.NoError(t, db.First(&reloaded, coupon.ID).Error)
		assert.Equal(t, 0, reloaded.Stock)
	})
}

func TestFindByIDAndCategory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormCouponRepository(db)
	coupon := seedCoupon(t, db, 5)

	t.Run("found", func(t *testing.T) {
		got, err := repo.FindByIDAndCategory(ctx, coupon.ID, domain.CategoryPromotion)
		require.NoError(t, err)
		assert.Equal(t, coupon.Title, got.Title)
	})

	t.Run("wrong category is not found", func(t *testing.T) {
		_, err := repo.FindByIDAndCategory(ctx, coupon.ID, domain.CategoryNewUser)
		assert.ErrorIs(t, err, domain.ErrCouponNotFound)
	})
}

func TestLockForOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("locks records and creates tasks", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormRecordRepository(db)
		r1 := seedRecord(t, db, 1, 7, domain.UseStateNew)
		r2 := seedRecord(t, db, 1, 7, domain.UseStateNew)

		tasks, err := repo.LockForOrder(ctx, 7, []int64{r1.ID, r2.ID}, "T-1")

		require.NoError(t, err)
		require.Len(t, tasks, 2)
		for _, task := range tasks {
			assert.NotZero(t, task.ID)
			assert.Equal(t, domain.LockStateLock, task.LockState)
			assert.Equal(t, "T-1", task.OutTradeNo)
		}

		var used int64
		db.Model(&CouponRecordModel{}).Where("use_state = ?", domain.UseStateUsed).Count(&used)
		assert.Equal(t, int64(2), used)
	})

	t.Run("record of another user fails the whole batch", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormRecordRepository(db)
		mine := seedRecord(t, db, 1, 7, domain.UseStateNew)
		theirs := seedRecord(t, db, 1, 8, domain.UseStateNew)

		_, err := repo.LockForOrder(ctx, 7, []int64{mine.ID, theirs.ID}, "T-1")

		assert.ErrorIs(t, err, domain.ErrRecordLockFail)

		// 回滚后自己的记录也还是 NEW，没有半锁状态
		var reloaded CouponRecordModel
		require.NoError(t, db.First(&reloaded, mine.ID).Error)
		assert.Equal(t, domain.UseStateNew, reloaded.UseState)

		var taskCount int64
		db.Model(&CouponTaskModel{}).Count(&taskCount)
		assert.Zero(t, taskCount)
	})

	t.Run("already used record fails the whole batch", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormRecordRepository(db)
		fresh := seedRecord(t, db, 1, 7, domain.UseStateNew)
		used := seedRecord(t, db, 1, 7, domain.UseStateUsed)

		_, err := repo.LockForOrder(ctx, 7, []int64{fresh.ID, used.ID}, "T-1")

		assert.ErrorIs(t, err, domain.ErrRecordLockFail)

		var reloaded CouponRecordModel
		require.NoError(t, db.First(&reloaded, fresh.ID).Error)
		assert.Equal(t, domain.UseStateNew, reloaded.UseState)
	})

	t.Run("missing record fails the whole batch", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormRecordRepository(db)
		mine := seedRecord(t, db, 1, 7, domain.UseStateNew)

		_, err := repo.LockForOrder(ctx, 7, []int64{mine.ID, 9999}, "T-1")

		assert.ErrorIs(t, err, domain.ErrRecordLockFail)
	})
}

func TestFindByIDForUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormRecordRepository(db)
	record := seedRecord(t, db, 1, 7, domain.UseStateNew)

	t.Run("owner can read", func(t *testing.T) {
		got, err := repo.FindByIDForUser(ctx, record.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
	})

	t.Run("other user cannot read", func(t *testing.T) {
		_, err := repo.FindByIDForUser(ctx, record.ID, 8)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

func TestTaskTransitions(t *testing.T) {
	ctx := context.Background()

	seedTask := func(t *testing.T, db *gorm.DB, recordID int64, state domain.LockState) *CouponTaskModel {
		t.Helper()
		model := &CouponTaskModel{CouponRecordID: recordID, OutTradeNo: "T-1", LockState: state}
		require.NoError(t, db.Create(model).Error)
		return model
	}

	t.Run("MarkFinished transitions once", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormTaskRepository(db)
		task := seedTask(t, db, 5, domain.LockStateLock)

		transitioned, err := repo.MarkFinished(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, transitioned)

		// 重复投递命中终态，不再发生迁移
		transitioned, err = repo.MarkFinished(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, transitioned)
	})

	t.Run("CancelAndRelease restores record", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormTaskRepository(db)
		record := seedRecord(t, db, 1, 7, domain.UseStateUsed)
		task := seedTask(t, db, record.ID, domain.LockStateLock)

		transitioned, err := repo.CancelAndRelease(ctx, task.ID, record.ID)
		require.NoError(t, err)
		assert.True(t, transitioned)

		var reloadedTask CouponTaskModel
		require.NoError(t, db.First(&reloadedTask, task.ID).Error)
		assert.Equal(t, domain.LockStateCancel, reloadedTask.LockState)

		var reloadedRecord CouponRecordModel
		require.NoError(t, db.First(&reloadedRecord, record.ID).Error)
		assert.Equal(t, domain.UseStateNew, reloadedRecord.UseState)
	})

	t.Run("CancelAndRelease is idempotent", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormTaskRepository(db)
		record := seedRecord(t, db, 1, 7, domain.UseStateUsed)
		task := seedTask(t, db, record.ID, domain.LockStateLock)

		_, err := repo.CancelAndRelease(ctx, task.ID, record.ID)
		require.NoError(t, err)

		// 第二次取消什么都不动
		transitioned, err := repo.CancelAndRelease(ctx, task.ID, record.ID)
		require.NoError(t, err)
		assert.False(t, transitioned)
	})

	t.Run("CancelAndRelease does not touch record of finished task", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewGormTaskRepository(db)
		record := seedRecord(t, db, 1, 7, domain.UseStateUsed)
		task := seedTask(t, db, record.ID, domain.LockStateFinish)

		transitioned, err := repo.CancelAndRelease(ctx, task.ID, record.ID)
		require.NoError(t, err)
		assert.False(t, transitioned)

		var reloaded CouponRecordModel
		require.NoError(t, db.First(&reloaded, record.ID).Error)
		assert.Equal(t, domain.UseStateUsed, reloaded.UseState)
	})
}

func TestPageByUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormRecordRepository(db)
	for i := 0; i < 5; i++ {
		seedRecord(t, db, 1, 7, domain.UseStateNew)
	}
	seedRecord(t, db, 1, 8, domain.UseStateNew)

	records, total, err := repo.PageByUser(ctx, 7, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, records, 3)

	records, _, err = repo.PageByUser(ctx, 7, 2, 3)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
