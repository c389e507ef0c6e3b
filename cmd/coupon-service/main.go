// cmd/coupon-service/main.go
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"ecoupon/internal/pkg/bootstrap"
	"ecoupon/internal/pkg/config"
	"ecoupon/internal/pkg/redis"
	"ecoupon/internal/service/coupon/application"
	"ecoupon/internal/service/coupon/infrastructure"
	"ecoupon/internal/service/coupon/infrastructure/adapter"
	"ecoupon/internal/service/coupon/interfaces"
	"ecoupon/internal/zookeeper"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const serviceName = "coupon-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        getPort(8080),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(serviceName)

			db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Warn),
			})
			if err != nil {
				log.Fatalf("failed to connect to mysql: %v", err)
			}
			if err := db.AutoMigrate(infrastructure.Models()...); err != nil {
				log.Fatalf("failed to migrate schema: %v", err)
			}

			redisClient, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				log.Fatalf("failed to initialize redis client: %v", err)
			}

			zkConn, err := zookeeper.Connect(cfg.Zookeeper.Servers, cfg.Zookeeper.SessionTimeout)
			if err != nil {
				log.Fatalf("failed to connect to zookeeper: %v", err)
			}

			stockGuard, err := adapter.NewStockRedisAdapter(redisClient)
			if err != nil {
				log.Fatalf("failed to initialize stock guard: %v", err)
			}
			rules, err := adapter.NewCelRulesAdapter()
			if err != nil {
				log.Fatalf("failed to initialize claim rules: %v", err)
			}
			scheduler := adapter.NewReleaseKafkaAdapter(cfg.Kafka.Brokers, cfg.Kafka.DelayTopic, cfg.Kafka.ReleaseTopic)
			locker := adapter.NewZkLockerAdapter(zkConn)

			coupons := infrastructure.NewGormCouponRepository(db)
			records := infrastructure.NewGormRecordRepository(db)

			service := application.NewCouponApplicationService(
				coupons, records, locker, scheduler, rules, stockGuard, tracer,
			)

			// 启动时把已上线券的库存镜像预热进缓存
			warmStockMirror(service)

			handler := interfaces.NewCouponHandler(service)
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){},
	})
}

// warmStockMirror 预热失败只影响快速挡板，不阻塞启动。
func warmStockMirror(service *application.CouponApplicationService) {
	if err := service.WarmStock(context.Background()); err != nil {
		log.Printf("WARN: could not warm coupon stock mirror: %v", err)
	}
}

func getPort(fallback int) int {
	if value, ok := os.LookupEnv("SERVICE_PORT"); ok {
		if port, err := strconv.Atoi(value); err == nil {
			return port
		}
	}
	return fallback
}
