// cmd/release-worker/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	"ecoupon/internal/pkg/bootstrap"
	"ecoupon/internal/pkg/config"
	"ecoupon/internal/pkg/httpclient"
	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/service/coupon/application"
	"ecoupon/internal/service/coupon/infrastructure"
	"ecoupon/internal/service/coupon/infrastructure/adapter"
	"ecoupon/internal/service/coupon/interfaces"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	serviceName            = "release-worker"
	releaseConsumerGroupID = "coupon-release-consumer-group"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumer *interfaces.ReleaseConsumer

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        getPort(8082),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())

			tracer := otel.Tracer(serviceName)

			db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Warn),
			})
			if err != nil {
				log.Fatalf("failed to connect to mysql: %v", err)
			}

			oracle := adapter.NewOrderHTTPAdapter(
				httpclient.NewClient(tracer),
				appCtx.Nacos,
				cfg.Nacos.OrderServiceName,
				cfg.Coupon.OracleTimeout,
			)
			scheduler := adapter.NewReleaseKafkaAdapter(cfg.Kafka.Brokers, cfg.Kafka.DelayTopic, cfg.Kafka.ReleaseTopic)
			notifier := adapter.NewNotifyKafkaAdapter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)

			releaseSvc := application.NewReleaseService(
				infrastructure.NewGormTaskRepository(db),
				infrastructure.NewGormRecordRepository(db),
				oracle,
				scheduler,
				notifier,
				cfg.Coupon,
				tracer,
			)

			reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.ReleaseTopic, releaseConsumerGroupID)
			consumer = interfaces.NewReleaseConsumer(reader, releaseSvc, scheduler)
			if err := consumer.Start(consumerCtx); err != nil {
				log.Fatalf("failed to start release consumer: %v", err)
			}
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				stopConsumer()
				if consumer != nil {
					consumer.Stop(ctx)
				}
			},
		},
	})
}

func getPort(fallback int) int {
	if value, ok := os.LookupEnv("SERVICE_PORT"); ok {
		if port, err := strconv.Atoi(value); err == nil {
			return port
		}
	}
	return fallback
}
