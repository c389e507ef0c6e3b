// cmd/push-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ecoupon/internal/pkg/config"
	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/pkg/mq"
	"ecoupon/internal/pkg/push"

	"github.com/google/uuid"
)

const serviceName = "push-gateway"

// nodeID 区分多个网关实例，出现在日志和消费组名里
var nodeID = serviceName + "-" + uuid.New().String()[:8]

// releaseEvent 只取路由需要的字段，消息体原样转发给客户端。
type releaseEvent struct {
	UserID int64 `json:"userId"`
}

// consumeEvents 消费释放结果事件并分发给在线用户。
// 每个网关节点用独立消费组，整条事件流的全量事件都会流经本节点，
// 只有连在本节点上的用户才真正收到推送。
func consumeEvents(ctx context.Context, cfg *config.Config, hub *push.Hub) {
	reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, nodeID)
	defer reader.Close()

	logger.Ctx(ctx).Info().Str("topic", cfg.Kafka.EventsTopic).Msg("event consumer started")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read event, retrying")
			time.Sleep(1 * time.Second)
			continue
		}

		var event releaseEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal release event, skipping")
			continue
		}

		delivered := hub.Dispatch(strconv.FormatInt(event.UserID, 10), msg.Value)
		logger.Ctx(ctx).Info().
			Int64("user_id", event.UserID).
			Bool("delivered", delivered).
			Msg("release event dispatched")
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(serviceName, cfg.Server.Console)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := push.NewHub()
	go hub.Run(ctx)
	go consumeEvents(ctx, cfg, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{Addr: ":" + strconv.Itoa(getPort(8088)), Handler: mux}
	go func() {
		log.Printf("Push Gateway (%s) started on %s", nodeID, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down http server: %v", err)
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
