// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是整个应用的配置根。
// 来源优先级：环境变量 > YAML 配置文件 > 默认值。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Coupon    CouponConfig    `yaml:"coupon"`
}

type ServerConfig struct {
	Console bool `yaml:"console"` // console 日志输出（开发环境）
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// DelayTopic 是延迟队列入口主题，由 delay-scheduler 轮询后转投 real-topic。
	DelayTopic string `yaml:"delay_topic"`
	// ReleaseTopic 是到期释放消息的真实业务主题，由 release-worker 消费。
	ReleaseTopic string `yaml:"release_topic"`
	// EventsTopic 承载释放结果事件，供 push-gateway 推送给用户。
	EventsTopic string `yaml:"events_topic"`
	// DelayLevels 定义 delay-scheduler 支持的延迟级别（主题名 -> 延迟时长）。
	DelayLevels map[string]time.Duration `yaml:"delay_levels"`
}

type NacosConfig struct {
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
	// OrderServiceName 是订单服务在 Nacos 中的注册名，查单时用它做服务发现。
	OrderServiceName string `yaml:"order_service_name"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// CouponConfig 汇总领券/释放流程的业务开关。
type CouponConfig struct {
	// OracleTimeout 是查询订单状态的单次超时。
	OracleTimeout time.Duration `yaml:"oracle_timeout"`
	// OnOracleError 决定查单失败时的处理策略：cancel（按取消处理，源系统行为）
	// 或 requeue（重新投递，fail-closed）。
	OnOracleError string `yaml:"on_oracle_error"`
	// MaxAttempts 限制单个任务的重投次数，0 表示不限制。
	MaxAttempts int `yaml:"max_attempts"`
}

const (
	OracleErrorCancel  = "cancel"
	OracleErrorRequeue = "requeue"
)

// Default 返回本地开发可直接启动的默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{Console: true},
		MySQL: MySQLConfig{
			DSN: "root:root@tcp(localhost:3306)/ecoupon?charset=utf8mb4&parseTime=True&loc=Local",
		},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 5 * time.Second},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			DelayTopic:   "delay_topic_1m",
			ReleaseTopic: "coupon-release-topic",
			EventsTopic:  "coupon-events-topic",
			DelayLevels: map[string]time.Duration{
				"delay_topic_5s":  5 * time.Second,
				"delay_topic_1m":  1 * time.Minute,
				"delay_topic_30m": 30 * time.Minute,
			},
		},
		Nacos: NacosConfig{
			Addrs:            "localhost:8848",
			Group:            "DEFAULT_GROUP",
			OrderServiceName: "ec-order-service",
		},
		Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
		Coupon: CouponConfig{
			OracleTimeout: 3 * time.Second,
			OnOracleError: OracleErrorCancel,
			MaxAttempts:   0,
		},
	}
}

// Load 读取 YAML 配置并叠加环境变量覆盖。
// path 为空时依次尝试 CONFIG_FILE 环境变量和 ./config.yaml。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		c.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Nacos.Addrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		c.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		c.Nacos.Group = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Jaeger.Endpoint = v
	}
}

func (c *Config) validate() error {
	switch c.Coupon.OnOracleError {
	case OracleErrorCancel, OracleErrorRequeue:
	default:
		return fmt.Errorf("coupon.on_oracle_error must be %q or %q, got %q",
			OracleErrorCancel, OracleErrorRequeue, c.Coupon.OnOracleError)
	}
	if c.Coupon.MaxAttempts < 0 {
		return fmt.Errorf("coupon.max_attempts must be >= 0")
	}
	return nil
}
