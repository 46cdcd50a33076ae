package config

import (
	"time"

	pkgconfig "github.com/imaad666/W-Chhatt/pkg/config"
	"github.com/imaad666/W-Chhatt/pkg/database"
	"github.com/imaad666/W-Chhatt/pkg/jwt"
	"github.com/imaad666/W-Chhatt/pkg/pubsub"
	"github.com/imaad666/W-Chhatt/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	Database  database.Config
	JWT       jwt.Config
	WebSocket WebSocketConfig
	Redis     RedisConfig
	Cache     CacheConfig
	PubSub    PubSubConfig `mapstructure:"pubsub"`
	Storage   StorageConfig
	Chat      ChatConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type PubSubConfig struct {
	Enabled       bool
	pubsub.Config `mapstructure:",squash"`
}

type StorageConfig struct {
	storage.Config `mapstructure:",squash"`
	MaxUploadSize  int64 `mapstructure:"max_upload_size"`
}

type ChatConfig struct {
	MaxMessageLength int `mapstructure:"max_message_length"`
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.time_zone", "UTC")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("jwt.private_key_path", "")
	v.SetDefault("jwt.access_duration", "24h")
	v.SetDefault("jwt.refresh_duration", "168h")
	v.SetDefault("jwt.issuer", "w-chhatt")

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "chat:room")
	v.SetDefault("cache.ttl", "10m")

	defaults := pubsub.DefaultConfig()
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.driver", defaults.Driver)
	v.SetDefault("pubsub.redis.address", defaults.Redis.Address)
	v.SetDefault("pubsub.redis.pool_size", defaults.Redis.PoolSize)
	v.SetDefault("pubsub.redis.read_timeout", defaults.Redis.ReadTimeout)
	v.SetDefault("pubsub.redis.write_timeout", defaults.Redis.WriteTimeout)
	v.SetDefault("pubsub.kafka.brokers", defaults.Kafka.Brokers)
	v.SetDefault("pubsub.kafka.group_id", defaults.Kafka.GroupID)
	v.SetDefault("pubsub.kafka.partitions", defaults.Kafka.Partitions)
	v.SetDefault("pubsub.nats.url", defaults.NATS.URL)
	v.SetDefault("pubsub.nats.name", defaults.NATS.Name)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/attachments")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "attachments/")
	v.SetDefault("storage.max_upload_size", 10<<20)

	v.SetDefault("chat.max_message_length", 1000)
	v.SetDefault("chat.default_page_size", 50)
	v.SetDefault("chat.max_page_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                  "PORT",
		"database.driver":              "DB_DRIVER",
		"database.host":                "DB_HOST",
		"database.port":                "DB_PORT",
		"database.user":                "DB_USER",
		"database.password":            "DB_PASSWORD",
		"database.dbname":              "DB_NAME",
		"database.sslmode":             "DB_SSLMODE",
		"database.file_path":           "DB_FILE_PATH",
		"jwt.private_key_path":         "JWT_PRIVATE_KEY_PATH",
		"redis.address":                "REDIS_ADDRESS",
		"redis.password":               "REDIS_PASSWORD",
		"pubsub.driver":                "PUBSUB_DRIVER",
		"pubsub.redis.address":         "PUBSUB_REDIS_ADDRESS",
		"pubsub.kafka.brokers":         "KAFKA_BROKERS",
		"pubsub.nats.url":              "NATS_URL",
		"storage.driver":               "STORAGE_DRIVER",
		"storage.s3.bucket":            "S3_BUCKET",
		"storage.s3.endpoint":          "S3_ENDPOINT",
		"storage.s3.access_key_id":     "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "S3_SECRET_ACCESS_KEY",
		"log.level":                    "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
