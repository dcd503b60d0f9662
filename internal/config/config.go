package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Redis     RedisConfig
	Store     StoreConfig
	Kafka     KafkaConfig
	TTL       TTLConfig
	Sales     SalesConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"sales-realtime-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminKeys   string `envconfig:"ADMIN_API_KEYS" default:""` // comma separated

	// ProductCache selects the product read-through cache: redis or memory.
	ProductCache string `envconfig:"PRODUCT_CACHE" default:"redis"`
}

// RedisConfig holds the fast store connection settings.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"20"`
}

// StoreConfig holds durable store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql, postgres or mongodb
	Path string `envconfig:"STORE_PATH" default:"./data/sales.db"`

	MongoURI        string `envconfig:"STORE_MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"STORE_MONGO_DATABASE" default:"sales"`
	MongoCollection string `envconfig:"STORE_MONGO_COLLECTION" default:"cells"`

	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"3306"`
	Name     string `envconfig:"STORE_NAME" default:"sales"`
	User     string `envconfig:"STORE_USER" default:"root"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
}

// KafkaConfig holds order event publishing settings. Empty brokers disables publishing.
type KafkaConfig struct {
	Brokers string `envconfig:"KAFKA_BROKERS" default:""`
	Topic   string `envconfig:"KAFKA_ORDER_TOPIC" default:"order-events"`
}

// TTLConfig holds the expiry of every fast-store key family.
type TTLConfig struct {
	Stock        time.Duration `envconfig:"TTL_STOCK" default:"1h"`
	Cart         time.Duration `envconfig:"TTL_CART" default:"168h"`
	OrderStatus  time.Duration `envconfig:"TTL_ORDER_STATUS" default:"168h"`
	StatsMarker  time.Duration `envconfig:"TTL_STATS_MARKER" default:"168h"`
	Dashboard    time.Duration `envconfig:"TTL_DASHBOARD" default:"1h"`
	ProductCache time.Duration `envconfig:"TTL_PRODUCT_CACHE" default:"5m"`
	StockLease   time.Duration `envconfig:"TTL_STOCK_LEASE" default:"30s"`
}

// SalesConfig holds background job settings.
type SalesConfig struct {
	FlushInterval      time.Duration `envconfig:"SALES_FLUSH_INTERVAL" default:"30s"`
	UnpaidOrderTimeout time.Duration `envconfig:"UNPAID_ORDER_TIMEOUT" default:"0s"` // 0 disables the sweeper
	SweepInterval      time.Duration `envconfig:"UNPAID_SWEEP_INTERVAL" default:"5m"`
}

// RateLimitConfig holds per-client limits for write endpoints.
type RateLimitConfig struct {
	RPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst int     `envconfig:"RATE_LIMIT_BURST" default:"100"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsMongo reports whether the durable store is MongoDB.
func (s *StoreConfig) IsMongo() bool {
	return s.Type == "mongodb" || s.Type == "mongo"
}

// DSN returns the driver name and data source name for the configured store.
func (s *StoreConfig) DSN() (driver, dsn string, err error) {
	switch s.Type {
	case "sqlite", "":
		return "sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", s.Path), nil
	case "mysql":
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			s.User, s.Password, s.Host, s.Port, s.Name), nil
	case "postgres", "postgresql":
		return "postgres", fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode), nil
	default:
		return "", "", fmt.Errorf("unsupported store type %q", s.Type)
	}
}

// BrokerList splits the configured brokers.
func (k *KafkaConfig) BrokerList() []string {
	return splitList(k.Brokers)
}

// Keys returns the configured admin API keys.
func (a *AppConfig) Keys() []string {
	return splitList(a.AdminKeys)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
