package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, secrets)
// - default: Values common across all environments (intervals, timeouts, batch sizes)
// -----------------------------------------------------------------------------

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	CORS       CORSConfig
	Log        LogConfig
	Auth       AuthConfig
	Generation GenerationConfig
	Delivery   DeliveryConfig
	Leader     LeaderConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	DBName   string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization,Idempotency-Key"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"UTC"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"0"`
}

// AuthConfig authenticates the product layer calling into this core.
type AuthConfig struct {
	ServiceTokenSecret string `envconfig:"SERVICE_TOKEN_SECRET" required:"true"`
}

type GenerationConfig struct {
	BaseURL           string        `envconfig:"GENERATION_BASE_URL" required:"true"`
	APIKey            string        `envconfig:"GENERATION_API_KEY" required:"true"`
	RequestTimeout    time.Duration `envconfig:"GENERATION_REQUEST_TIMEOUT" default:"30s"`
	MaxAttempts       uint          `envconfig:"GENERATION_MAX_ATTEMPTS" default:"3"`
	BaseBackoff       time.Duration `envconfig:"GENERATION_BASE_BACKOFF" default:"2s"`
	PollInterval      time.Duration `envconfig:"GENERATION_POLL_INTERVAL" default:"10s"`
	DispatchDeadline  time.Duration `envconfig:"GENERATION_DISPATCH_DEADLINE" default:"5m"`
	ReconcileDeadline time.Duration `envconfig:"GENERATION_RECONCILE_DEADLINE" default:"30m"`
}

type DeliveryConfig struct {
	BaseURL        string        `envconfig:"DELIVERY_BASE_URL" required:"true"`
	Token          string        `envconfig:"DELIVERY_TOKEN" required:"true"`
	RequestTimeout time.Duration `envconfig:"DELIVERY_REQUEST_TIMEOUT" default:"30s"`
	RetryInterval  time.Duration `envconfig:"DELIVERY_RETRY_INTERVAL" default:"1m"`
}

type LeaderConfig struct {
	LeaseName string        `envconfig:"LEADER_LEASE_NAME" default:"genflow-leader"`
	LeaseTTL  time.Duration `envconfig:"LEADER_LEASE_TTL" default:"15s"`
}

type WorkerConfig struct {
	DrainBatchSize int32         `envconfig:"WORKER_DRAIN_BATCH_SIZE" default:"50"`
	SweepInterval  time.Duration `envconfig:"WORKER_SWEEP_INTERVAL" default:"1m"`
	EventRetention time.Duration `envconfig:"WORKER_EVENT_RETENTION" default:"72h"`
	PurgeInterval  time.Duration `envconfig:"WORKER_PURGE_INTERVAL" default:"1h"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Renewal must run strictly more often than the lease can expire.
func (c *LeaderConfig) RenewInterval() time.Duration {
	return c.LeaseTTL / 3
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889",
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433",
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
		},
		Log: LogConfig{
			Level:      "error",
			TimeZone:   "UTC",
			TimeFormat: "2006-01-02 15:04:05.000",
		},
		Auth: AuthConfig{
			ServiceTokenSecret: "test-secret",
		},
		Generation: GenerationConfig{
			BaseURL:           "http://localhost:18080",
			APIKey:            "test-key",
			RequestTimeout:    5 * time.Second,
			MaxAttempts:       3,
			BaseBackoff:       10 * time.Millisecond,
			PollInterval:      100 * time.Millisecond,
			DispatchDeadline:  time.Minute,
			ReconcileDeadline: 5 * time.Minute,
		},
		Delivery: DeliveryConfig{
			BaseURL:        "http://localhost:18081",
			Token:          "test-token",
			RequestTimeout: 5 * time.Second,
			RetryInterval:  100 * time.Millisecond,
		},
		Leader: LeaderConfig{
			LeaseName: "genflow-leader-test",
			LeaseTTL:  3 * time.Second,
		},
		Worker: WorkerConfig{
			DrainBatchSize: 50,
			SweepInterval:  time.Second,
			EventRetention: time.Hour,
			PurgeInterval:  time.Minute,
		},
	}
}
