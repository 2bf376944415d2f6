package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is empty because every field carries its full PIMSYNC_ name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Akeneo  AkeneoConfig
	Queue   QueueConfig
	Health  HealthConfig
	Cron    CronConfig
	Ledger  LedgerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIMSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"PIMSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PIMSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PIMSYNC_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"PIMSYNC_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"PIMSYNC_DB_DSN"`

	Host     string `envconfig:"PIMSYNC_DB_HOST"`
	Port     int    `envconfig:"PIMSYNC_DB_PORT" default:"5432"`
	User     string `envconfig:"PIMSYNC_DB_USER"`
	Password string `envconfig:"PIMSYNC_DB_PASSWORD"`
	Name     string `envconfig:"PIMSYNC_DB_NAME"`
	SSLMode  string `envconfig:"PIMSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PIMSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIMSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIMSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIMSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PIMSYNC_REDIS_URL"`
	Address      string        `envconfig:"PIMSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"PIMSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIMSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIMSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIMSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIMSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIMSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIMSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AkeneoConfig covers both the inbound webhook secret and the outbound API
// client used by the sync worker.
type AkeneoConfig struct {
	BaseURL       string        `envconfig:"PIMSYNC_AKENEO_BASE_URL" required:"true"`
	APIToken      string        `envconfig:"PIMSYNC_AKENEO_API_TOKEN"`
	WebhookSecret string        `envconfig:"PIMSYNC_AKENEO_WEBHOOK_SECRET"`
	FetchTimeout  time.Duration `envconfig:"PIMSYNC_AKENEO_FETCH_TIMEOUT" default:"10s"`
}

type QueueConfig struct {
	MaxRetries         int           `envconfig:"PIMSYNC_QUEUE_MAX_RETRIES" default:"5"`
	BackoffBase        time.Duration `envconfig:"PIMSYNC_QUEUE_BACKOFF_BASE" default:"30s"`
	BackoffCap         time.Duration `envconfig:"PIMSYNC_QUEUE_BACKOFF_CAP" default:"30m"`
	PollInterval       time.Duration `envconfig:"PIMSYNC_QUEUE_POLL_INTERVAL" default:"2s"`
	StalenessThreshold time.Duration `envconfig:"PIMSYNC_QUEUE_STALENESS_THRESHOLD" default:"10m"`
}

type HealthConfig struct {
	Window              time.Duration `envconfig:"PIMSYNC_HEALTH_WINDOW" default:"1h"`
	FailureRatePercent  float64       `envconfig:"PIMSYNC_HEALTH_FAILURE_RATE_PERCENT" default:"20"`
	CriticalRatePercent float64       `envconfig:"PIMSYNC_HEALTH_CRITICAL_RATE_PERCENT" default:"50"`
	MaxSyncStaleness    time.Duration `envconfig:"PIMSYNC_HEALTH_MAX_SYNC_STALENESS" default:"6h"`
	MaxConsecutiveFails int           `envconfig:"PIMSYNC_HEALTH_MAX_CONSECUTIVE_FAILS" default:"5"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"PIMSYNC_CRON_INTERVAL" default:"5m"`
	LockTTL          time.Duration `envconfig:"PIMSYNC_CRON_LOCK_TTL" default:"4m"`
	StuckReceivedAge time.Duration `envconfig:"PIMSYNC_CRON_STUCK_RECEIVED_AGE" default:"15m"`
	SweepBatchSize   int           `envconfig:"PIMSYNC_CRON_SWEEP_BATCH_SIZE" default:"100"`
}

type LedgerConfig struct {
	ResourceKind string `envconfig:"PIMSYNC_LEDGER_RESOURCE_KIND" default:"PRODUCT"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	components := map[string]string{
		"PIMSYNC_DB_HOST": db.Host,
		"PIMSYNC_DB_USER": db.User,
		"PIMSYNC_DB_NAME": db.Name,
	}
	for _, key := range []string{"PIMSYNC_DB_HOST", "PIMSYNC_DB_USER", "PIMSYNC_DB_NAME"} {
		if components[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either PIMSYNC_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
