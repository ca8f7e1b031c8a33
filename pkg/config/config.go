package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable consumed by the platform.
	EnvPrefix = "EVENTGATE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "EVENTGATE_DB_DSN"
	EnvDBHost = "EVENTGATE_DB_HOST"
	EnvDBUser = "EVENTGATE_DB_USER"
	EnvDBName = "EVENTGATE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Dispatch     DispatchConfig
	Sweeper      SweeperConfig
	FeatureFlags FeatureFlagsConfig
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVENTGATE_AUTO_MIGRATE" default:"false"`
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
	Env          string   `envconfig:"EVENTGATE_APP_ENV" required:"true"`
	Port         string   `envconfig:"EVENTGATE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"EVENTGATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"EVENTGATE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"EVENTGATE_CORS_ORIGINS"`

	// Fixed-window ingest throttle, keyed per client. Zero disables it.
	IngestRateLimit  int64         `envconfig:"EVENTGATE_INGEST_RATE_LIMIT" default:"0"`
	IngestRateWindow time.Duration `envconfig:"EVENTGATE_INGEST_RATE_WINDOW" default:"1m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTGATE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTGATE_DB_DSN"`
	Driver string `envconfig:"EVENTGATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTGATE_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTGATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTGATE_DB_USER"`
	LegacyPassword string `envconfig:"EVENTGATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTGATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTGATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTGATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTGATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTGATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTGATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTGATE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTGATE_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTGATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTGATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTGATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTGATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTGATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTGATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTGATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVENTGATE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTGATE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTGATE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTGATE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EVENTGATE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVENTGATE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DispatchTopic        string `envconfig:"EVENTGATE_PUBSUB_DISPATCH_TOPIC" required:"true"`
	DispatchSubscription string `envconfig:"EVENTGATE_PUBSUB_DISPATCH_SUBSCRIPTION" required:"true"`
}

// DispatchConfig tunes the delivery worker fleet and its retry curve.
type DispatchConfig struct {
	Workers           int           `envconfig:"EVENTGATE_DISPATCH_WORKERS" default:"8"`
	DefaultPoolCode   string        `envconfig:"EVENTGATE_DISPATCH_DEFAULT_POOL" default:"DEFAULT-POOL"`
	DefaultTimeout    time.Duration `envconfig:"EVENTGATE_DISPATCH_DEFAULT_TIMEOUT" default:"30s"`
	RetryBaseDelay    time.Duration `envconfig:"EVENTGATE_DISPATCH_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay     time.Duration `envconfig:"EVENTGATE_DISPATCH_RETRY_MAX_DELAY" default:"5m"`
	DeferDelay        time.Duration `envconfig:"EVENTGATE_DISPATCH_DEFER_DELAY" default:"5s"`
	PoolRefreshTTL    time.Duration `envconfig:"EVENTGATE_DISPATCH_POOL_REFRESH_TTL" default:"30s"`
	MaxBatchEvents    int           `envconfig:"EVENTGATE_DISPATCH_MAX_BATCH_EVENTS" default:"100"`
	ResponseBodyLimit int           `envconfig:"EVENTGATE_DISPATCH_RESPONSE_BODY_LIMIT" default:"65536"`
}

// SweeperConfig tunes the reconciliation sweep for lost pointer notifications.
type SweeperConfig struct {
	Interval    time.Duration `envconfig:"EVENTGATE_SWEEPER_INTERVAL" default:"1m"`
	GraceWindow time.Duration `envconfig:"EVENTGATE_SWEEPER_GRACE_WINDOW" default:"2m"`
	BatchSize   int           `envconfig:"EVENTGATE_SWEEPER_BATCH_SIZE" default:"500"`
	LockTTL     time.Duration `envconfig:"EVENTGATE_SWEEPER_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
