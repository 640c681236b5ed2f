package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PIATA_DB_DSN"
	EnvDBHost = "PIATA_DB_HOST"
	EnvDBUser = "PIATA_DB_USER"
	EnvDBName = "PIATA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Payment      PaymentConfig
	Invoicing    InvoicingConfig
	Settlement   SettlementConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Invoicing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIATA_APP_ENV" required:"true"`
	Port         string `envconfig:"PIATA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PIATA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PIATA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PIATA_DB_DSN"`
	Driver string `envconfig:"PIATA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PIATA_DB_HOST"`
	LegacyPort     int    `envconfig:"PIATA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PIATA_DB_USER"`
	LegacyPassword string `envconfig:"PIATA_DB_PASSWORD"`
	LegacyName     string `envconfig:"PIATA_DB_NAME"`
	LegacySSLMode  string `envconfig:"PIATA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PIATA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIATA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIATA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIATA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PIATA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PIATA_REDIS_ADDR"`
	Password     string        `envconfig:"PIATA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIATA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIATA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIATA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIATA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIATA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIATA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RateLimitConfig throttles admin-triggered financial operations.
type RateLimitConfig struct {
	AdminWindow time.Duration `envconfig:"PIATA_RATE_LIMIT_ADMIN_WINDOW" default:"1m"`
	AdminLimit  int           `envconfig:"PIATA_RATE_LIMIT_ADMIN_LIMIT" default:"30"`
}

type PaymentConfig struct {
	Provider string        `envconfig:"PIATA_PAYMENT_PROVIDER" default:"mock"`
	BaseURL  string        `envconfig:"PIATA_PAYMENT_BASE_URL"`
	APIKey   string        `envconfig:"PIATA_PAYMENT_API_KEY"`
	Timeout  time.Duration `envconfig:"PIATA_PAYMENT_TIMEOUT" default:"15s"`
}

func (p PaymentConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case "mock", "netopia":
		return nil
	default:
		return fmt.Errorf("unknown payment provider %q", p.Provider)
	}
}

type InvoicingConfig struct {
	Provider string        `envconfig:"PIATA_INVOICING_PROVIDER" default:"mock"`
	BaseURL  string        `envconfig:"PIATA_INVOICING_BASE_URL"`
	Username string        `envconfig:"PIATA_INVOICING_USERNAME"`
	Token    string        `envconfig:"PIATA_INVOICING_TOKEN"`
	Series   string        `envconfig:"PIATA_INVOICING_SERIES" default:"PIATA"`
	Timeout  time.Duration `envconfig:"PIATA_INVOICING_TIMEOUT" default:"20s"`
}

func (i InvoicingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(i.Provider)) {
	case "mock", "smartbill", "facturis":
		return nil
	default:
		return fmt.Errorf("unknown invoicing provider %q", i.Provider)
	}
}

// SettlementConfig tunes the payout/refund lifecycle.
type SettlementConfig struct {
	DefaultCommissionBps int           `envconfig:"PIATA_SETTLEMENT_COMMISSION_BPS" default:"1000"`
	ProcessingStuckAfter time.Duration `envconfig:"PIATA_SETTLEMENT_PROCESSING_STUCK_AFTER" default:"30m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PIATA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PIATA_AUTO_MIGRATE" default:"false"`
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
