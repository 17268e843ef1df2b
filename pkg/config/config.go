package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Wallet       WalletConfig
	Withdrawals  WithdrawalsConfig
	Gateway      GatewayConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Eventing     EventingConfig
	Metrics      MetricsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Withdrawals.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FUNDILINK_APP_ENV" required:"true"`
	Port         string `envconfig:"FUNDILINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FUNDILINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FUNDILINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FUNDILINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FUNDILINK_DB_DSN"`
	Driver string `envconfig:"FUNDILINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FUNDILINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FUNDILINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FUNDILINK_DB_USER"`
	LegacyPassword string `envconfig:"FUNDILINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FUNDILINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FUNDILINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FUNDILINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FUNDILINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FUNDILINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FUNDILINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FUNDILINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FUNDILINK_REDIS_ADDR"`
	Password     string        `envconfig:"FUNDILINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FUNDILINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FUNDILINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FUNDILINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FUNDILINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FUNDILINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FUNDILINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FUNDILINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FUNDILINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FUNDILINK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FUNDILINK_AUTO_MIGRATE" default:"false"`
}

// WalletConfig carries ledger-wide defaults.
type WalletConfig struct {
	DefaultCurrency string `envconfig:"FUNDILINK_WALLET_DEFAULT_CURRENCY" default:"KES"`
}

// RateLimitConfig throttles authenticated API traffic per user.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"FUNDILINK_RATE_LIMIT_WINDOW" default:"1m"`
	PerUserLimit int64         `envconfig:"FUNDILINK_RATE_LIMIT_PER_USER" default:"120"`
}

type WithdrawalsConfig struct {
	MinimumAmount      decimal.Decimal `envconfig:"FUNDILINK_WITHDRAWAL_MINIMUM" default:"100"`
	PlatformFeeRate    decimal.Decimal `envconfig:"FUNDILINK_WITHDRAWAL_FEE_RATE" default:"0.02"`
	MaxSettleAttempts  int             `envconfig:"FUNDILINK_WITHDRAWAL_MAX_SETTLE_ATTEMPTS" default:"3"`
	SettleBatchSize    int             `envconfig:"FUNDILINK_WITHDRAWAL_SETTLE_BATCH_SIZE" default:"20"`
	SettlePollInterval time.Duration   `envconfig:"FUNDILINK_WITHDRAWAL_SETTLE_POLL_INTERVAL" default:"30s"`
}

func (w WithdrawalsConfig) validate() error {
	if w.PlatformFeeRate.IsNegative() || w.PlatformFeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("withdrawal fee rate must be within [0,1], got %s", w.PlatformFeeRate)
	}
	if w.MinimumAmount.IsNegative() {
		return fmt.Errorf("withdrawal minimum must not be negative, got %s", w.MinimumAmount)
	}
	if w.MaxSettleAttempts <= 0 {
		return fmt.Errorf("withdrawal max settle attempts must be positive, got %d", w.MaxSettleAttempts)
	}
	return nil
}

type GatewayConfig struct {
	CallTimeout   time.Duration `envconfig:"FUNDILINK_GATEWAY_CALL_TIMEOUT" default:"15s"`
	RetryAttempts int           `envconfig:"FUNDILINK_GATEWAY_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"FUNDILINK_GATEWAY_RETRY_BACKOFF" default:"500ms"`

	Square       SquareConfig
	MobileMoney  MobileMoneyConfig
	BankTransfer BankTransferConfig
}

type SquareConfig struct {
	AccessToken string `envconfig:"FUNDILINK_SQUARE_ACCESS_TOKEN"`
	Environment string `envconfig:"FUNDILINK_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"FUNDILINK_SQUARE_LOCATION_ID"`
}

type MobileMoneyConfig struct {
	Provider string `envconfig:"FUNDILINK_MOMO_PROVIDER" default:"mpesa"`
	BaseURL  string `envconfig:"FUNDILINK_MOMO_BASE_URL"`
	APIKey   string `envconfig:"FUNDILINK_MOMO_API_KEY"`
}

type BankTransferConfig struct {
	BaseURL string `envconfig:"FUNDILINK_BANK_BASE_URL"`
	APIKey  string `envconfig:"FUNDILINK_BANK_API_KEY"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FUNDILINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FUNDILINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FUNDILINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingEventsTopic        string `envconfig:"FUNDILINK_PUBSUB_BOOKING_EVENTS_TOPIC" default:"fl-booking-events"`
	BookingEventsSubscription string `envconfig:"FUNDILINK_PUBSUB_BOOKING_EVENTS_SUBSCRIPTION" default:"fl-booking-events-wallet"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"FUNDILINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type MetricsConfig struct {
	Port string `envconfig:"FUNDILINK_METRICS_PORT" default:"9100"`
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
