package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	EnvPrefix = "AUCTIONHOUSE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AUCTIONHOUSE_DB_DSN"
	EnvDBHost = "AUCTIONHOUSE_DB_HOST"
	EnvDBUser = "AUCTIONHOUSE_DB_USER"
	EnvDBName = "AUCTIONHOUSE_DB_NAME"

	PaymentProviderStripe  = "stripe"
	PaymentProviderSquare  = "square"
	PaymentProviderSandbox = "sandbox"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Bidding      BiddingConfig
	Escrow       EscrowConfig
	Auctions     AuctionsConfig
	Cron         CronConfig
	Tasks        TasksConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs error
	if c.Bidding.MaxConflictRetries < 1 || c.Bidding.MaxConflictRetries > 10 {
		errs = multierr.Append(errs, fmt.Errorf("bidding max conflict retries must be between 1 and 10, got %d", c.Bidding.MaxConflictRetries))
	}
	if c.Bidding.MaxAmount.Sign() <= 0 {
		errs = multierr.Append(errs, errors.New("bidding max amount must be positive"))
	}
	if c.Escrow.PlatformFeeBPS < 0 || c.Escrow.EscrowFeeBPS < 0 {
		errs = multierr.Append(errs, errors.New("escrow fees must not be negative"))
	}
	for name, window := range c.Escrow.Windows() {
		if window <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("escrow deadline for %s must be positive", name))
		}
	}
	if c.Escrow.ReminderThreshold <= 0 {
		errs = multierr.Append(errs, errors.New("escrow reminder threshold must be positive"))
	}
	switch c.Payments.ProviderName() {
	case PaymentProviderStripe, PaymentProviderSquare, PaymentProviderSandbox:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown payment provider %q", c.Payments.Provider))
	}
	if c.HTTP.BidRateLimit < 0 {
		errs = multierr.Append(errs, errors.New("bid rate limit must not be negative"))
	}
	if c.Tasks.MaxAttempts < 1 {
		errs = multierr.Append(errs, errors.New("task max attempts must be at least 1"))
	}
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"AUCTIONHOUSE_APP_ENV" required:"true"`
	Port         string `envconfig:"AUCTIONHOUSE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"AUCTIONHOUSE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"AUCTIONHOUSE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"AUCTIONHOUSE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AUCTIONHOUSE_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	AllowedOrigins []string      `envconfig:"AUCTIONHOUSE_HTTP_ALLOWED_ORIGINS" default:"*"`
	BidRateLimit   int           `envconfig:"AUCTIONHOUSE_HTTP_BID_RATE_LIMIT" default:"30"`
	BidRateWindow  time.Duration `envconfig:"AUCTIONHOUSE_HTTP_BID_RATE_WINDOW" default:"1m"`
}

type DBConfig struct {
	DSN string `envconfig:"AUCTIONHOUSE_DB_DSN"`

	LegacyHost     string `envconfig:"AUCTIONHOUSE_DB_HOST"`
	LegacyPort     int    `envconfig:"AUCTIONHOUSE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUCTIONHOUSE_DB_USER"`
	LegacyPassword string `envconfig:"AUCTIONHOUSE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUCTIONHOUSE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUCTIONHOUSE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUCTIONHOUSE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUCTIONHOUSE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUCTIONHOUSE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUCTIONHOUSE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUCTIONHOUSE_REDIS_URL"`
	Address      string        `envconfig:"AUCTIONHOUSE_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"AUCTIONHOUSE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUCTIONHOUSE_REDIS_DB" default:"0"`
	Namespace    string        `envconfig:"AUCTIONHOUSE_REDIS_NAMESPACE" default:"ah"`
	PoolSize     int           `envconfig:"AUCTIONHOUSE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUCTIONHOUSE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUCTIONHOUSE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUCTIONHOUSE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUCTIONHOUSE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AUCTIONHOUSE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AUCTIONHOUSE_JWT_ISSUER" default:"auctionhouse"`
	ExpirationMinutes int    `envconfig:"AUCTIONHOUSE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUCTIONHOUSE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"AUCTIONHOUSE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"AUCTIONHOUSE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	AuctionTopic        string `envconfig:"AUCTIONHOUSE_PUBSUB_AUCTION_TOPIC" default:"ah-auction-events"`
	AuctionSubscription string `envconfig:"AUCTIONHOUSE_PUBSUB_AUCTION_SUBSCRIPTION" default:"ah-auction-notifications"`
	EscrowTopic         string `envconfig:"AUCTIONHOUSE_PUBSUB_ESCROW_TOPIC" default:"ah-escrow-events"`
	EscrowSubscription  string `envconfig:"AUCTIONHOUSE_PUBSUB_ESCROW_SUBSCRIPTION" default:"ah-escrow-notifications"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"AUCTIONHOUSE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"AUCTIONHOUSE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"AUCTIONHOUSE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"AUCTIONHOUSE_OUTBOX_RETENTION" default:"720h"`
}

type PaymentsConfig struct {
	Provider string `envconfig:"AUCTIONHOUSE_PAYMENTS_PROVIDER" default:"sandbox"`
	Currency string `envconfig:"AUCTIONHOUSE_PAYMENTS_CURRENCY" default:"USD"`
}

// ProviderName returns the normalized processor name.
func (p PaymentsConfig) ProviderName() string {
	return strings.ToLower(strings.TrimSpace(p.Provider))
}

type StripeConfig struct {
	APIKey string `envconfig:"AUCTIONHOUSE_STRIPE_API_KEY"`
	Env    string `envconfig:"AUCTIONHOUSE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"AUCTIONHOUSE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"AUCTIONHOUSE_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"AUCTIONHOUSE_SQUARE_LOCATION_ID"`
}

type BiddingConfig struct {
	MaxConflictRetries int             `envconfig:"AUCTIONHOUSE_BIDDING_MAX_CONFLICT_RETRIES" default:"3"`
	MaxAmount          decimal.Decimal `envconfig:"AUCTIONHOUSE_BIDDING_MAX_AMOUNT" default:"1000000000"`
}

type EscrowConfig struct {
	PlatformFeeBPS    int64         `envconfig:"AUCTIONHOUSE_ESCROW_PLATFORM_FEE_BPS" default:"250"`
	EscrowFeeBPS      int64         `envconfig:"AUCTIONHOUSE_ESCROW_FEE_BPS" default:"89"`
	DepositWindow     time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_DEPOSIT_WINDOW" default:"72h"`
	AgreementWindow   time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_AGREEMENT_WINDOW" default:"72h"`
	ShipmentWindow    time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_SHIPMENT_WINDOW" default:"120h"`
	DeliveryWindow    time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_DELIVERY_WINDOW" default:"168h"`
	InspectionWindow  time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_INSPECTION_WINDOW" default:"72h"`
	ReminderThreshold time.Duration `envconfig:"AUCTIONHOUSE_ESCROW_REMINDER_THRESHOLD" default:"24h"`
}

// Windows lists the per-state deadline durations by name.
func (e EscrowConfig) Windows() map[string]time.Duration {
	return map[string]time.Duration{
		"deposit":    e.DepositWindow,
		"agreement":  e.AgreementWindow,
		"shipment":   e.ShipmentWindow,
		"delivery":   e.DeliveryWindow,
		"inspection": e.InspectionWindow,
	}
}

type AuctionsConfig struct {
	SweepBatchSize int           `envconfig:"AUCTIONHOUSE_AUCTIONS_SWEEP_BATCH_SIZE" default:"100"`
	EndingSoonLead time.Duration `envconfig:"AUCTIONHOUSE_AUCTIONS_ENDING_SOON_LEAD" default:"1h"`
	PendingLeadTTL time.Duration `envconfig:"AUCTIONHOUSE_AUCTIONS_PENDING_LEAD_TTL" default:"15m"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"AUCTIONHOUSE_CRON_INTERVAL" default:"1m"`
	LockTTL               time.Duration `envconfig:"AUCTIONHOUSE_CRON_LOCK_TTL" default:"5m"`
	HousekeepingInterval  time.Duration `envconfig:"AUCTIONHOUSE_CRON_HOUSEKEEPING_INTERVAL" default:"24h"`
	NotificationRetention time.Duration `envconfig:"AUCTIONHOUSE_CRON_NOTIFICATION_RETENTION" default:"2160h"`
}

type TasksConfig struct {
	BatchSize    int           `envconfig:"AUCTIONHOUSE_TASKS_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"AUCTIONHOUSE_TASKS_MAX_ATTEMPTS" default:"8"`
	RetryBackoff time.Duration `envconfig:"AUCTIONHOUSE_TASKS_RETRY_BACKOFF" default:"1m"`
	Lease        time.Duration `envconfig:"AUCTIONHOUSE_TASKS_LEASE" default:"2m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	values := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	var missing []string
	for _, name := range legacyDBEnvVars {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
