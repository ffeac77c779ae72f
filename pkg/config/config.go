package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	Square    SquareConfig
	Secrets   SecretsConfig
	Checkout  CheckoutConfig
	Webhook   WebhookConfig
	Reconcile ReconcileConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := ParseHintPolicy(cfg.Checkout.RedirectHintPolicy); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN       string `envconfig:"STOREFRONT_DB_DSN"`
	Driver    string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`
	UseSQLite bool   `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies the admin tokens minted by the back-office.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GatewayConfig struct {
	Provider        string        `envconfig:"STOREFRONT_GATEWAY_PROVIDER" default:"mercadopago"`
	BaseURL         string        `envconfig:"STOREFRONT_GATEWAY_BASE_URL" default:"https://api.mercadopago.com"`
	NotificationURL string        `envconfig:"STOREFRONT_GATEWAY_NOTIFICATION_URL"`
	WebhookSecret   string        `envconfig:"STOREFRONT_GATEWAY_WEBHOOK_SECRET"`
	Timeout         time.Duration `envconfig:"STOREFRONT_GATEWAY_TIMEOUT" default:"10s"`
	RetryAttempts   int           `envconfig:"STOREFRONT_GATEWAY_RETRY_ATTEMPTS" default:"3"`
	RetryBase       time.Duration `envconfig:"STOREFRONT_GATEWAY_RETRY_BASE" default:"200ms"`
	RetryCap        time.Duration `envconfig:"STOREFRONT_GATEWAY_RETRY_CAP" default:"2s"`
}

// IsSquare reports whether the Square adapter should back the gateway.
func (g GatewayConfig) IsSquare() bool {
	return strings.EqualFold(strings.TrimSpace(g.Provider), GatewayProviderSquare)
}

type SquareConfig struct {
	Env           string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SecretsConfig struct {
	// NameTemplate is expanded with the business id, e.g. "gateway-token-%s".
	NameTemplate string        `envconfig:"STOREFRONT_SECRETS_NAME_TEMPLATE" default:"gateway-token-%s"`
	CacheTTL     time.Duration `envconfig:"STOREFRONT_SECRETS_CACHE_TTL" default:"5m"`
	Timeout      time.Duration `envconfig:"STOREFRONT_SECRETS_TIMEOUT" default:"5s"`
	// StaticTokens is a dev-only "business:token,business:token" list.
	StaticTokens map[string]string `envconfig:"STOREFRONT_SECRETS_STATIC_TOKENS"`
}

type CheckoutConfig struct {
	LowStockThreshold  int    `envconfig:"STOREFRONT_CHECKOUT_LOW_STOCK_THRESHOLD" default:"5"`
	Currency           string `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"ARS"`
	BackURLBase        string `envconfig:"STOREFRONT_CHECKOUT_BACK_URL_BASE" required:"true"`
	RedirectHintPolicy string `envconfig:"STOREFRONT_CHECKOUT_REDIRECT_HINT_POLICY" default:"verify"`
}

type WebhookConfig struct {
	Workers           int           `envconfig:"STOREFRONT_WEBHOOK_WORKERS" default:"16"`
	Backlog           int           `envconfig:"STOREFRONT_WEBHOOK_BACKLOG" default:"256"`
	ProcessingTimeout time.Duration `envconfig:"STOREFRONT_WEBHOOK_PROCESSING_TIMEOUT" default:"30s"`
	AppliedMarkerTTL  time.Duration `envconfig:"STOREFRONT_WEBHOOK_APPLIED_MARKER_TTL" default:"24h"`
}

type ReconcileConfig struct {
	SweepInterval time.Duration `envconfig:"STOREFRONT_RECONCILE_SWEEP_INTERVAL" default:"5m"`
	MinAge        time.Duration `envconfig:"STOREFRONT_RECONCILE_MIN_AGE" default:"10m"`
	MaxAge        time.Duration `envconfig:"STOREFRONT_RECONCILE_MAX_AGE" default:"72h"`
	BatchSize     int           `envconfig:"STOREFRONT_RECONCILE_BATCH_SIZE" default:"100"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrderEventsTopic string `envconfig:"STOREFRONT_PUBSUB_ORDER_EVENTS_TOPIC" default:"storefront-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"14"`
}

// RateLimitConfig throttles the public storefront surface per client IP.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT" default:"20"`
	ReadLimit     int           `envconfig:"STOREFRONT_RATE_LIMIT_READ" default:"240"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// HintPolicy controls how the redirect reconciler treats gateway query hints.
type HintPolicy string

const (
	// HintPolicyVerify only applies a hinted outcome after the gateway confirms it.
	HintPolicyVerify HintPolicy = "verify"
	// HintPolicyTrust applies approved/rejected/cancelled hints as reported.
	HintPolicyTrust HintPolicy = "trust"
)

func ParseHintPolicy(raw string) (HintPolicy, error) {
	switch HintPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", HintPolicyVerify:
		return HintPolicyVerify, nil
	case HintPolicyTrust:
		return HintPolicyTrust, nil
	default:
		return "", fmt.Errorf("%s must be %q or %q", EnvRedirectHintPolicy, HintPolicyVerify, HintPolicyTrust)
	}
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.UseSQLite {
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
