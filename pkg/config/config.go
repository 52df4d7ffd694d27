package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Wallet       WalletConfig
	Site         SiteConfig
	Webhook      WebhookConfig
	Subscription SubscriptionConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	if err := cfg.Site.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CYBERBRIEF_APP_ENV" required:"true"`
	Port         string `envconfig:"CYBERBRIEF_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CYBERBRIEF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CYBERBRIEF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CYBERBRIEF_DB_DSN"`
	Driver string `envconfig:"CYBERBRIEF_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CYBERBRIEF_DB_HOST"`
	LegacyPort     int    `envconfig:"CYBERBRIEF_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CYBERBRIEF_DB_USER"`
	LegacyPassword string `envconfig:"CYBERBRIEF_DB_PASSWORD"`
	LegacyName     string `envconfig:"CYBERBRIEF_DB_NAME"`
	LegacySSLMode  string `envconfig:"CYBERBRIEF_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CYBERBRIEF_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CYBERBRIEF_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CYBERBRIEF_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CYBERBRIEF_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite dialector is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CYBERBRIEF_REDIS_URL"`
	Address      string        `envconfig:"CYBERBRIEF_REDIS_ADDR"`
	Password     string        `envconfig:"CYBERBRIEF_REDIS_PASSWORD"`
	DB           int           `envconfig:"CYBERBRIEF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CYBERBRIEF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CYBERBRIEF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CYBERBRIEF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CYBERBRIEF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CYBERBRIEF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the external auth provider.
type JWTConfig struct {
	Secret string `envconfig:"CYBERBRIEF_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CYBERBRIEF_JWT_ISSUER"`
}

// WalletConfig holds the payment-link provider credentials. The same key/secret
// pair authenticates outbound calls and verifies inbound webhook signatures.
type WalletConfig struct {
	Endpoint  string        `envconfig:"CYBERBRIEF_WALLET_ENDPOINT" required:"true"`
	APIKey    string        `envconfig:"CYBERBRIEF_WALLET_API_KEY" required:"true"`
	APISecret string        `envconfig:"CYBERBRIEF_WALLET_API_SECRET" required:"true"`
	Timeout   time.Duration `envconfig:"CYBERBRIEF_WALLET_TIMEOUT" default:"15s"`
}

type SiteConfig struct {
	BaseURL        string   `envconfig:"CYBERBRIEF_SITE_URL" required:"true"`
	SuccessPath    string   `envconfig:"CYBERBRIEF_SITE_SUCCESS_PATH" default:"/payment/success"`
	AllowedOrigins []string `envconfig:"CYBERBRIEF_CORS_ORIGINS"`
}

// RedirectURL builds the post-payment landing URL for a reference.
func (s SiteConfig) RedirectURL(reference string) string {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	path := "/" + strings.TrimLeft(strings.TrimSpace(s.SuccessPath), "/")
	q := url.Values{}
	q.Set("ref", reference)
	return base + path + "?" + q.Encode()
}

// Origins returns the CORS allow-list, defaulting to the site itself.
func (s SiteConfig) Origins() []string {
	origins := make([]string, 0, len(s.AllowedOrigins)+1)
	for _, origin := range s.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"))
	}
	return origins
}

func (s SiteConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(s.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", EnvSiteURL)
	}
	return nil
}

type WebhookConfig struct {
	ReplayTTL time.Duration `envconfig:"CYBERBRIEF_WEBHOOK_REPLAY_TTL" default:"72h"`
	MaxBodyKB int64         `envconfig:"CYBERBRIEF_WEBHOOK_MAX_BODY_KB" default:"64"`
}

type SubscriptionConfig struct {
	PeriodDays int `envconfig:"CYBERBRIEF_SUBSCRIPTION_PERIOD_DAYS" default:"30"`
}

// Period returns the entitlement length granted per fulfilled payment.
func (s SubscriptionConfig) Period() time.Duration {
	if s.PeriodDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(s.PeriodDays) * 24 * time.Hour
}

type RateLimitConfig struct {
	PaymentWindow     time.Duration `envconfig:"CYBERBRIEF_RATE_LIMIT_PAYMENT_WINDOW" default:"1m"`
	PaymentIPLimit    int           `envconfig:"CYBERBRIEF_RATE_LIMIT_PAYMENT_IP_LIMIT" default:"20"`
	PaymentEmailLimit int           `envconfig:"CYBERBRIEF_RATE_LIMIT_PAYMENT_EMAIL_LIMIT" default:"5"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CYBERBRIEF_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CYBERBRIEF_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CYBERBRIEF_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig is optional; an empty topic disables event publishing.
type PubSubConfig struct {
	PaymentsTopic string `envconfig:"CYBERBRIEF_PUBSUB_PAYMENTS_TOPIC"`
}

// Enabled reports whether fulfilled-payment events should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.PaymentsTopic) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CYBERBRIEF_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverSQLite)
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
