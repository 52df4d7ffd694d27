package config

// envconfig processes each field by its explicit envconfig tag, so the prefix
// is only used for fields without one.
const EnvPrefix = "CYBERBRIEF"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "CYBERBRIEF_APP_ENV"
	EnvPort     = "CYBERBRIEF_APP_PORT"
	EnvLogLevel = "CYBERBRIEF_LOG_LEVEL"

	EnvDBDSN    = "CYBERBRIEF_DB_DSN"
	EnvDBDriver = "CYBERBRIEF_DB_DRIVER"
	EnvDBHost   = "CYBERBRIEF_DB_HOST"
	EnvDBPort   = "CYBERBRIEF_DB_PORT"
	EnvDBUser   = "CYBERBRIEF_DB_USER"
	EnvDBPass   = "CYBERBRIEF_DB_PASSWORD"
	EnvDBName   = "CYBERBRIEF_DB_NAME"

	EnvRedisURL = "CYBERBRIEF_REDIS_URL"

	EnvJWTSecret = "CYBERBRIEF_JWT_SECRET"
	EnvJWTIssuer = "CYBERBRIEF_JWT_ISSUER"

	EnvWalletEndpoint  = "CYBERBRIEF_WALLET_ENDPOINT"
	EnvWalletAPIKey    = "CYBERBRIEF_WALLET_API_KEY"
	EnvWalletAPISecret = "CYBERBRIEF_WALLET_API_SECRET"
	EnvWalletTimeout   = "CYBERBRIEF_WALLET_TIMEOUT"

	EnvSiteURL     = "CYBERBRIEF_SITE_URL"
	EnvCORSOrigins = "CYBERBRIEF_CORS_ORIGINS"

	EnvSubscriptionPeriodDays = "CYBERBRIEF_SUBSCRIPTION_PERIOD_DAYS"
	EnvPubSubPaymentsTopic    = "CYBERBRIEF_PUBSUB_PAYMENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
