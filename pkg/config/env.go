package config

const EnvPrefix = "SWEETSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "SWEETSHOP_APP_ENV"
	EnvPort         = "SWEETSHOP_APP_PORT"
	EnvLogLevel     = "SWEETSHOP_LOG_LEVEL"
	EnvLogWarnStack = "SWEETSHOP_LOG_WARN_STACK"
	EnvCORSOrigins  = "SWEETSHOP_CORS_ORIGINS"

	EnvDBDSN      = "SWEETSHOP_DB_DSN"
	EnvDBDriver   = "SWEETSHOP_DB_DRIVER"
	EnvDBHost     = "SWEETSHOP_DB_HOST"
	EnvDBPort     = "SWEETSHOP_DB_PORT"
	EnvDBUser     = "SWEETSHOP_DB_USER"
	EnvDBPassword = "SWEETSHOP_DB_PASSWORD"
	EnvDBName     = "SWEETSHOP_DB_NAME"
	EnvDBSSLMode  = "SWEETSHOP_DB_SSLMODE"

	EnvRedisURL = "SWEETSHOP_REDIS_URL"

	EnvJWTSecret  = "SWEETSHOP_JWT_SECRET"
	EnvJWTIssuer  = "SWEETSHOP_JWT_ISSUER"
	EnvJWTExpMins = "SWEETSHOP_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "SWEETSHOP_USE_SQLITE"
	EnvAutoMigrate = "SWEETSHOP_AUTO_MIGRATE"

	EnvLockBackend = "SWEETSHOP_LOCK_BACKEND"
	EnvLockWait    = "SWEETSHOP_LOCK_WAIT"
	EnvLockTTL     = "SWEETSHOP_LOCK_TTL"

	EnvCartAddStockCheck = "SWEETSHOP_CART_ADD_STOCK_CHECK"

	EnvCheckoutIdempotencyTTL = "SWEETSHOP_CHECKOUT_IDEMPOTENCY_TTL"
)

// legacyDBEnvVars are required when no DSN is provided.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
