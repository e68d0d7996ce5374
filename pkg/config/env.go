package config

// EnvPrefix namespaces every variable read by envconfig.
const EnvPrefix = "REVENUE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StoreDriverBigQuery = "bigquery"
	StoreDriverMemory   = "memory"
)

const (
	EnvAppEnv         = "REVENUE_APP_ENV"
	EnvLogLevel       = "REVENUE_LOG_LEVEL"
	EnvDBDSN          = "REVENUE_DB_DSN"
	EnvDBHost         = "REVENUE_DB_HOST"
	EnvDBUser         = "REVENUE_DB_USER"
	EnvDBName         = "REVENUE_DB_NAME"
	EnvDBPassword     = "REVENUE_DB_PASSWORD"
	EnvRedisURL       = "REVENUE_REDIS_URL"
	EnvGCPProjectID   = "REVENUE_GCP_PROJECT_ID"
	EnvStoreDriver    = "REVENUE_STORE_DRIVER"
	EnvSyncOverlap    = "REVENUE_SYNC_OVERLAP"
	EnvRatesTTL       = "REVENUE_RATES_TTL"
	EnvCredentialsKey = "REVENUE_CREDENTIALS_KEY"
	EnvJWTSecret      = "REVENUE_JWT_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
