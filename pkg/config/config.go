package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	DB          DBConfig
	Redis       RedisConfig
	GCP         GCPConfig
	BigQuery    BigQueryConfig
	PubSub      PubSubConfig
	Store       StoreConfig
	Sync        SyncConfig
	Currency    CurrencyConfig
	Stripe      StripeConfig
	Paddle      PaddleConfig
	Credentials CredentialsConfig
	API         APIConfig
	JWT         JWTConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REVENUE_APP_ENV" required:"true"`
	MetricsPort  string `envconfig:"REVENUE_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"REVENUE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"REVENUE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"REVENUE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"REVENUE_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"REVENUE_SERVICE_KIND" default:"worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"REVENUE_DB_DSN"`
	Driver string `envconfig:"REVENUE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REVENUE_DB_HOST"`
	LegacyPort     int    `envconfig:"REVENUE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REVENUE_DB_USER"`
	LegacyPassword string `envconfig:"REVENUE_DB_PASSWORD"`
	LegacyName     string `envconfig:"REVENUE_DB_NAME"`
	LegacySSLMode  string `envconfig:"REVENUE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REVENUE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REVENUE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REVENUE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REVENUE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn level. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"REVENUE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// RedisConfig is optional: without a URL or address the engine falls back to
// process-local rate caching and locking.
type RedisConfig struct {
	URL          string        `envconfig:"REVENUE_REDIS_URL"`
	Address      string        `envconfig:"REVENUE_REDIS_ADDR"`
	Password     string        `envconfig:"REVENUE_REDIS_PASSWORD"`
	DB           int           `envconfig:"REVENUE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REVENUE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REVENUE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REVENUE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REVENUE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REVENUE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"REVENUE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"REVENUE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"REVENUE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"REVENUE_BIGQUERY_DATASET" default:"revenue"`
	Location          string `envconfig:"REVENUE_BIGQUERY_LOCATION" default:"US"`
	TransactionsTable string `envconfig:"REVENUE_BIGQUERY_TRANSACTIONS_TABLE" default:"revenue_transactions"`
	SessionsTable     string `envconfig:"REVENUE_BIGQUERY_SESSIONS_TABLE"`
	// InsertBatchSize is the number of rows a sync pass buffers per insert
	// request. Buffers belong to the pass and are counted as written only
	// once BigQuery accepts them.
	InsertBatchSize int `envconfig:"REVENUE_BIGQUERY_INSERT_BATCH_SIZE" default:"1"`
}

type PubSubConfig struct {
	SyncRequestsSubscription string `envconfig:"REVENUE_PUBSUB_SYNC_SUBSCRIPTION" default:"revenue-sync-requests-worker"`
	SyncRequestsTopic        string `envconfig:"REVENUE_PUBSUB_SYNC_TOPIC" default:"revenue-sync-requests"`
}

type StoreConfig struct {
	Driver string `envconfig:"REVENUE_STORE_DRIVER" default:"bigquery"`
}

func (s StoreConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StoreDriverBigQuery, StoreDriverMemory:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStoreDriver, StoreDriverBigQuery, StoreDriverMemory)
	}
}

// UsesBigQuery reports whether transactions are persisted to BigQuery.
func (s StoreConfig) UsesBigQuery() bool {
	return strings.EqualFold(strings.TrimSpace(s.Driver), StoreDriverBigQuery)
}

type SyncConfig struct {
	OverlapWindow time.Duration `envconfig:"REVENUE_SYNC_OVERLAP" default:"60s"`
	LockTTL       time.Duration `envconfig:"REVENUE_SYNC_LOCK_TTL" default:"30m"`
}

type CurrencyConfig struct {
	RatesURL     string        `envconfig:"REVENUE_RATES_URL" default:"https://open.er-api.com/v6/latest/USD"`
	Pivot        string        `envconfig:"REVENUE_RATES_PIVOT" default:"USD"`
	TTL          time.Duration `envconfig:"REVENUE_RATES_TTL" default:"24h"`
	FetchTimeout time.Duration `envconfig:"REVENUE_RATES_FETCH_TIMEOUT" default:"10s"`
	RetryBackoff time.Duration `envconfig:"REVENUE_RATES_RETRY_BACKOFF" default:"1m"`
}

type StripeConfig struct {
	BaseURL        string        `envconfig:"REVENUE_STRIPE_BASE_URL" default:"https://api.stripe.com"`
	RequestTimeout time.Duration `envconfig:"REVENUE_STRIPE_REQUEST_TIMEOUT" default:"15s"`
	// MaxNetworkRetries is handed to stripe-go, which retries connection
	// failures and 409/429/5xx responses with its own backoff.
	MaxNetworkRetries int64 `envconfig:"REVENUE_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

type PaddleConfig struct {
	BaseURL        string        `envconfig:"REVENUE_PADDLE_BASE_URL" default:"https://api.paddle.com"`
	RequestTimeout time.Duration `envconfig:"REVENUE_PADDLE_REQUEST_TIMEOUT" default:"15s"`
}

type CredentialsConfig struct {
	EncryptionKey string `envconfig:"REVENUE_CREDENTIALS_KEY" required:"true"`
}

// APIConfig configures the tenant-facing HTTP API.
type APIConfig struct {
	Port           string   `envconfig:"REVENUE_API_PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"REVENUE_API_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// Manual sync triggers per tenant per window. Needs Redis; zero disables.
	SyncTriggerLimit  int           `envconfig:"REVENUE_API_SYNC_TRIGGER_LIMIT" default:"6"`
	SyncTriggerWindow time.Duration `envconfig:"REVENUE_API_SYNC_TRIGGER_WINDOW" default:"1m"`
}

// JWTConfig verifies dashboard access tokens. The tenant comes from the
// token claims, never from the request.
type JWTConfig struct {
	Secret            string `envconfig:"REVENUE_JWT_SECRET"`
	Issuer            string `envconfig:"REVENUE_JWT_ISSUER" default:"revenue-engine"`
	ExpirationMinutes int    `envconfig:"REVENUE_JWT_EXPIRATION_MINUTES" default:"60"`
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
