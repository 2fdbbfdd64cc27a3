package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	CatalogBackendSQL      = "sql"
	CatalogBackendDocStore = "docstore"

	EnvAppEnv            = "PACKFINDERZ_APP_ENV"
	EnvPort              = "PACKFINDERZ_APP_PORT"
	EnvDBDSN             = "PACKFINDERZ_DB_DSN"
	EnvDBHost            = "PACKFINDERZ_DB_HOST"
	EnvDBUser            = "PACKFINDERZ_DB_USER"
	EnvDBName            = "PACKFINDERZ_DB_NAME"
	EnvRedisURL          = "PACKFINDERZ_REDIS_URL"
	EnvJWTSecret         = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIssuer         = "PACKFINDERZ_JWT_ISSUER"
	EnvJWTExpMins        = "PACKFINDERZ_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite         = "PACKFINDERZ_USE_SQLITE"
	EnvCatalogBackend    = "PACKFINDERZ_CATALOG_BACKEND"
	EnvDocStoreEndpoint  = "PACKFINDERZ_DOCSTORE_ENDPOINT"
	EnvDocStoreProject   = "PACKFINDERZ_DOCSTORE_PROJECT_ID"
	EnvDocStoreAPIKey    = "PACKFINDERZ_DOCSTORE_API_KEY"
	EnvDocStoreDatabase  = "PACKFINDERZ_DOCSTORE_DATABASE_ID"
	EnvImportBatchSize   = "PACKFINDERZ_IMPORT_BATCH_SIZE"
	EnvImportConcurrency = "PACKFINDERZ_IMPORT_CONCURRENCY"
	EnvImportBatchDelay  = "PACKFINDERZ_IMPORT_BATCH_DELAY"
	EnvGCPProjectID      = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvGCSBucket         = "PACKFINDERZ_GCS_BUCKET_NAME"
	EnvPubSubImportTopic = "PACKFINDERZ_PUBSUB_IMPORT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Catalog      CatalogConfig
	DocStore     DocStoreConfig
	Import       ImportConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Catalog.validate(cfg.DocStore); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"PACKFINDERZ_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"PACKFINDERZ_DB_SQLITE_PATH" default:"packfinderz-catalog.db"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`

	// PublishEvents toggles the import completion event on Pub/Sub.
	PublishEvents bool `envconfig:"PACKFINDERZ_PUBLISH_IMPORT_EVENTS" default:"false"`
}

// CatalogConfig selects which store the importer reads from and writes to.
type CatalogConfig struct {
	Backend string `envconfig:"PACKFINDERZ_CATALOG_BACKEND" default:"sql"`
}

// UsesDocStore reports whether the remote document API backs the catalog.
func (c CatalogConfig) UsesDocStore() bool {
	return strings.EqualFold(strings.TrimSpace(c.Backend), CatalogBackendDocStore)
}

func (c CatalogConfig) validate(doc DocStoreConfig) error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case CatalogBackendSQL, "":
		return nil
	case CatalogBackendDocStore:
		missing := []string{}
		if doc.Endpoint == "" {
			missing = append(missing, EnvDocStoreEndpoint)
		}
		if doc.ProjectID == "" {
			missing = append(missing, EnvDocStoreProject)
		}
		if doc.APIKey == "" {
			missing = append(missing, EnvDocStoreAPIKey)
		}
		if doc.DatabaseID == "" {
			missing = append(missing, EnvDocStoreDatabase)
		}
		if len(missing) > 0 {
			return fmt.Errorf("docstore backend requires %s", strings.Join(missing, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvCatalogBackend, c.Backend)
	}
}

// DocStoreConfig points at the backend-as-a-service document API.
type DocStoreConfig struct {
	Endpoint             string        `envconfig:"PACKFINDERZ_DOCSTORE_ENDPOINT"`
	ProjectID            string        `envconfig:"PACKFINDERZ_DOCSTORE_PROJECT_ID"`
	APIKey               string        `envconfig:"PACKFINDERZ_DOCSTORE_API_KEY"`
	DatabaseID           string        `envconfig:"PACKFINDERZ_DOCSTORE_DATABASE_ID"`
	ProductsCollection   string        `envconfig:"PACKFINDERZ_DOCSTORE_PRODUCTS_COLLECTION" default:"products"`
	VariantsCollection   string        `envconfig:"PACKFINDERZ_DOCSTORE_VARIANTS_COLLECTION" default:"product_variants"`
	CategoriesCollection string        `envconfig:"PACKFINDERZ_DOCSTORE_CATEGORIES_COLLECTION" default:"categories"`
	DuplicateIndexSource string        `envconfig:"PACKFINDERZ_DOCSTORE_DUPLICATE_INDEX_COLLECTION" default:"products"`
	PageSize             int           `envconfig:"PACKFINDERZ_DOCSTORE_PAGE_SIZE" default:"100"`
	RequestTimeout       time.Duration `envconfig:"PACKFINDERZ_DOCSTORE_TIMEOUT" default:"15s"`
}

// ImportConfig carries the batched execution knobs and session settings.
type ImportConfig struct {
	BatchSize          int           `envconfig:"PACKFINDERZ_IMPORT_BATCH_SIZE" default:"10"`
	BatchDelay         time.Duration `envconfig:"PACKFINDERZ_IMPORT_BATCH_DELAY" default:"1s"`
	Concurrency        int           `envconfig:"PACKFINDERZ_IMPORT_CONCURRENCY" default:"3"`
	ItemDelay          time.Duration `envconfig:"PACKFINDERZ_IMPORT_ITEM_DELAY" default:"100ms"`
	MaxRetries         int           `envconfig:"PACKFINDERZ_IMPORT_MAX_RETRIES" default:"4"`
	InitialBackoff     time.Duration `envconfig:"PACKFINDERZ_IMPORT_INITIAL_BACKOFF" default:"500ms"`
	BackoffMultiplier  float64       `envconfig:"PACKFINDERZ_IMPORT_BACKOFF_MULTIPLIER" default:"2"`
	MaxBackoff         time.Duration `envconfig:"PACKFINDERZ_IMPORT_MAX_BACKOFF" default:"30s"`
	SessionTTL         time.Duration `envconfig:"PACKFINDERZ_IMPORT_SESSION_TTL" default:"24h"`
	RunLockTTL         time.Duration `envconfig:"PACKFINDERZ_IMPORT_RUN_LOCK_TTL" default:"2h"`
	FailureDetailLimit int           `envconfig:"PACKFINDERZ_IMPORT_FAILURE_DETAIL_LIMIT" default:"5"`
	MaxUploadMB        int           `envconfig:"PACKFINDERZ_IMPORT_MAX_UPLOAD_MB" default:"20"`
}

// MaxUploadBytes converts the configured upload limit to bytes.
func (i ImportConfig) MaxUploadBytes() int64 {
	if i.MaxUploadMB <= 0 {
		return 20 << 20
	}
	return int64(i.MaxUploadMB) << 20
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"PACKFINDERZ_GCS_BUCKET_NAME"`
}

type PubSubConfig struct {
	ImportTopic string `envconfig:"PACKFINDERZ_PUBSUB_IMPORT_TOPIC" default:"catalog-import-events"`
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
