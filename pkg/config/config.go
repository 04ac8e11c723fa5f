package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every configuration variable.
const EnvPrefix = "nexchakra"

// Environment variable names referenced outside envconfig tags.
const (
	EnvAppEnv    = "NEXCHAKRA_APP_ENV"
	EnvPort      = "NEXCHAKRA_APP_PORT"
	EnvDBDSN     = "NEXCHAKRA_DB_DSN"
	EnvDBHost    = "NEXCHAKRA_DB_HOST"
	EnvDBUser    = "NEXCHAKRA_DB_USER"
	EnvDBName    = "NEXCHAKRA_DB_NAME"
	EnvRedisURL  = "NEXCHAKRA_REDIS_URL"
	EnvJWTSecret = "NEXCHAKRA_JWT_SECRET"
	EnvJWTIssuer = "NEXCHAKRA_JWT_ISSUER"
)

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Checkout      CheckoutConfig
	Events        EventsConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEXCHAKRA_APP_ENV" required:"true"`
	Port         string `envconfig:"NEXCHAKRA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NEXCHAKRA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEXCHAKRA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"NEXCHAKRA_DB_DSN"`
	Driver string `envconfig:"NEXCHAKRA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEXCHAKRA_DB_HOST"`
	LegacyPort     int    `envconfig:"NEXCHAKRA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEXCHAKRA_DB_USER"`
	LegacyPassword string `envconfig:"NEXCHAKRA_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEXCHAKRA_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEXCHAKRA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEXCHAKRA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEXCHAKRA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEXCHAKRA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEXCHAKRA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NEXCHAKRA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NEXCHAKRA_REDIS_ADDR"`
	Password     string        `envconfig:"NEXCHAKRA_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEXCHAKRA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEXCHAKRA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEXCHAKRA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEXCHAKRA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEXCHAKRA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEXCHAKRA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NEXCHAKRA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEXCHAKRA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEXCHAKRA_JWT_EXPIRATION_MINUTES" default:"60"`
	SessionTTLMinutes int    `envconfig:"NEXCHAKRA_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the server-side session TTL configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"NEXCHAKRA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"NEXCHAKRA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"NEXCHAKRA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"NEXCHAKRA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"NEXCHAKRA_ARGON_KEY_LEN" default:"32"`
}

type CheckoutConfig struct {
	LockTimeout    time.Duration `envconfig:"NEXCHAKRA_CHECKOUT_LOCK_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"NEXCHAKRA_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
}

type EventsConfig struct {
	ObserverBuffer int           `envconfig:"NEXCHAKRA_EVENTS_OBSERVER_BUFFER" default:"32"`
	WriteTimeout   time.Duration `envconfig:"NEXCHAKRA_EVENTS_WRITE_TIMEOUT" default:"5s"`
	PingInterval   time.Duration `envconfig:"NEXCHAKRA_EVENTS_PING_INTERVAL" default:"30s"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"NEXCHAKRA_AUTH_RL_LOGIN_WINDOW" default:"5m"`
	LoginIPLimit       int           `envconfig:"NEXCHAKRA_AUTH_RL_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"NEXCHAKRA_AUTH_RL_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"NEXCHAKRA_AUTH_RL_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"NEXCHAKRA_AUTH_RL_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"NEXCHAKRA_AUTH_RL_REGISTER_EMAIL_LIMIT" default:"3"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NEXCHAKRA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NEXCHAKRA_AUTO_MIGRATE" default:"false"`
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
