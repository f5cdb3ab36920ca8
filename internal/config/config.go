package config

import "time"

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

var globalConfig *Config

func Global() *Config {
	return globalConfig
}

func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

type Config struct {
	Env       string `env:"ENV" env-required:"true"`
	HTTP      HTTPConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Security  SecurityConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
	Notify    NotifyConfig
}

type HTTPConfig struct {
	Host            string        `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type PostgresConfig struct {
	Host           string        `env:"POSTGRES_HOST" env-required:"true"`
	Port           int           `env:"POSTGRES_PORT" env-default:"5432"`
	Username       string        `env:"POSTGRES_USERNAME" env-required:"true"`
	Password       string        `env:"POSTGRES_PASSWORD" env-required:"true"`
	Database       string        `env:"POSTGRES_DATABASE" env-required:"true"`
	SSLMode        string        `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" env-default:"10s"`
	PingTimeout    time.Duration `env:"POSTGRES_PING_TIMEOUT" env-default:"10s"`
	MigrationsPath string        `env:"POSTGRES_MIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig is optional. Without an address the rate limiter keeps its
// windows in process memory.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" env-default:"0"`
	PingTimeout time.Duration `env:"REDIS_PING_TIMEOUT" env-default:"5s"`
}

type JWTConfig struct {
	Issuer         string        `env:"JWT_ISSUER" env-default:"go-task-tracker"`
	SigningKey     string        `env:"JWT_SIGNING_KEY" env-required:"true"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TOKEN_TTL" env-default:"15m"`
}

type SecurityConfig struct {
	LockoutThreshold int           `env:"SECURITY_LOCKOUT_THRESHOLD" env-default:"5"`
	LockoutDuration  time.Duration `env:"SECURITY_LOCKOUT_DURATION" env-default:"30m"`
	SessionTimeout   time.Duration `env:"SECURITY_SESSION_TIMEOUT" env-default:"8h"`
}

type AuditConfig struct {
	Retention       time.Duration `env:"AUDIT_RETENTION" env-default:"2160h"`
	CleanupInterval time.Duration `env:"AUDIT_CLEANUP_INTERVAL" env-default:"24h"`
}

type RateLimitConfig struct {
	PasswordChangeLimit  int           `env:"RATE_LIMIT_PASSWORD_CHANGE_LIMIT" env-default:"5"`
	PasswordChangeWindow time.Duration `env:"RATE_LIMIT_PASSWORD_CHANGE_WINDOW" env-default:"15m"`
}

type NotifyConfig struct {
	Workers   int `env:"NOTIFY_WORKERS" env-default:"4"`
	QueueSize int `env:"NOTIFY_QUEUE_SIZE" env-default:"256"`
}
