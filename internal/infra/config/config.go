package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "IDENTITY"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
	Mail      MailSettings      `mapstructure:"mail"`
	Challenge ChallengeSettings `mapstructure:"challenge"`
	Login     LoginSettings     `mapstructure:"login"`
	Paging    PagingSettings    `mapstructure:"paging"`
}

type AppSettings struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// PublicURL prefixes links placed in outbound mail.
	PublicURL string `mapstructure:"public_url"`
	// Storage selects the query facade: "postgres" or "memory".
	Storage        string   `mapstructure:"storage"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the rate limit store. An empty host selects the in-process limiter.
type RedisSettings struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	DB         int           `mapstructure:"db"`
	Password   string        `mapstructure:"password"`
	TLSEnabled bool          `mapstructure:"tls_enabled"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	KeyTTL     time.Duration `mapstructure:"key_ttl"`
}

// KafkaSettings configures the audit producer. No brokers disables publishing.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory   string        `mapstructure:"key_directory"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures the per-address and per-owner limiter windows.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	EmailChallengeMaxPerHour int           `mapstructure:"email_challenge_max_per_hour"`
	HTTPMaxRequests          int           `mapstructure:"http_max_requests"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type PasswordSettings struct {
	MinLength  int `mapstructure:"min_length"`
	MinClasses int `mapstructure:"min_classes"`
	MinScore   int `mapstructure:"min_score"`
}

// MailSettings configures outbound SMTP. An empty host logs mail instead of sending it.
type MailSettings struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	FromName   string        `mapstructure:"from_name"`
	Encryption string        `mapstructure:"encryption"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ChallengeSettings struct {
	EmailTTL         time.Duration `mapstructure:"email_ttl"`
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	// PasswordResetPage is the externally hosted form that posts
	// user.password.reset.confirm: a path under app.public_url or an absolute URL.
	PasswordResetPage string `mapstructure:"password_reset_page"`
}

type LoginSettings struct {
	Delay        time.Duration `mapstructure:"delay"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

type PagingSettings struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

var bindings = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.log_level",
	"app.public_url",
	"app.storage",
	"app.allowed_origins",
	"grpc.enabled",
	"grpc.host",
	"grpc.port",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"redis.key_ttl",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"jwt.key_directory",
	"jwt.issuer",
	"jwt.access_token_ttl",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"rate_limit.password_reset_max_attempts",
	"rate_limit.email_challenge_max_per_hour",
	"rate_limit.http_max_requests",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password.min_length",
	"password.min_classes",
	"password.min_score",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",
	"mail.from_name",
	"mail.encryption",
	"mail.timeout",
	"challenge.email_ttl",
	"challenge.password_reset_ttl",
	"challenge.password_reset_page",
	"login.delay",
	"login.history_limit",
	"paging.idle_timeout",
}

// Load reads defaults, an optional config file, then environment overrides
// (IDENTITY_POSTGRES_HOST or POSTGRES_HOST).
func Load(file string) (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if err := bindEnvs(v, bindings); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.App.Storage {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("app.storage must be postgres or memory, got %q", c.App.Storage))
	}
	if c.App.Env == "production" && c.App.Storage == "memory" {
		errs = append(errs, errors.New("memory storage is not allowed in production"))
	}
	if c.Challenge.EmailTTL <= 0 || c.Challenge.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("challenge ttls must be positive"))
	}
	if c.Login.HistoryLimit <= 0 {
		errs = append(errs, errors.New("login.history_limit must be positive"))
	}
	if c.Login.Delay < 0 {
		errs = append(errs, errors.New("login.delay must not be negative"))
	}
	if c.JWT.Issuer == "" {
		errs = append(errs, errors.New("jwt.issuer is required"))
	}
	return errors.Join(errs...)
}

// DSN renders a pgx connection string.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-server")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.public_url", "http://localhost:8080")
	v.SetDefault("app.storage", "postgres")
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "identity:rl")
	v.SetDefault("redis.key_ttl", "2h")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "identity")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "")
	v.SetDefault("jwt.issuer", "identity-server")
	v.SetDefault("jwt.access_token_ttl", "12h")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "identity-server")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.email_challenge_max_per_hour", 5)
	v.SetDefault("rate_limit.http_max_requests", 300)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 10)
	v.SetDefault("password.min_classes", 3)
	v.SetDefault("password.min_score", 3)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "noreply@localhost")
	v.SetDefault("mail.from_name", "Identity Server")
	v.SetDefault("mail.encryption", "STARTTLS")
	v.SetDefault("mail.timeout", "15s")

	v.SetDefault("challenge.email_ttl", "24h")
	v.SetDefault("challenge.password_reset_ttl", "1h")
	v.SetDefault("challenge.password_reset_page", "/password/reset")

	v.SetDefault("login.delay", "1s")
	v.SetDefault("login.history_limit", 100)

	v.SetDefault("paging.idle_timeout", "30m")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
