// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxSessionDuration is the upper bound for any attendance session window, default or per-request override.
const MaxSessionDuration = 8 * time.Hour

// ValidSessionDuration reports whether d can be a session window. Windows are encoded with second precision,
// so fractional seconds would make the stored and encoded expiry differ.
func ValidSessionDuration(d time.Duration) bool {
	return d > 0 && d <= MaxSessionDuration && d%time.Second == 0
}

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP/WebSocket API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// AllowedOrigins is a comma-separated list of browser origins allowed to open the live WebSocket.
	// Empty allows any origin.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	// GRPCAddr is the address the gRPC health listener binds; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for the session store. Empty selects the in-memory store (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// MongoURI and MongoDatabase locate the course directory maintained by the course-management service.
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	// CourseCacheTTL is how long course lookups are cached (e.g. "30s"). "0" disables the cache.
	CourseCacheTTL string `mapstructure:"COURSE_CACHE_TTL"`

	// RedisAddr enables the cross-instance live-update relay when set (e.g. "localhost:6379").
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// KafkaBrokers is a comma-separated broker list; when set, attendance events are appended to KafkaTopic.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group used by cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where cmd/worker pushes attendance events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// JWTPublicKey is the PEM-encoded public key (or path) used to verify bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is only needed by cmd/seed to mint development tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`

	// SessionDuration is the default QR validity window (e.g. "1h").
	SessionDuration string `mapstructure:"SESSION_DURATION"`
	// ReferenceTimezone is the IANA name or fixed offset label all instants are expressed in. Default "UTC+8".
	ReferenceTimezone string `mapstructure:"REFERENCE_TIMEZONE"`
	// QRSigningSecret enables HMAC-signed QR payloads when non-empty.
	QRSigningSecret string `mapstructure:"QR_SIGNING_SECRET"`
	// AuthzPolicyFile is an optional Rego file replacing the built-in course authorization policy.
	AuthzPolicyFile string `mapstructure:"AUTHZ_POLICY_FILE"`

	// OTLPEndpoint is the OTLP gRPC collector; empty yields no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogPretty switches to the human-readable console writer.
	LogPretty bool `mapstructure:"LOG_PRETTY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "cheqr")
	v.SetDefault("COURSE_CACHE_TTL", "30s")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "attendance-events")
	v.SetDefault("KAFKA_GROUP_ID", "attendance-event-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "cheqr-auth")
	v.SetDefault("JWT_AUDIENCE", "cheqr-api")
	v.SetDefault("JWT_ACCESS_TTL", "12h")
	v.SetDefault("SESSION_DURATION", "1h")
	v.SetDefault("REFERENCE_TIMEZONE", "UTC+8")
	v.SetDefault("QR_SIGNING_SECRET", "")
	v.SetDefault("AUTHZ_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}
	d, err := time.ParseDuration(cfg.SessionDuration)
	if err != nil || !ValidSessionDuration(d) {
		return nil, errors.New("config: SESSION_DURATION must be a positive whole-second duration no longer than 8h")
	}

	return &cfg, nil
}

// DefaultSessionDuration parses SessionDuration. Returns 1h if unset or invalid.
func (c *Config) DefaultSessionDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionDuration)
	if err != nil || !ValidSessionDuration(d) {
		return time.Hour
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 12h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// CourseCacheDuration parses CourseCacheTTL. Zero means caching is disabled.
func (c *Config) CourseCacheDuration() time.Duration {
	d, err := time.ParseDuration(c.CourseCacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// AllowedOriginsList returns the WebSocket origin allow-list.
func (c *Config) AllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AllowedOrigins)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
