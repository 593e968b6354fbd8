package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "COMPLIANCE"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	HTTP      HTTPSettings      `mapstructure:"http"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Crypto    CryptoSettings    `mapstructure:"crypto"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Session   SessionSettings   `mapstructure:"session"`
	Password  PasswordSettings  `mapstructure:"password"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Consent   ConsentSettings   `mapstructure:"consent"`
	Privacy   PrivacySettings   `mapstructure:"privacy"`
	Retention RetentionSettings `mapstructure:"retention"`
	Audit     AuditSettings     `mapstructure:"audit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type HTTPSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCSettings struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection, TLS and key namespaces.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the Kafka producer. An empty broker list selects the logging stub.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	KeyDirectory   string        `mapstructure:"key_directory"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       []string      `mapstructure:"audience"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// CryptoSettings configures field-level encryption.
type CryptoSettings struct {
	EncryptionSecret string `mapstructure:"encryption_secret"`
	Context          string `mapstructure:"context"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type SessionSettings struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	VerificationTTL  time.Duration `mapstructure:"verification_ttl"`
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	PasswordHistory  int           `mapstructure:"password_history"`
}

// PasswordSettings tunes the password rules applied at registration and reset.
type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MaxLength           int `mapstructure:"max_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrength         int `mapstructure:"min_strength"`
	MinPersonalFragment int `mapstructure:"min_personal_fragment"`
}

type LockoutSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

// RateLimitSettings configures sliding windows on identity endpoints (per IP) and on
// privacy request submission and consent changes (per user).
type RateLimitSettings struct {
	WindowDuration            time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts          int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts       int           `mapstructure:"register_max_attempts"`
	PasswordResetMaxAttempts  int           `mapstructure:"password_reset_max_attempts"`
	PrivacyRequestMaxAttempts int           `mapstructure:"privacy_request_max_attempts"`
	ConsentChangeMaxAttempts  int           `mapstructure:"consent_change_max_attempts"`
}

type ConsentSettings struct {
	ValidityDays   int           `mapstructure:"validity_days"`
	PolicyVersion  string        `mapstructure:"policy_version"`
	RestrictionTTL time.Duration `mapstructure:"restriction_ttl"`
}

type PrivacySettings struct {
	MaxPendingAge       time.Duration `mapstructure:"max_pending_age"`
	DefaultJurisdiction string        `mapstructure:"default_jurisdiction"`
	ProcessingTimeout   time.Duration `mapstructure:"processing_timeout"`
}

type RetentionSettings struct {
	Schedule               string         `mapstructure:"schedule"`
	SessionCleanupSchedule string         `mapstructure:"session_cleanup_schedule"`
	BatchSize              int            `mapstructure:"batch_size"`
	Policies               []PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig is the configured form of a retention policy.
type PolicyConfig struct {
	DataType               string   `mapstructure:"data_type"`
	RetentionDays          int      `mapstructure:"retention_days"`
	AnonymizationDelayDays int      `mapstructure:"anonymization_delay_days"`
	DeletionMethod         string   `mapstructure:"deletion_method"`
	LegalBasis             string   `mapstructure:"legal_basis"`
	Exceptions             []string `mapstructure:"exceptions"`
}

type AuditSettings struct {
	RecentBufferSize            int           `mapstructure:"recent_buffer_size"`
	FailedLoginThreshold        int           `mapstructure:"failed_login_threshold"`
	FailedLoginWindow           time.Duration `mapstructure:"failed_login_window"`
	DataAccessThreshold         int           `mapstructure:"data_access_threshold"`
	DataAccessWindow            time.Duration `mapstructure:"data_access_window"`
	MonitorSchedule             string        `mapstructure:"monitor_schedule"`
	PendingRequestSchedule      string        `mapstructure:"pending_request_schedule"`
	ReportSchedule              string        `mapstructure:"report_schedule"`
	ReportPeriod                time.Duration `mapstructure:"report_period"`
	HealthWindow                time.Duration `mapstructure:"health_window"`
	HealthAlertThreshold        int           `mapstructure:"health_alert_threshold"`
	AlertNotificationsPerMinute float64       `mapstructure:"alert_notifications_per_minute"`
	AlertNotificationBurst      int           `mapstructure:"alert_notification_burst"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// ErrMissingSecret is returned when a required secret is absent at startup.
var ErrMissingSecret = errors.New("config: required secret missing")

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if path := os.Getenv(envPrefix + "_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"http.host",
		"http.port",
		"http.allowed_origins",
		"http.shutdown_timeout",
		"grpc.host",
		"grpc.port",
		"grpc.enabled",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
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
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.key_directory",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_token_ttl",
		"crypto.encryption_secret",
		"crypto.context",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"session.timeout",
		"session.verification_ttl",
		"session.password_reset_ttl",
		"session.password_history",
		"password.min_length",
		"password.max_length",
		"password.min_character_classes",
		"password.min_strength",
		"password.min_personal_fragment",
		"lockout.max_attempts",
		"lockout.window",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.privacy_request_max_attempts",
		"rate_limit.consent_change_max_attempts",
		"consent.validity_days",
		"consent.policy_version",
		"consent.restriction_ttl",
		"privacy.max_pending_age",
		"privacy.default_jurisdiction",
		"privacy.processing_timeout",
		"retention.schedule",
		"retention.session_cleanup_schedule",
		"retention.batch_size",
		"audit.recent_buffer_size",
		"audit.failed_login_threshold",
		"audit.failed_login_window",
		"audit.data_access_threshold",
		"audit.data_access_window",
		"audit.monitor_schedule",
		"audit.pending_request_schedule",
		"audit.report_schedule",
		"audit.report_period",
		"audit.health_window",
		"audit.health_alert_threshold",
		"audit.alert_notifications_per_minute",
		"audit.alert_notification_burst",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
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

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Crypto.EncryptionSecret) == "" {
		return fmt.Errorf("%w: crypto.encryption_secret", ErrMissingSecret)
	}
	if len(c.Crypto.EncryptionSecret) < 32 {
		return fmt.Errorf("crypto.encryption_secret must be at least 32 characters")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive")
	}
	if c.Password.MinLength <= 0 || (c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength) {
		return fmt.Errorf("password.min_length must be positive and not exceed password.max_length")
	}
	if c.Password.MinStrength > 4 {
		return fmt.Errorf("password.min_strength must be between 0 and 4")
	}
	if c.Lockout.MaxAttempts <= 0 || c.Lockout.Window <= 0 {
		return fmt.Errorf("lockout.max_attempts and lockout.window must be positive")
	}
	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("retention.batch_size must be positive")
	}
	if c.Consent.ValidityDays <= 0 {
		return fmt.Errorf("consent.validity_days must be positive")
	}
	seen := make(map[string]struct{}, len(c.Retention.Policies))
	for _, p := range c.Retention.Policies {
		if _, dup := seen[p.DataType]; dup {
			return fmt.Errorf("retention policy %s configured twice", p.DataType)
		}
		seen[p.DataType] = struct{}{}
	}
	return nil
}

// ConsentValidity converts the configured day count to a duration.
func (c ConsentSettings) ConsentValidity() time.Duration {
	return time.Duration(c.ValidityDays) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "compliance-core")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.shutdown_timeout", "15s")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.enabled", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "compliance")
	v.SetDefault("postgres.password", "compliance_password")
	v.SetDefault("postgres.database", "compliance")
	v.SetDefault("postgres.schema", "compliance")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "compliance")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "compliance")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.issuer", "compliance-core")
	v.SetDefault("jwt.audience", []string{"compliance-clients"})
	v.SetDefault("jwt.access_token_ttl", "15m")

	v.SetDefault("crypto.context", "compliance-core:field-encryption:v1")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("session.timeout", "24h")
	v.SetDefault("session.verification_ttl", "48h")
	v.SetDefault("session.password_reset_ttl", "1h")
	v.SetDefault("session.password_history", 5)

	v.SetDefault("password.min_length", 10)
	v.SetDefault("password.max_length", 128)
	v.SetDefault("password.min_character_classes", 3)
	v.SetDefault("password.min_strength", 3)
	v.SetDefault("password.min_personal_fragment", 4)

	v.SetDefault("lockout.max_attempts", 5)
	v.SetDefault("lockout.window", "15m")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.privacy_request_max_attempts", 5)
	v.SetDefault("rate_limit.consent_change_max_attempts", 20)

	v.SetDefault("consent.validity_days", 365)
	v.SetDefault("consent.policy_version", "1.0")
	v.SetDefault("consent.restriction_ttl", "720h")

	v.SetDefault("privacy.max_pending_age", "720h")
	v.SetDefault("privacy.default_jurisdiction", "DEFAULT")
	v.SetDefault("privacy.processing_timeout", "2m")

	v.SetDefault("retention.schedule", "0 2 * * *")
	v.SetDefault("retention.session_cleanup_schedule", "@every 1h")
	v.SetDefault("retention.batch_size", 500)
	v.SetDefault("retention.policies", []map[string]any{
		{"data_type": "assessment_responses", "retention_days": 730, "anonymization_delay_days": 30, "deletion_method": "anonymize", "legal_basis": "legitimate_interest", "exceptions": []string{"legal_hold"}},
		{"data_type": "user_sessions", "retention_days": 90, "deletion_method": "hard_delete", "legal_basis": "security"},
		{"data_type": "audit_logs", "retention_days": 2555, "deletion_method": "soft_delete", "legal_basis": "legal_obligation", "exceptions": []string{"security_incident", "legal_hold"}},
		{"data_type": "privacy_requests", "retention_days": 1095, "deletion_method": "anonymize", "legal_basis": "legal_obligation"},
		{"data_type": "inactive_users", "retention_days": 1095, "anonymization_delay_days": 30, "deletion_method": "anonymize", "legal_basis": "consent", "exceptions": []string{"legal_hold"}},
	})

	v.SetDefault("audit.recent_buffer_size", 1000)
	v.SetDefault("audit.failed_login_threshold", 10)
	v.SetDefault("audit.failed_login_window", "15m")
	v.SetDefault("audit.data_access_threshold", 100)
	v.SetDefault("audit.data_access_window", "1h")
	v.SetDefault("audit.monitor_schedule", "@every 5m")
	v.SetDefault("audit.pending_request_schedule", "@every 1h")
	v.SetDefault("audit.report_schedule", "0 3 * * 1")
	v.SetDefault("audit.report_period", "168h")
	v.SetDefault("audit.health_window", "24h")
	v.SetDefault("audit.health_alert_threshold", 10)
	v.SetDefault("audit.alert_notifications_per_minute", 6.0)
	v.SetDefault("audit.alert_notification_burst", 3)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "compliance-core")
	v.SetDefault("telemetry.sampling_rate", 1.0)
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
