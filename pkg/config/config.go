package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Sentry    SentryConfig
	Tracing   TracingConfig
	Notify    NotifyConfig
	Secrets   SecretsConfig
	RateLimit RateLimitConfig
	Detection DetectionConfig
}

// RateLimitConfig tunes the Redis-backed API rate limiter
type RateLimitConfig struct {
	Enabled        bool
	WindowSeconds  int
	DefaultLimit   int
	DefaultBurst   int
	AnonymousLimit int
	AnonymousBurst int
	RedisPrefix    string
}

// Window returns the rate limit window as a duration
func (c *RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MaxConns      int
	MinConns      int
	MigrationsDir string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS event bus configuration
type NATSConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait int // seconds
	Enabled       bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in hours
}

// SentryConfig holds Sentry error reporting configuration
type SentryConfig struct {
	DSN     string
	Enabled bool
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Endpoint string // OTLP gRPC endpoint
	Enabled  bool
}

// NotifyConfig holds operator alert channel configuration
type NotifyConfig struct {
	NotificationsURL string // email/dashboard notifications collaborator
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioOpsNumber  string // comma-separated operator numbers
	FirebaseProject  string
	FirebaseCredFile string
	PushEnabled      bool
	ChatEnabled      bool
}

// SecretsConfig holds the secret backend selection
type SecretsConfig struct {
	Provider       string // "", "vault", "aws", "gcp", "kubernetes"
	VaultAddr      string
	VaultToken     string
	VaultMount     string
	AWSRegion      string
	GCPProject     string
	KubernetesPath string
}

// DetectionConfig is the versioned tuning object for the detection engine.
// Every collector, merger and abuse rule reads its thresholds from here so
// tuning never requires a code change.
type DetectionConfig struct {
	Version string

	// Cluster pipeline
	MergeStrategy       string  // "single-pass" or "union-find"
	PersistThreshold    float64 // clusters above this are persisted
	CaseThreshold       float64 // clusters above this open a farming case
	CriticalThreshold   float64 // case severity boundary
	LookbackDays        int
	ScanBatchSize       int
	SimilarityThreshold float64 // behavioral collector
	SyncThreshold       float64 // synchronized activity collector
	SyncWindow          time.Duration

	// Abuse rules: name -> {threshold, escalation multiple, window}
	Rules map[string]RuleConfig
}

// RuleConfig tunes a single abuse detection rule.
type RuleConfig struct {
	Threshold    int
	Escalation   int // count >= Threshold*Escalation bumps severity one tier
	Window       time.Duration
	BaseSeverity string // severity emitted at the base threshold
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "sentinel"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxConns:      getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:      getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			Token:         getEnv("NATS_TOKEN", ""),
			MaxReconnects: getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait: getEnvAsInt("NATS_RECONNECT_WAIT", 5),
			Enabled:       getEnvAsBool("NATS_ENABLED", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Expiration: getEnvAsInt("JWT_EXPIRATION", 24),
		},
		Sentry: SentryConfig{
			DSN:     getEnv("SENTRY_DSN", ""),
			Enabled: getEnvAsBool("SENTRY_ENABLED", false),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Enabled:  getEnvAsBool("TRACING_ENABLED", false),
		},
		Notify: NotifyConfig{
			NotificationsURL: getEnv("NOTIFICATIONS_URL", ""),
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:       getEnv("TWILIO_FROM_NUMBER", ""),
			TwilioOpsNumber:  getEnv("TWILIO_OPS_NUMBERS", ""),
			FirebaseProject:  getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseCredFile: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			PushEnabled:      getEnvAsBool("PUSH_ALERTS_ENABLED", false),
			ChatEnabled:      getEnvAsBool("CHAT_ALERTS_ENABLED", false),
		},
		Secrets: SecretsConfig{
			Provider:       getEnv("SECRETS_PROVIDER", ""),
			VaultAddr:      getEnv("VAULT_ADDR", ""),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultMount:     getEnv("VAULT_MOUNT", "secret"),
			AWSRegion:      getEnv("AWS_REGION", ""),
			GCPProject:     getEnv("GCP_PROJECT_ID", ""),
			KubernetesPath: getEnv("SECRETS_KUBERNETES_PATH", "/var/run/secrets/sentinel"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_BURST", 20),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANONYMOUS", 30),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANONYMOUS_BURST", 5),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "rl"),
		},
		Detection: loadDetectionConfig(),
	}

	return cfg, nil
}

// loadDetectionConfig builds the versioned detection tuning object.
// Defaults mirror the production rule set; every knob has an env override.
func loadDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Version:             getEnv("DETECTION_CONFIG_VERSION", "v1"),
		MergeStrategy:       getEnv("DETECTION_MERGE_STRATEGY", "single-pass"),
		PersistThreshold:    getEnvAsFloat("DETECTION_PERSIST_THRESHOLD", 0.7),
		CaseThreshold:       getEnvAsFloat("DETECTION_CASE_THRESHOLD", 0.85),
		CriticalThreshold:   getEnvAsFloat("DETECTION_CRITICAL_THRESHOLD", 0.95),
		LookbackDays:        getEnvAsInt("DETECTION_LOOKBACK_DAYS", 30),
		ScanBatchSize:       getEnvAsInt("DETECTION_SCAN_BATCH_SIZE", 500),
		SimilarityThreshold: getEnvAsFloat("DETECTION_SIMILARITY_THRESHOLD", 0.7),
		SyncThreshold:       getEnvAsFloat("DETECTION_SYNC_THRESHOLD", 0.6),
		SyncWindow:          getEnvAsDuration("DETECTION_SYNC_WINDOW", 5*time.Minute),
		Rules: map[string]RuleConfig{
			"refund_loop":          loadRule("REFUND_LOOP", 3, 2, 7*24*time.Hour, "high"),
			"panic_spam":           loadRule("PANIC_SPAM", 5, 2, 24*time.Hour, "high"),
			"fake_mismatch":        loadRule("FAKE_MISMATCH", 3, 2, 30*24*time.Hour, "high"),
			"bot_velocity":         loadRule("BOT_VELOCITY", 30, 2, time.Hour, "high"),
			"prompt_abuse":         loadRule("PROMPT_ABUSE", 10, 3, 24*time.Hour, "medium"),
			"cancellation_farming": loadRule("CANCELLATION_FARMING", 8, 2, 7*24*time.Hour, "high"),
			"token_drain":          loadRule("TOKEN_DRAIN", 20, 2, 24*time.Hour, "high"),
		},
	}
}

func loadRule(prefix string, threshold, escalation int, window time.Duration, baseSeverity string) RuleConfig {
	return RuleConfig{
		Threshold:    getEnvAsInt("RULE_"+prefix+"_THRESHOLD", threshold),
		Escalation:   getEnvAsInt("RULE_"+prefix+"_ESCALATION", escalation),
		Window:       getEnvAsDuration("RULE_"+prefix+"_WINDOW", window),
		BaseSeverity: getEnv("RULE_"+prefix+"_BASE_SEVERITY", baseSeverity),
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// OpsNumbers splits the comma-separated operator phone number list.
func (c *NotifyConfig) OpsNumbers() []string {
	if c.TwilioOpsNumber == "" {
		return nil
	}
	parts := strings.Split(c.TwilioOpsNumber, ",")
	numbers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			numbers = append(numbers, trimmed)
		}
	}
	return numbers
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
