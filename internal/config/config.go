package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Messenger / Meta Graph API
	PageAccessToken string
	VerifyToken     string
	AppSecret       string
	GraphAPIBase    string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	ClinicProfilePath  string

	TurnTimeout         time.Duration
	AvailabilityTimeout time.Duration
	NotifyTimeout       time.Duration
	ActorLockTTL        time.Duration
	DispatchConcurrency int
	WebhookRateLimit    float64
	WebhookRateBurst    int
	DedupeTTL           time.Duration

	// Staff alert email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	StaffAlertEmails  []string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ProofBucket         string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PageAccessToken: getEnv("PAGE_ACCESS_TOKEN", ""),
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		AppSecret:       getEnv("APP_SECRET", ""),
		GraphAPIBase:    getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v18.0"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ClinicProfilePath:  getEnv("CLINIC_PROFILE_PATH", ""),

		TurnTimeout:         getEnvAsDuration("TURN_TIMEOUT", 20*time.Second),
		AvailabilityTimeout: getEnvAsDuration("AVAILABILITY_TIMEOUT", 5*time.Second),
		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		ActorLockTTL:        getEnvAsDuration("ACTOR_LOCK_TTL", 30*time.Second),
		DispatchConcurrency: getEnvAsInt("DISPATCH_CONCURRENCY", 8),
		WebhookRateLimit:    getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:    getEnvAsInt("WEBHOOK_RATE_BURST", 40),
		DedupeTTL:           getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Booking"),
		StaffAlertEmails:  getEnvAsList("STAFF_ALERT_EMAILS"),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ProofBucket:         getEnv("PROOF_BUCKET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
