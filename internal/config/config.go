package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	AdminJWTSecret string

	RedisAddr     string
	RedisPassword string

	// Bilan policy
	BilanMaxDays  int
	BilanKeywords []string

	// Doctolib sync (browser sidecar)
	DoctolibSidecarURL string
	DoctolibEmail      string
	DoctolibPassword   string
	AutoCancelEnabled  bool
	SyncWindowDays     int
	SyncInterval       time.Duration

	// Notifications
	NotifyProcessImmediately bool
	NotifyWorkers            int
	ReminderLeadDays         int

	// SendGrid email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Twilio SMS
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Firebase push
	FirebaseCredentialsPath string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BilanMaxDays:  getEnvAsInt("BILAN_MAX_DAYS", 60),
		BilanKeywords: getEnvAsList("BILAN_KEYWORDS", nil),

		DoctolibSidecarURL: getEnv("DOCTOLIB_SIDECAR_URL", ""),
		DoctolibEmail:      getEnv("DOCTOLIB_EMAIL", ""),
		DoctolibPassword:   getEnv("DOCTOLIB_PASSWORD", ""),
		AutoCancelEnabled:  getEnvAsBool("AUTO_CANCEL_ENABLED", false),
		SyncWindowDays:     getEnvAsInt("SYNC_WINDOW_DAYS", 30),
		SyncInterval:       getEnvAsDuration("SYNC_INTERVAL", 60*time.Minute),

		NotifyProcessImmediately: getEnvAsBool("NOTIFY_PROCESS_IMMEDIATELY", false),
		NotifyWorkers:            getEnvAsInt("NOTIFY_WORKERS", 4),
		ReminderLeadDays:         getEnvAsInt("REMINDER_LEAD_DAYS", 1),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "KinéBilan"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
