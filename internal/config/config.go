package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	Meeting                   MeetingConfig
	Scheduling                SchedulingConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	AppURL                    string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// MeetingConfig holds the third-party video-meeting provider configuration.
// Provisioning is gated on a per-doctor OAuth grant with this provider.
type MeetingConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
	CallbackURL  string
}

// SchedulingConfig holds the appointment engine's timing knobs.
type SchedulingConfig struct {
	CancelWindowHours     int
	JoinLeadMinutes       int
	AuthCooldownSeconds   int
	PendingAuthTTLMinutes int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load database configuration
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "peditrack"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	meetingConfig := MeetingConfig{
		Provider:     getEnv("MEETING_PROVIDER", "meetlink"),
		ClientID:     getEnv("MEETING_CLIENT_ID", ""),
		ClientSecret: getEnv("MEETING_CLIENT_SECRET", ""),
		AuthorizeURL: getEnv("MEETING_AUTHORIZE_URL", "https://auth.meetlink.example/oauth/authorize"),
		TokenURL:     getEnv("MEETING_TOKEN_URL", "https://auth.meetlink.example/oauth/token"),
		APIBaseURL:   getEnv("MEETING_API_BASE_URL", "https://api.meetlink.example"),
		CallbackURL:  getEnv("MEETING_CALLBACK_URL", "http://localhost:3001/api/v1/meetings/auth/callback"),
	}

	cancelWindowHours, err := strconv.Atoi(getEnv("CANCEL_WINDOW_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid CANCEL_WINDOW_HOURS: %w", err)
	}

	joinLeadMinutes, err := strconv.Atoi(getEnv("JOIN_LEAD_MINUTES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid JOIN_LEAD_MINUTES: %w", err)
	}

	authCooldownSeconds, err := strconv.Atoi(getEnv("AUTH_COOLDOWN_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_COOLDOWN_SECONDS: %w", err)
	}

	pendingAuthTTLMinutes, err := strconv.Atoi(getEnv("PENDING_AUTH_TTL_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_AUTH_TTL_MINUTES: %w", err)
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	// Return complete configuration
	return &Config{
		Port:             getEnv("PORT", "3001"),
		Origin:           getEnv("ORIGIN", "http://localhost:4200"),
		Environment:      getEnv("APP_ENV", "development"),
		JWTSecret:        getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:         dbConfig,
		Meeting:          meetingConfig,
		Scheduling: SchedulingConfig{
			CancelWindowHours:     cancelWindowHours,
			JoinLeadMinutes:       joinLeadMinutes,
			AuthCooldownSeconds:   authCooldownSeconds,
			PendingAuthTTLMinutes: pendingAuthTTLMinutes,
		},
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		AppURL:                    getEnv("APP_URL", "http://localhost:3001"),
	}, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
