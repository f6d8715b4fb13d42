package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Provider ProviderConfig
}

// ProviderConfig carries the payment-provider credentials and endpoints.
// The API key and webhook signing secret are validated at startup; a
// missing value is a fatal configuration error, not a per-request one.
type ProviderConfig struct {
	APIKey               string
	APIBaseURL           string
	WebhookSigningSecret string
	OnboardingReturnURL  string
	OnboardingRefreshURL string
	DefaultCountry       string
	CallTimeout          time.Duration
	WebhookTolerance     time.Duration
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Invoke(func(cfg Config) error {
		return cfg.Validate()
	}),
)

// Load loads configuration from environment variables and a local .env file.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_SERVICE", "payconnect")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "postgres")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 50)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 3600)
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", 600)

	v.SetDefault("PROVIDER_API_BASE_URL", "https://api.stripe.com")
	v.SetDefault("PROVIDER_DEFAULT_COUNTRY", "US")
	v.SetDefault("PROVIDER_CALL_TIMEOUT_SECONDS", 10)
	v.SetDefault("PROVIDER_WEBHOOK_TOLERANCE_SECONDS", 300)

	return Config{
		AppName:           v.GetString("APP_SERVICE"),
		AppVersion:        v.GetString("APP_VERSION"),
		Environment:       v.GetString("ENVIRONMENT"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		OTLPEndpoint:      v.GetString("OTLP_ENDPOINT"),
		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),
		Provider: ProviderConfig{
			APIKey:               strings.TrimSpace(v.GetString("PROVIDER_API_KEY")),
			APIBaseURL:           strings.TrimRight(strings.TrimSpace(v.GetString("PROVIDER_API_BASE_URL")), "/"),
			WebhookSigningSecret: strings.TrimSpace(v.GetString("PROVIDER_WEBHOOK_SECRET")),
			OnboardingReturnURL:  strings.TrimSpace(v.GetString("PROVIDER_ONBOARDING_RETURN_URL")),
			OnboardingRefreshURL: strings.TrimSpace(v.GetString("PROVIDER_ONBOARDING_REFRESH_URL")),
			DefaultCountry:       strings.ToUpper(strings.TrimSpace(v.GetString("PROVIDER_DEFAULT_COUNTRY"))),
			CallTimeout:          time.Duration(v.GetInt("PROVIDER_CALL_TIMEOUT_SECONDS")) * time.Second,
			WebhookTolerance:     time.Duration(v.GetInt("PROVIDER_WEBHOOK_TOLERANCE_SECONDS")) * time.Second,
		},
	}
}

// Validate fails fast on configuration the service cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.Provider.APIKey == "" {
		missing = append(missing, "PROVIDER_API_KEY")
	}
	if c.Provider.WebhookSigningSecret == "" {
		missing = append(missing, "PROVIDER_WEBHOOK_SECRET")
	}
	if c.Provider.OnboardingReturnURL == "" {
		missing = append(missing, "PROVIDER_ONBOARDING_RETURN_URL")
	}
	if c.Provider.OnboardingRefreshURL == "" {
		missing = append(missing, "PROVIDER_ONBOARDING_REFRESH_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Provider.CallTimeout <= 0 {
		return errors.New("PROVIDER_CALL_TIMEOUT_SECONDS must be positive")
	}
	if c.Provider.WebhookTolerance <= 0 {
		return errors.New("PROVIDER_WEBHOOK_TOLERANCE_SECONDS must be positive")
	}
	return nil
}
