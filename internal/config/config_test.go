package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	cfg := Load()
	cfg.Provider.APIKey = "sk_test_123"
	cfg.Provider.WebhookSigningSecret = "whsec_test"
	cfg.Provider.OnboardingReturnURL = "https://app.example.com/onboarding/return"
	cfg.Provider.OnboardingRefreshURL = "https://app.example.com/onboarding/refresh"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "payconnect", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://api.stripe.com", cfg.Provider.APIBaseURL)
	assert.Equal(t, "US", cfg.Provider.DefaultCountry)
	assert.Equal(t, 10*time.Second, cfg.Provider.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Provider.WebhookTolerance)
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	noKey := cfg
	noKey.Provider.APIKey = ""
	err := noKey.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_API_KEY")

	noSecret := cfg
	noSecret.Provider.WebhookSigningSecret = ""
	err = noSecret.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_WEBHOOK_SECRET")
}

func TestValidateTolerance(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.WebhookTolerance = 0
	assert.Error(t, cfg.Validate())
}
