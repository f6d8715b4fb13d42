package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/provider/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Provider: config.ProviderConfig{
			APIKey:      "sk_test_key",
			APIBaseURL:  srv.URL,
			CallTimeout: 5 * time.Second,
		},
	}
	client, err := New(cfg, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := config.Config{Provider: config.ProviderConfig{APIBaseURL: "https://api.stripe.com"}}
	_, err := New(cfg, nil, nil, zap.NewNop())
	require.Error(t, err)
	assert.True(t, domain.IsConfig(err))
}

func TestCreateAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "express", r.PostForm.Get("type"))
		assert.Equal(t, "US", r.PostForm.Get("country"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[user_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "acct_123",
			"email": "merchant@example.com",
			"country": "us",
			"default_currency": "usd",
			"charges_enabled": false,
			"payouts_enabled": false,
			"details_submitted": false
		}`))
	}))

	account, err := client.CreateAccount(context.Background(), domain.CreateAccountRequest{
		Country:  "US",
		Email:    "merchant@example.com",
		Metadata: map[string]string{"user_id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_123", account.ID)
	assert.Equal(t, "US", account.Country)
	assert.Equal(t, "USD", account.DefaultCurrency)
	assert.False(t, account.ChargesEnabled)
}

func TestCreateOnboardingLink(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/account_links", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "acct_123", r.PostForm.Get("account"))
		assert.Equal(t, "account_onboarding", r.PostForm.Get("type"))
		assert.Equal(t, "https://app.example.com/return", r.PostForm.Get("return_url"))
		assert.Equal(t, "https://app.example.com/refresh", r.PostForm.Get("refresh_url"))

		_, _ = w.Write([]byte(`{"url": "https://connect.stripe.com/setup/s/abc", "expires_at": 1700000300}`))
	}))

	link, err := client.CreateOnboardingLink(context.Background(), "acct_123",
		"https://app.example.com/return", "https://app.example.com/refresh")
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.com/setup/s/abc", link.URL)
	assert.Equal(t, int64(1700000300), link.ExpiresAt.Unix())
}

func TestRetrieveAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/accounts/acct_123", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "acct_123",
			"country": "DE",
			"default_currency": "eur",
			"charges_enabled": true,
			"payouts_enabled": true,
			"details_submitted": true
		}`))
	}))

	account, err := client.RetrieveAccount(context.Background(), "acct_123")
	require.NoError(t, err)
	assert.True(t, account.ChargesEnabled)
	assert.True(t, account.PayoutsEnabled)
	assert.Equal(t, "EUR", account.DefaultCurrency)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{
			name:   "unauthorized is a config error",
			status: http.StatusUnauthorized,
			body:   `{"error": {"type": "invalid_request_error", "message": "Invalid API Key provided"}}`,
			check:  domain.IsConfig,
		},
		{
			name:   "forbidden is a config error",
			status: http.StatusForbidden,
			body:   `{"error": {"message": "This API key does not have access"}}`,
			check:  domain.IsConfig,
		},
		{
			name:   "bad request is a client error",
			status: http.StatusBadRequest,
			body:   `{"error": {"code": "parameter_invalid_empty", "message": "country required"}}`,
			check:  domain.IsClient,
		},
		{
			name:   "server error is transient",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "An unknown error occurred"}}`,
			check:  domain.IsTransient,
		},
		{
			name:   "bad gateway is transient",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
			check:  domain.IsTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.RetrieveAccount(context.Background(), "acct_123")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification: %v", err)
		})
	}
}

func TestClientErrorCarriesProviderCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": "account_invalid", "message": "No such account"}}`))
	}))

	_, err := client.RetrieveAccount(context.Background(), "acct_missing")
	var ce *domain.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "account_invalid", ce.Code)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := config.Config{
		Provider: config.ProviderConfig{
			APIKey:      "sk_test_key",
			APIBaseURL:  srv.URL,
			CallTimeout: time.Second,
		},
	}
	client, err := New(cfg, nil, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = client.RetrieveAccount(context.Background(), "acct_123")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
