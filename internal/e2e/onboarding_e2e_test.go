package e2e

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountrepo "github.com/smallbiznis/payconnect/internal/account/repository"
	accountservice "github.com/smallbiznis/payconnect/internal/account/service"
	"github.com/smallbiznis/payconnect/internal/clock"
	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/observability"
	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
	"github.com/smallbiznis/payconnect/internal/server"
	"github.com/smallbiznis/payconnect/internal/status"
	"github.com/smallbiznis/payconnect/internal/webhook"
)

const signingSecret = "whsec_e2e"

var e2eNow = time.Unix(1700000000, 0).UTC()

// scriptedProvider stands in for the external payment API. Account and
// link creation are canned; the retrievable snapshot is mutable so tests
// can steer the refresh path.
type scriptedProvider struct {
	verifier *webhook.Verifier
	snapshot providerdomain.Account
}

func (p *scriptedProvider) CreateAccount(ctx context.Context, req providerdomain.CreateAccountRequest) (providerdomain.Account, error) {
	p.snapshot = providerdomain.Account{ID: "acct_e2e", Country: req.Country, DefaultCurrency: "USD"}
	return p.snapshot, nil
}

func (p *scriptedProvider) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (providerdomain.AccountLink, error) {
	return providerdomain.AccountLink{
		URL:       "https://connect.example.com/setup/" + accountID,
		ExpiresAt: e2eNow.Add(5 * time.Minute),
	}, nil
}

func (p *scriptedProvider) RetrieveAccount(ctx context.Context, accountID string) (providerdomain.Account, error) {
	return p.snapshot, nil
}

func (p *scriptedProvider) VerifyAndParseEvent(payload []byte, headers http.Header) (providerdomain.Event, error) {
	return p.verifier.ConstructEvent(payload, headers.Get(webhook.SignatureHeader))
}

type harness struct {
	engine   *gin.Engine
	provider *scriptedProvider
	clk      *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS payment_accounts (
		user_id BIGINT PRIMARY KEY,
		provider_account_id TEXT,
		email TEXT,
		country TEXT,
		default_currency TEXT,
		account_status TEXT NOT NULL DEFAULT 'pending',
		charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		onboarding_url TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_accounts_provider_account ON payment_accounts(provider_account_id)")
	db.Exec(`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGINT PRIMARY KEY,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		provider_account_id TEXT,
		payload TEXT,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`)
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_provider_event ON webhook_events(provider_event_id)")

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(e2eNow)
	provider := &scriptedProvider{
		verifier: webhook.NewVerifier(signingSecret, 5*time.Minute, clk),
	}

	cfg := config.Config{
		Provider: config.ProviderConfig{
			DefaultCountry:       "US",
			OnboardingReturnURL:  "https://app.example.com/connect/return",
			OnboardingRefreshURL: "https://app.example.com/connect/refresh",
		},
	}

	accountSvc := accountservice.New(accountservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Config:   cfg,
		Repo:     accountrepo.Provide(),
		Provider: provider,
	})

	srv := server.NewServer(server.ServerParams{
		Gin:            server.NewEngine(observability.Config{LogLevel: "info", Environment: "test"}),
		Cfg:            cfg,
		Log:            zap.NewNop(),
		AccountSvc:     accountSvc,
		StatusSvc:      status.New(status.Params{Log: zap.NewNop(), Accounts: accountSvc}),
		ProviderClient: provider,
	})

	return &harness{engine: srv.Engine(), provider: provider, clk: clk}
}

func (h *harness) do(method, target, userID string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *harness) deliverWebhook(eventID string, snapshot providerdomain.Account) *httptest.ResponseRecorder {
	payload := []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "account.updated",
		"created": %d,
		"data": {"object": {
			"id": %q,
			"country": %q,
			"default_currency": "usd",
			"charges_enabled": %t,
			"payouts_enabled": %t,
			"details_submitted": %t
		}}
	}`, eventID, h.clk.Now().Unix(), snapshot.ID, snapshot.Country, snapshot.ChargesEnabled, snapshot.PayoutsEnabled, snapshot.DetailsSubmitted))

	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", h.clk.Now().Unix(), payload)))
	sig := fmt.Sprintf("t=%d,v1=%s", h.clk.Now().Unix(), hex.EncodeToString(mac.Sum(nil)))

	return h.do(http.MethodPost, "/v1/webhooks/payments", "", payload, map[string]string{
		webhook.SignatureHeader: sig,
	})
}

func (h *harness) statusOf(t *testing.T, userID string, refresh bool) status.AccountStatus {
	t.Helper()
	target := "/v1/accounts/status"
	if refresh {
		target += "?refresh=true"
	}
	rec := h.do(http.MethodGet, target, userID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got status.AccountStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestOnboardingLifecycle(t *testing.T) {
	h := newHarness(t)

	// No account yet.
	assert.False(t, h.statusOf(t, "42", false).HasAccount)

	// Start onboarding.
	rec := h.do(http.MethodPost, "/v1/accounts", "42",
		[]byte(`{"email": "merchant@example.com"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		OnboardingURL     string `json:"onboarding_url"`
		ProviderAccountID string `json:"provider_account_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "acct_e2e", created.ProviderAccountID)
	assert.NotEmpty(t, created.OnboardingURL)

	pending := h.statusOf(t, "42", false)
	assert.True(t, pending.HasAccount)
	assert.False(t, pending.ChargesEnabled)
	assert.False(t, pending.OnboardingCompleted)

	// The user completes onboarding; the provider notifies us.
	h.clk.Advance(2 * time.Minute)
	full := providerdomain.Account{
		ID:               "acct_e2e",
		Country:          "US",
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
	}
	rec = h.deliverWebhook("evt_1", full)
	require.Equal(t, http.StatusOK, rec.Code)

	active := h.statusOf(t, "42", false)
	assert.True(t, active.ChargesEnabled)
	assert.True(t, active.PayoutsEnabled)
	assert.True(t, active.OnboardingCompleted)

	// Redelivery changes nothing.
	rec = h.deliverWebhook("evt_1", full)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, active, h.statusOf(t, "42", false))

	// The provider restricts payouts.
	h.clk.Advance(time.Minute)
	restricted := full
	restricted.PayoutsEnabled = false
	rec = h.deliverWebhook("evt_2", restricted)
	require.Equal(t, http.StatusOK, rec.Code)

	got := h.statusOf(t, "42", false)
	assert.True(t, got.ChargesEnabled)
	assert.False(t, got.PayoutsEnabled)

	// A dropped webhook is recovered by the refresh path.
	h.provider.snapshot = full
	refreshed := h.statusOf(t, "42", true)
	assert.True(t, refreshed.PayoutsEnabled)
}

func TestOnboardingRestartReusesAccount(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/accounts", "7", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Link expired; the user starts over before finishing onboarding.
	h.clk.Advance(10 * time.Minute)
	rec = h.do(http.MethodPost, "/v1/accounts", "7", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var again struct {
		ProviderAccountID string `json:"provider_account_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, "acct_e2e", again.ProviderAccountID, "same provider account across restarts")
}

func TestOnboardingConflictAfterCompletion(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/accounts", "7", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.deliverWebhook("evt_1", providerdomain.Account{
		ID:               "acct_e2e",
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/v1/accounts", "7", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
