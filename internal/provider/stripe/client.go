package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/observability/metrics"
	"github.com/smallbiznis/payconnect/internal/provider/domain"
	"github.com/smallbiznis/payconnect/internal/webhook"
)

// Client talks to the Stripe Connect API over its form-encoded REST
// surface. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	verifier   *webhook.Verifier
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func New(cfg config.Config, verifier *webhook.Verifier, m *metrics.Metrics, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return nil, &domain.ConfigError{Message: "missing provider API key"}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.Provider.APIBaseURL, "/"),
		apiKey:  cfg.Provider.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Provider.CallTimeout,
		},
		verifier: verifier,
		metrics:  m,
		log:      log.Named("provider.stripe"),
	}, nil
}

type accountResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Country          string `json:"country"`
	DefaultCurrency  string `json:"default_currency"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (r accountResponse) toDomain() domain.Account {
	return domain.Account{
		ID:               r.ID,
		Email:            r.Email,
		Country:          strings.ToUpper(r.Country),
		DefaultCurrency:  strings.ToUpper(r.DefaultCurrency),
		ChargesEnabled:   r.ChargesEnabled,
		PayoutsEnabled:   r.PayoutsEnabled,
		DetailsSubmitted: r.DetailsSubmitted,
	}
}

type accountLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("country", req.Country)
	if req.Email != "" {
		form.Set("email", req.Email)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var resp accountResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", form, &resp); err != nil {
		c.record(ctx, "create_account", err)
		return domain.Account{}, err
	}
	c.record(ctx, "create_account", nil)
	return resp.toDomain(), nil
}

func (c *Client) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (domain.AccountLink, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("return_url", returnURL)
	form.Set("refresh_url", refreshURL)
	form.Set("type", "account_onboarding")

	var resp accountLinkResponse
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", form, &resp); err != nil {
		c.record(ctx, "create_onboarding_link", err)
		return domain.AccountLink{}, err
	}
	c.record(ctx, "create_onboarding_link", nil)
	return domain.AccountLink{
		URL:       resp.URL,
		ExpiresAt: time.Unix(resp.ExpiresAt, 0).UTC(),
	}, nil
}

func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), nil, &resp); err != nil {
		c.record(ctx, "retrieve_account", err)
		return domain.Account{}, err
	}
	c.record(ctx, "retrieve_account", nil)
	return resp.toDomain(), nil
}

func (c *Client) VerifyAndParseEvent(payload []byte, headers http.Header) (domain.Event, error) {
	return c.verifier.ConstructEvent(payload, headers.Get(webhook.SignatureHeader))
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.TransientError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.TransientError{Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.TransientError{Err: fmt.Errorf("decode %s response: %w", path, err)}
		}
		return nil
	}

	return c.classify(resp.StatusCode, raw)
}

// classify maps provider responses onto the error taxonomy. Credential
// rejections are fatal, other 4xx are caller mistakes, everything 5xx is
// retryable.
func (c *Client) classify(status int, raw []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.ConfigError{Message: fmt.Sprintf("credentials rejected (%d): %s", status, msg)}
	case status >= 400 && status < 500:
		return &domain.ClientError{StatusCode: status, Code: parsed.Error.Code, Message: msg}
	default:
		return &domain.TransientError{Err: fmt.Errorf("provider returned %d: %s", status, msg)}
	}
}

func (c *Client) record(ctx context.Context, op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case domain.IsConfig(err):
		result = "config_error"
	case domain.IsClient(err):
		result = "client_error"
	default:
		result = "transient_error"
	}
	if err != nil {
		c.log.Warn("provider call failed", zap.String("op", op), zap.String("result", result), zap.Error(err))
	}
	c.metrics.RecordProviderCall(ctx, op, result)
}
