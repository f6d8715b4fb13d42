package domain

import (
	"context"
	"net/http"
	"time"
)

// Account is the provider's authoritative view of a connected account.
// Every webhook and refresh carries a complete snapshot of these fields,
// never a delta.
type Account struct {
	ID               string
	Email            string
	Country          string
	DefaultCurrency  string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// AccountLink is a provider-hosted, time-limited onboarding URL.
type AccountLink struct {
	URL       string
	ExpiresAt time.Time
}

const (
	EventTypeAccountUpdated    = "account.updated"
	EventTypeCapabilityUpdated = "capability.updated"
)

// Event is the canonical event parsed from a verified webhook payload.
type Event struct {
	ID      string
	Type    string
	Created int64

	// Account carries the full snapshot for account events; for
	// capability events only Account.ID is populated.
	Account Account
}

type CreateAccountRequest struct {
	Country  string
	Email    string
	Metadata map[string]string
}

// Client is the capability surface over the external payment API.
// Implementations are constructed once at startup from validated
// configuration and shared read-only thereafter.
type Client interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (AccountLink, error)
	RetrieveAccount(ctx context.Context, accountID string) (Account, error)
	VerifyAndParseEvent(payload []byte, headers http.Header) (Event, error)
}
