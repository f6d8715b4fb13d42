package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
)

var (
	ErrInvalidUser           = errors.New("invalid user id")
	ErrNotFound              = errors.New("payment account not found")
	ErrAlreadyOnboarded      = errors.New("payment account already onboarded")
	ErrEventAlreadyProcessed = errors.New("webhook event already processed")
)

type StartOnboardingRequest struct {
	UserID  snowflake.ID
	Email   string
	Country string
}

type StartOnboardingResponse struct {
	OnboardingURL     string
	ProviderAccountID string
}

// Service owns the payment-account lifecycle: starting onboarding, folding
// verified webhook snapshots into local state, and reconciling against the
// provider on read.
type Service interface {
	StartOnboarding(ctx context.Context, req StartOnboardingRequest) (StartOnboardingResponse, error)

	// ApplyWebhookEvent records a verified event and folds its snapshot
	// into the local mirror. Capability events carry no snapshot, so the
	// referenced account is re-read from the provider first. Redelivered
	// events return ErrEventAlreadyProcessed; events for unknown accounts
	// are logged and dropped.
	ApplyWebhookEvent(ctx context.Context, event providerdomain.Event, payload []byte) error

	// Reconcile returns the user's account, optionally refreshed from
	// the provider first. When the refresh fails the stored record is
	// returned unchanged.
	Reconcile(ctx context.Context, userID snowflake.ID, refresh bool) (*PaymentAccount, error)
}
