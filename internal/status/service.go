package status

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/payconnect/internal/account/domain"
)

// AccountStatus is the read model served to callers asking whether a user
// can accept payments.
type AccountStatus struct {
	HasAccount          bool                 `json:"has_account"`
	AccountStatus       accountdomain.Status `json:"account_status,omitempty"`
	ChargesEnabled      bool                 `json:"charges_enabled"`
	PayoutsEnabled      bool                 `json:"payouts_enabled"`
	OnboardingCompleted bool                 `json:"onboarding_completed"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Accounts accountdomain.Service
}

type Service struct {
	log      *zap.Logger
	accounts accountdomain.Service
}

func New(p Params) *Service {
	return &Service{
		log:      p.Log.Named("status.service"),
		accounts: p.Accounts,
	}
}

// Lookup reports the user's payment capability. A user with no account is a
// normal answer, not an error.
func (s *Service) Lookup(ctx context.Context, userID snowflake.ID, refresh bool) (AccountStatus, error) {
	account, err := s.accounts.Reconcile(ctx, userID, refresh)
	if errors.Is(err, accountdomain.ErrNotFound) {
		return AccountStatus{}, nil
	}
	if err != nil {
		return AccountStatus{}, err
	}

	return AccountStatus{
		HasAccount:          true,
		AccountStatus:       account.AccountStatus,
		ChargesEnabled:      account.ChargesEnabled,
		PayoutsEnabled:      account.PayoutsEnabled,
		OnboardingCompleted: account.OnboardingCompleted(),
	}, nil
}

var Module = fx.Module("status.service",
	fx.Provide(New),
)
