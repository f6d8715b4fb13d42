package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/payconnect/internal/account/domain"
	"github.com/smallbiznis/payconnect/internal/clock"
	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/observability/metrics"
	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Provider providerdomain.Client
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     domain.Repository
	provider providerdomain.Client
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		repo:     p.Repo,
		provider: p.Provider,
		metrics:  p.Metrics,
	}
}

func (s *Service) StartOnboarding(ctx context.Context, req domain.StartOnboardingRequest) (domain.StartOnboardingResponse, error) {
	if req.UserID == 0 {
		return domain.StartOnboardingResponse{}, domain.ErrInvalidUser
	}

	existing, err := s.repo.FindByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return domain.StartOnboardingResponse{}, err
	}
	if existing != nil && existing.OnboardingCompleted() {
		return domain.StartOnboardingResponse{}, domain.ErrAlreadyOnboarded
	}

	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		country = s.cfg.Provider.DefaultCountry
	}

	now := s.clock.Now()
	account := existing
	if account == nil {
		account = &domain.PaymentAccount{
			UserID:        req.UserID,
			Email:         strings.TrimSpace(req.Email),
			Country:       country,
			AccountStatus: domain.StatusPending,
			CreatedAt:     now,
		}
	}

	// Provider accounts survive expired onboarding links; only mint a new
	// one when the user has none yet.
	if account.ProviderAccountID == "" {
		created, err := s.provider.CreateAccount(ctx, providerdomain.CreateAccountRequest{
			Country: country,
			Email:   account.Email,
			Metadata: map[string]string{
				"user_id": req.UserID.String(),
			},
		})
		if err != nil {
			return domain.StartOnboardingResponse{}, err
		}
		account.ProviderAccountID = created.ID
		account.Country = created.Country
		account.DefaultCurrency = created.DefaultCurrency
		s.metrics.RecordAccountTransition(ctx, "none", string(domain.StatusPending))
	}

	link, err := s.provider.CreateOnboardingLink(ctx, account.ProviderAccountID,
		s.cfg.Provider.OnboardingReturnURL, s.cfg.Provider.OnboardingRefreshURL)
	if err != nil {
		return domain.StartOnboardingResponse{}, err
	}
	account.OnboardingURL = link.URL
	account.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, account); err != nil {
		return domain.StartOnboardingResponse{}, err
	}

	s.log.Info("onboarding started",
		zap.Int64("user_id", int64(account.UserID)),
		zap.String("provider_account_id", account.ProviderAccountID),
	)

	return domain.StartOnboardingResponse{
		OnboardingURL:     link.URL,
		ProviderAccountID: account.ProviderAccountID,
	}, nil
}

func (s *Service) ApplyWebhookEvent(ctx context.Context, event providerdomain.Event, payload []byte) error {
	snapshot := event.Account
	if event.Type == providerdomain.EventTypeCapabilityUpdated {
		// Capability events only reference the account; pull the full
		// snapshot before touching the ledger so a failed fetch leaves
		// the event unrecorded and redeliverable.
		refreshed, err := s.provider.RetrieveAccount(ctx, event.Account.ID)
		if err != nil {
			return err
		}
		snapshot = refreshed
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, &domain.EventRecord{
			ID:                s.genID.Generate(),
			ProviderEventID:   event.ID,
			EventType:         event.Type,
			ProviderAccountID: event.Account.ID,
			Payload:           datatypes.JSON(payload),
			ReceivedAt:        now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrEventAlreadyProcessed
		}

		if err := s.applySnapshot(ctx, tx, snapshot, now); err != nil {
			return err
		}

		return s.repo.MarkEventProcessed(ctx, tx, event.ID, now)
	})
}

func (s *Service) Reconcile(ctx context.Context, userID snowflake.ID, refresh bool) (*domain.PaymentAccount, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	account, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	if !refresh || account.ProviderAccountID == "" {
		return account, nil
	}

	snapshot, err := s.provider.RetrieveAccount(ctx, account.ProviderAccountID)
	if err != nil {
		// Webhooks remain the source of truth; a failed refresh
		// degrades to the stored record.
		s.log.Warn("provider refresh failed, serving stored record",
			zap.Int64("user_id", int64(userID)),
			zap.String("provider_account_id", account.ProviderAccountID),
			zap.Error(err),
		)
		return account, nil
	}

	now := s.clock.Now()
	prev := account.AccountStatus
	if account.ApplySnapshot(snapshot, now) {
		if err := s.repo.Upsert(ctx, s.db, account); err != nil {
			return nil, err
		}
		s.recordTransition(ctx, prev, account.AccountStatus)
	}
	return account, nil
}

func (s *Service) applySnapshot(ctx context.Context, tx *gorm.DB, snapshot providerdomain.Account, now time.Time) error {
	account, err := s.repo.FindByProviderAccountID(ctx, tx, snapshot.ID)
	if err != nil {
		return err
	}
	if account == nil {
		// Accounts created outside this service, or events racing the
		// initial insert. Drop the snapshot; a later event or refresh
		// converges the record.
		s.log.Warn("snapshot for unknown provider account",
			zap.String("provider_account_id", snapshot.ID),
		)
		return nil
	}

	prev := account.AccountStatus
	if !account.ApplySnapshot(snapshot, now) {
		s.log.Debug("snapshot already applied",
			zap.String("provider_account_id", snapshot.ID),
		)
		return nil
	}

	if err := s.repo.Upsert(ctx, tx, account); err != nil {
		return err
	}
	s.recordTransition(ctx, prev, account.AccountStatus)
	return nil
}

func (s *Service) recordTransition(ctx context.Context, from, to domain.Status) {
	if from == to {
		return
	}
	s.metrics.RecordAccountTransition(ctx, string(from), string(to))
}
