package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
)

// Status is the derived lifecycle state of a payment account. It is never
// written independently of the capability flags it is computed from.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusRestricted Status = "restricted"
)

// StatusFor derives the account status from a capability snapshot. The
// derivation is pure, so replaying or reordering snapshots of the same
// account always converges on the same status.
func StatusFor(chargesEnabled, payoutsEnabled, detailsSubmitted bool) Status {
	switch {
	case chargesEnabled && payoutsEnabled:
		return StatusActive
	case detailsSubmitted:
		return StatusRestricted
	default:
		return StatusPending
	}
}

// PaymentAccount is the locally persisted mirror of one user's connected
// provider account. One row per user.
type PaymentAccount struct {
	UserID            snowflake.ID `gorm:"column:user_id;primaryKey"`
	ProviderAccountID string       `gorm:"column:provider_account_id"`
	Email             string       `gorm:"column:email"`
	Country           string       `gorm:"column:country"`
	DefaultCurrency   string       `gorm:"column:default_currency"`
	AccountStatus     Status       `gorm:"column:account_status"`
	ChargesEnabled    bool         `gorm:"column:charges_enabled"`
	PayoutsEnabled    bool         `gorm:"column:payouts_enabled"`
	DetailsSubmitted  bool         `gorm:"column:details_submitted"`
	OnboardingURL     string       `gorm:"column:onboarding_url"`
	CreatedAt         time.Time    `gorm:"column:created_at"`
	UpdatedAt         time.Time    `gorm:"column:updated_at"`
}

func (PaymentAccount) TableName() string {
	return "payment_accounts"
}

// OnboardingCompleted is derived from the capability flags, never stored:
// an account is onboarded exactly when it can both charge and pay out.
func (a *PaymentAccount) OnboardingCompleted() bool {
	return a.ChargesEnabled && a.PayoutsEnabled
}

// SameSnapshot reports whether the stored record already reflects the given
// provider snapshot. Used to turn redelivered or reordered-but-equal
// snapshots into no-op writes.
func (a *PaymentAccount) SameSnapshot(snap providerdomain.Account) bool {
	return a.ProviderAccountID == snap.ID &&
		a.Email == snap.Email &&
		a.Country == snap.Country &&
		a.DefaultCurrency == snap.DefaultCurrency &&
		a.ChargesEnabled == snap.ChargesEnabled &&
		a.PayoutsEnabled == snap.PayoutsEnabled &&
		a.DetailsSubmitted == snap.DetailsSubmitted
}

// ApplySnapshot overwrites the capability fields and derived status from a
// full provider snapshot. It reports whether anything changed.
func (a *PaymentAccount) ApplySnapshot(snap providerdomain.Account, now time.Time) bool {
	if a.SameSnapshot(snap) {
		return false
	}
	a.ProviderAccountID = snap.ID
	a.Email = snap.Email
	a.Country = snap.Country
	a.DefaultCurrency = snap.DefaultCurrency
	a.ChargesEnabled = snap.ChargesEnabled
	a.PayoutsEnabled = snap.PayoutsEnabled
	a.DetailsSubmitted = snap.DetailsSubmitted
	a.AccountStatus = StatusFor(snap.ChargesEnabled, snap.PayoutsEnabled, snap.DetailsSubmitted)
	a.UpdatedAt = now
	return true
}

// EventRecord is the processed-webhook ledger. The unique provider event ID
// is what makes redelivered webhooks no-ops.
type EventRecord struct {
	ID                snowflake.ID   `gorm:"column:id;primaryKey"`
	ProviderEventID   string         `gorm:"column:provider_event_id"`
	EventType         string         `gorm:"column:event_type"`
	ProviderAccountID string         `gorm:"column:provider_account_id"`
	Payload           datatypes.JSON `gorm:"column:payload"`
	ReceivedAt        time.Time      `gorm:"column:received_at"`
	ProcessedAt       *time.Time     `gorm:"column:processed_at"`
}

func (EventRecord) TableName() string {
	return "webhook_events"
}
