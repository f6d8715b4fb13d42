package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*PaymentAccount, error)
	FindByProviderAccountID(ctx context.Context, db *gorm.DB, providerAccountID string) (*PaymentAccount, error)

	// Upsert writes the full record, replacing any existing row for the
	// same user.
	Upsert(ctx context.Context, db *gorm.DB, account *PaymentAccount) error

	// InsertEvent appends to the webhook ledger. It reports false when an
	// event with the same provider event ID was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, providerEventID string, processedAt time.Time) error
}
