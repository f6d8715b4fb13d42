package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/payconnect/internal/account/domain"
	pkgdb "github.com/smallbiznis/payconnect/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.PaymentAccount, error) {
	var account domain.PaymentAccount
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByProviderAccountID(ctx context.Context, db *gorm.DB, providerAccountID string) (*domain.PaymentAccount, error) {
	var account domain.PaymentAccount
	err := db.WithContext(ctx).
		Where("provider_account_id = ?", providerAccountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, account *domain.PaymentAccount) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(account).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	err := db.WithContext(ctx).Create(event).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("provider_event_id = ?", providerEventID).
		Update("processed_at", processedAt).Error
}
