package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/internal/tier"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() partnerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, partner *partnerdomain.Partner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partners (
			id, display_name, email, status, tier, subscription_status, entry_fee_status,
			referrer_id, kyc_status, bank_name, bank_branch, bank_account_type,
			bank_account_number, bank_account_holder, available_balance, total_earned,
			total_withdrawn, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.DisplayName,
		partner.Email,
		partner.Status,
		partner.Tier,
		partner.SubscriptionStatus,
		partner.EntryFeeStatus,
		partner.ReferrerID,
		partner.KYCStatus,
		partner.BankName,
		partner.BankBranch,
		partner.BankAccountType,
		partner.BankAccountNumber,
		partner.BankAccountHolder,
		partner.AvailableBalance,
		partner.TotalEarned,
		partner.TotalWithdrawn,
		partner.Metadata,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*partnerdomain.Partner, error) {
	var partner partnerdomain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, email, status, tier, subscription_status, entry_fee_status,
		 referrer_id, kyc_status, bank_name, bank_branch, bank_account_type,
		 bank_account_number, bank_account_holder, available_balance, total_earned,
		 total_withdrawn, metadata, created_at, updated_at
		 FROM partners WHERE id = ?`,
		id,
	).Scan(&partner).Error
	if err != nil {
		return nil, err
	}
	if partner.ID == 0 {
		return nil, nil
	}
	return &partner, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status partnerdomain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) PromoteTier(ctx context.Context, db *gorm.DB, id snowflake.ID, target string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE partners SET tier = ?, updated_at = ?
		 WHERE id = ?
		   AND tier <> ?
		   AND entry_fee_status = ?
		   AND subscription_status = ?`,
		target,
		time.Now().UTC(),
		id,
		target,
		partnerdomain.EntryFeeStatusCompleted,
		partnerdomain.SubscriptionStatusActive,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status partnerdomain.SubscriptionStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) Downgrade(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET tier = ?, entry_fee_status = ?, updated_at = ? WHERE id = ?`,
		tier.CodeGrowth,
		partnerdomain.EntryFeeStatusNone,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateEntryFeeStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status partnerdomain.EntryFeeStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET entry_fee_status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateKYCStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status partnerdomain.KYCStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET kyc_status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateBankAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, bank partnerdomain.BankAccount) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET bank_name = ?, bank_branch = ?, bank_account_type = ?,
		 bank_account_number = ?, bank_account_holder = ?, updated_at = ?
		 WHERE id = ?`,
		bank.BankName,
		bank.BankBranch,
		bank.AccountType,
		bank.AccountNumber,
		bank.AccountHolder,
		time.Now().UTC(),
		id,
	).Error
}
