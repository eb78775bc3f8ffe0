package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, partner *Partner) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error
	// PromoteTier flips the partner to the target tier only while every
	// precondition still holds. Returns the number of rows updated so the
	// caller can detect a lost race.
	PromoteTier(ctx context.Context, db *gorm.DB, id snowflake.ID, target string) (int64, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus) error
	// Downgrade resets tier and entry fee in one statement when the
	// subscription definitively lapses.
	Downgrade(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	UpdateEntryFeeStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status EntryFeeStatus) error
	UpdateKYCStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status KYCStatus) error
	UpdateBankAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, bank BankAccount) error
}

// BankAccount is the snapshot of payout destination details kept on the
// partner row and copied onto each withdrawal request.
type BankAccount struct {
	BankName      string `json:"bank_name"`
	BankBranch    string `json:"bank_branch"`
	AccountType   string `json:"account_type"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}
