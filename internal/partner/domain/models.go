// Package domain contains persistence models for guide partners and their
// subscription state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tabimed/partnerpay/internal/tier"
	"gorm.io/datatypes"
)

// Status represents the partner account lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusSuspended Status = "suspended"
)

// SubscriptionStatus represents the recurring payment state reported by the
// payment provider, mapped to our internal vocabulary.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// EntryFeeStatus tracks the one-time charge that unlocks the partner tier.
type EntryFeeStatus string

const (
	EntryFeeStatusNone      EntryFeeStatus = "none"
	EntryFeeStatusPending   EntryFeeStatus = "pending"
	EntryFeeStatusCompleted EntryFeeStatus = "completed"
)

// KYCStatus gates withdrawal eligibility.
type KYCStatus string

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// Partner is a guide/affiliate earning commission on bookings.
type Partner struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	DisplayName        string             `gorm:"type:text;not null"`
	Email              string             `gorm:"type:text;not null"`
	Status             Status             `gorm:"type:text;not null;default:pending"`
	Tier               tier.Code          `gorm:"type:text;not null;default:growth"`
	SubscriptionStatus SubscriptionStatus `gorm:"type:text;not null;default:inactive"`
	EntryFeeStatus     EntryFeeStatus     `gorm:"type:text;not null;default:none"`
	ReferrerID         *snowflake.ID      `gorm:"index"`
	KYCStatus          KYCStatus          `gorm:"column:kyc_status;type:text;not null;default:none"`

	BankName          *string `gorm:"type:text"`
	BankBranch        *string `gorm:"type:text"`
	BankAccountType   *string `gorm:"type:text"`
	BankAccountNumber *string `gorm:"type:text"`
	BankAccountHolder *string `gorm:"type:text"`

	AvailableBalance int64 `gorm:"not null;default:0"`
	TotalEarned      int64 `gorm:"not null;default:0"`
	TotalWithdrawn   int64 `gorm:"not null;default:0"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Partner) TableName() string { return "partners" }

// EffectiveTier returns the tier the partner is entitled to right now. The
// stored tier is a billing fact; it only takes effect while the subscription
// is active. Derived at call time, never cached.
func (p *Partner) EffectiveTier() tier.Code {
	if p.Tier == tier.CodePartner && p.SubscriptionStatus == SubscriptionStatusActive {
		return tier.CodePartner
	}
	return tier.CodeGrowth
}

// EffectiveRate returns the commission rate for the effective tier.
func (p *Partner) EffectiveRate() decimal.Decimal {
	if rate, err := tier.RateFor(p.EffectiveTier()); err == nil {
		return rate
	}
	return tier.GrowthRate()
}

// BankComplete reports whether all bank snapshot fields required for a
// withdrawal are present.
func (p *Partner) BankComplete() bool {
	return hasValue(p.BankName) &&
		hasValue(p.BankBranch) &&
		hasValue(p.BankAccountType) &&
		hasValue(p.BankAccountNumber) &&
		hasValue(p.BankAccountHolder)
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
