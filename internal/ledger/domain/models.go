// Package domain defines the append-only balance ledger. Every yen that moves
// in or out of a partner balance is recorded here; the running totals on the
// partner row are a cache guarded by the same transaction.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntryType is derived from the sign of the amount. Credits increase the
// available balance, debits decrease it.
type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

type SourceType string

const (
	SourceTypeCommission             SourceType = "commission"
	SourceTypeCommissionReversal     SourceType = "commission_reversal"
	SourceTypeReferralReward         SourceType = "referral_reward"
	SourceTypeReferralRewardReversal SourceType = "referral_reward_reversal"
	SourceTypeWithdrawal             SourceType = "withdrawal"
	SourceTypeWithdrawalRefund       SourceType = "withdrawal_refund"
	SourceTypeAdjustment             SourceType = "adjustment"
)

// Entry is one immutable ledger line. Amount is signed: positive for credits,
// negative for debits. (partner_id, source_type, source_id) is unique so a
// replayed posting is a no-op.
type Entry struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	PartnerID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_ledger_partner_source,priority:1"`
	EntryType    EntryType         `gorm:"type:text;not null"`
	SourceType   SourceType        `gorm:"type:text;not null;uniqueIndex:ux_ledger_partner_source,priority:2"`
	SourceID     string            `gorm:"type:text;not null;uniqueIndex:ux_ledger_partner_source,priority:3"`
	Amount       int64             `gorm:"not null"`
	BalanceAfter int64             `gorm:"not null"`
	Description  string            `gorm:"type:text;not null"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

func (Entry) TableName() string { return "balance_ledger_entries" }
