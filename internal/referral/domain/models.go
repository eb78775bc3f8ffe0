// Package domain defines referral override rewards. A referrer earns a 2%
// override on the commission of each booking their referred partner closes,
// one level deep and at most once per booking.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var overrideRate = decimal.RequireFromString("0.02")

type RewardStatus string

const (
	RewardStatusCredited RewardStatus = "credited"
	RewardStatusReversed RewardStatus = "reversed"
)

// ReferralReward is the override earned by the referrer on one booking.
// BookingID is unique so a recalculation can never double-pay.
type ReferralReward struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	BookingID         snowflake.ID `gorm:"not null;uniqueIndex:ux_referral_rewards_booking"`
	ReferrerID        snowflake.ID `gorm:"not null;index"`
	ReferredPartnerID snowflake.ID `gorm:"not null;index"`
	CommissionAmount  int64        `gorm:"not null"`
	RewardAmount      int64        `gorm:"not null"`
	Status            RewardStatus `gorm:"type:text;not null;default:credited"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReferralReward) TableName() string { return "referral_rewards" }

// RewardFor applies the override rate to a commission amount, rounding half
// up to whole yen.
func RewardFor(commission int64) int64 {
	return decimal.NewFromInt(commission).Mul(overrideRate).Round(0).IntPart()
}
