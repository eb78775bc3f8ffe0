package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() referraldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reward *referraldomain.ReferralReward) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO referral_rewards (
			id, booking_id, referrer_id, referred_partner_id, commission_amount,
			reward_amount, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (booking_id) DO NOTHING`,
		reward.ID,
		reward.BookingID,
		reward.ReferrerID,
		reward.ReferredPartnerID,
		reward.CommissionAmount,
		reward.RewardAmount,
		reward.Status,
		reward.CreatedAt,
		reward.UpdatedAt,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*referraldomain.ReferralReward, error) {
	var reward referraldomain.ReferralReward
	err := db.WithContext(ctx).Raw(
		`SELECT id, booking_id, referrer_id, referred_partner_id, commission_amount,
		 reward_amount, status, created_at, updated_at
		 FROM referral_rewards WHERE booking_id = ?`,
		bookingID,
	).Scan(&reward).Error
	if err != nil {
		return nil, err
	}
	if reward.ID == 0 {
		return nil, nil
	}
	return &reward, nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referral_rewards SET status = ?, updated_at = ?
		 WHERE booking_id = ? AND status = ?`,
		referraldomain.RewardStatusReversed,
		time.Now().UTC(),
		bookingID,
		referraldomain.RewardStatusCredited,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListByReferrer(ctx context.Context, db *gorm.DB, filter referraldomain.ListFilter) ([]*referraldomain.ReferralReward, error) {
	var rewards []*referraldomain.ReferralReward
	stmt := db.WithContext(ctx).Model(&referraldomain.ReferralReward{}).
		Where("referrer_id = ?", filter.ReferrerID)

	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&rewards).Error; err != nil {
		return nil, err
	}
	return rewards, nil
}
