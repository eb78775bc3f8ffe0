package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends a reward, ignoring the write when the booking already
	// has one. Returns the number of rows inserted.
	Insert(ctx context.Context, db *gorm.DB, reward *ReferralReward) (int64, error)
	FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*ReferralReward, error)
	// MarkReversed flips a credited reward to reversed. Returns the number
	// of rows updated.
	MarkReversed(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error)
	ListByReferrer(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ReferralReward, error)
}

type RewardCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	ReferrerID snowflake.ID
	Status     RewardStatus
	Cursor     *RewardCursor
	Limit      int
}
