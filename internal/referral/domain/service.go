package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRewardRequest struct {
	BookingID         snowflake.ID
	ReferrerID        snowflake.ID
	ReferredPartnerID snowflake.ID
	CommissionAmount  int64
}

type ListRewardsRequest struct {
	pagination.Pagination
	ReferrerID string
	Status     string
}

type ListRewardsResponse struct {
	pagination.PageInfo
	Rewards []ReferralReward `json:"rewards"`
}

type Service interface {
	// CreateForBookingTx credits the referrer override inside the caller's
	// transaction. Returns nil without error when the reward rounds to zero
	// or the booking already has one.
	CreateForBookingTx(ctx context.Context, tx *gorm.DB, req CreateRewardRequest) (*ReferralReward, error)
	// ReverseForBookingTx claws the override back when the underlying
	// commission is reversed. Returns nil when no credited reward exists.
	ReverseForBookingTx(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (*ReferralReward, error)
	GetByBookingID(ctx context.Context, bookingID string) (*ReferralReward, error)
	ListByReferrer(ctx context.Context, req ListRewardsRequest) (ListRewardsResponse, error)
}

var (
	ErrInvalidBookingID  = errors.New("invalid_booking_id")
	ErrInvalidReferrer   = errors.New("invalid_referrer")
	ErrInvalidCommission = errors.New("invalid_commission_amount")
	ErrRewardNotFound    = errors.New("reward_not_found")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
