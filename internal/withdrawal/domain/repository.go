package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusUpdate carries the column changes applied alongside a guarded status
// flip. Nil fields are left untouched.
type StatusUpdate struct {
	ReviewedBy       *string
	RejectionReason  *string
	PaymentReference *string
	ReviewedAt       *time.Time
	ProcessedAt      *time.Time
	CompletedAt      *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, request *WithdrawalRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WithdrawalRequest, error)
	FindInFlightByPartner(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (*WithdrawalRequest, error)
	// UpdateStatus flips the status only while the row is still in the
	// expected state. Returns the number of rows updated.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, update StatusUpdate) (int64, error)
	// AddWithdrawn bumps the partner's lifetime payout counter on
	// settlement.
	AddWithdrawn(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, amount int64) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*WithdrawalRequest, error)
	Stats(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (Stats, error)
}

type RequestCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	PartnerID snowflake.ID
	Status    Status
	Cursor    *RequestCursor
	Limit     int
}

type Stats struct {
	TotalRequested int64 `json:"total_requested"`
	TotalCompleted int64 `json:"total_completed"`
	CompletedCount int64 `json:"completed_count"`
	InFlightAmount int64 `json:"in_flight_amount"`
}
