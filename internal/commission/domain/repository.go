package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	// MarkCalculated writes the commission snapshot only while the booking
	// is still pending. Returns the number of rows updated.
	MarkCalculated(ctx context.Context, db *gorm.DB, booking *Booking) (int64, error)
	// MarkReversed flips a calculated commission to reversed. Returns the
	// number of rows updated.
	MarkReversed(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status BookingStatus) error
	ListByPartner(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Booking, error)
}

type BookingCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	PartnerID        snowflake.ID
	CommissionStatus CommissionStatus
	Cursor           *BookingCursor
	Limit            int
}
