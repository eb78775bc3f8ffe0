// Package domain holds booking records and the commission facts derived from
// them. Booking amounts are tax-inclusive JPY; commission is always computed
// on the tax-exclusive net.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusRefunded  BookingStatus = "refunded"
)

type CommissionStatus string

const (
	CommissionStatusPending    CommissionStatus = "pending"
	CommissionStatusCalculated CommissionStatus = "calculated"
	CommissionStatusReversed   CommissionStatus = "reversed"
)

// Booking is a travel/clinic booking attributed to a partner. Amount includes
// the 10% consumption tax. Commission fields stay zero until calculation.
type Booking struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	PartnerID   *snowflake.ID `gorm:"index"`
	CustomerRef string        `gorm:"type:text;not null"`
	ServiceName string        `gorm:"type:text;not null"`
	Amount      int64         `gorm:"not null"`
	Status      BookingStatus `gorm:"type:text;not null;default:confirmed"`
	// IsFirstOrder is asserted by the booking workflow, which knows the
	// customer; it is not derivable from partner history.
	IsFirstOrder bool `gorm:"column:is_first_order_for_customer;not null;default:false"`

	CommissionStatus CommissionStatus `gorm:"type:text;not null;default:pending;index"`
	// RateApplied is the effective rate snapshot taken at calculation time,
	// stored as a decimal string ("0.20").
	RateApplied      *string    `gorm:"type:text"`
	NetAmount        int64      `gorm:"not null;default:0"`
	CommissionAmount int64      `gorm:"not null;default:0"`
	FirstOrderBonus  int64      `gorm:"not null;default:0"`
	CalculatedAt     *time.Time `gorm:""`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Booking) TableName() string { return "bookings" }
