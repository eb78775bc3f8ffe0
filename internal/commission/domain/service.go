package domain

import (
	"context"
	"errors"

	"github.com/tabimed/partnerpay/pkg/db/pagination"
)

type CreateBookingRequest struct {
	PartnerID    string         `json:"partner_id,omitempty"`
	CustomerRef  string         `json:"customer_ref"`
	ServiceName  string         `json:"service_name"`
	Amount       int64          `json:"amount"`
	IsFirstOrder bool           `json:"is_first_order_for_customer,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CalculationResult is the commission breakdown produced for one booking.
type CalculationResult struct {
	BookingID        string `json:"booking_id"`
	PartnerID        string `json:"partner_id"`
	RateApplied      string `json:"rate_applied"`
	NetAmount        int64  `json:"net_amount"`
	CommissionAmount int64  `json:"commission_amount"`
	FirstOrderBonus  int64  `json:"first_order_bonus"`
	TotalCredited    int64  `json:"total_credited"`
	ReferralReward   int64  `json:"referral_reward,omitempty"`
}

type ListBookingsRequest struct {
	pagination.Pagination
	PartnerID        string
	CommissionStatus string
}

type ListBookingsResponse struct {
	pagination.PageInfo
	Bookings []Booking `json:"bookings"`
}

type Service interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error)
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// Calculate derives the commission for a booking, credits the partner
	// ledger, and fires the referral override, all in one transaction.
	Calculate(ctx context.Context, bookingID string) (CalculationResult, error)
	// Reverse claws back a calculated commission after a refund.
	Reverse(ctx context.Context, bookingID string) (*Booking, error)
	ListBookings(ctx context.Context, req ListBookingsRequest) (ListBookingsResponse, error)
}

var (
	ErrBookingNotFound    = errors.New("booking_not_found")
	ErrInvalidBookingID   = errors.New("invalid_booking_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrMissingCustomerRef = errors.New("missing_customer_ref")
	ErrMissingServiceName = errors.New("missing_service_name")
	ErrIneligiblePartner  = errors.New("ineligible_partner")
	ErrAlreadyCalculated  = errors.New("commission_already_calculated")
	ErrNotCalculated      = errors.New("commission_not_calculated")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
)
