package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() commissiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *commissiondomain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, partner_id, customer_ref, service_name, amount, status,
			is_first_order_for_customer, commission_status, rate_applied,
			net_amount, commission_amount, first_order_bonus, calculated_at,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.PartnerID,
		booking.CustomerRef,
		booking.ServiceName,
		booking.Amount,
		booking.Status,
		booking.IsFirstOrder,
		booking.CommissionStatus,
		booking.RateApplied,
		booking.NetAmount,
		booking.CommissionAmount,
		booking.FirstOrderBonus,
		booking.CalculatedAt,
		booking.Metadata,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*commissiondomain.Booking, error) {
	var booking commissiondomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, partner_id, customer_ref, service_name, amount, status,
		 is_first_order_for_customer, commission_status, rate_applied,
		 net_amount, commission_amount, first_order_bonus, calculated_at,
		 metadata, created_at, updated_at
		 FROM bookings WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) MarkCalculated(ctx context.Context, db *gorm.DB, booking *commissiondomain.Booking) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET commission_status = ?, rate_applied = ?, net_amount = ?,
		     commission_amount = ?, first_order_bonus = ?, calculated_at = ?, updated_at = ?
		 WHERE id = ? AND commission_status = ?`,
		commissiondomain.CommissionStatusCalculated,
		booking.RateApplied,
		booking.NetAmount,
		booking.CommissionAmount,
		booking.FirstOrderBonus,
		booking.CalculatedAt,
		time.Now().UTC(),
		booking.ID,
		commissiondomain.CommissionStatusPending,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings SET commission_status = ?, updated_at = ?
		 WHERE id = ? AND commission_status = ?`,
		commissiondomain.CommissionStatusReversed,
		time.Now().UTC(),
		id,
		commissiondomain.CommissionStatusCalculated,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status commissiondomain.BookingStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) ListByPartner(ctx context.Context, db *gorm.DB, filter commissiondomain.ListFilter) ([]*commissiondomain.Booking, error) {
	var bookings []*commissiondomain.Booking
	stmt := db.WithContext(ctx).Model(&commissiondomain.Booking{}).
		Where("partner_id = ?", filter.PartnerID)

	if status := strings.TrimSpace(string(filter.CommissionStatus)); status != "" {
		stmt = stmt.Where("commission_status = ?", status)
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

	if err := stmt.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}
