package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	withdrawaldomain "github.com/tabimed/partnerpay/internal/withdrawal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() withdrawaldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, request *withdrawaldomain.WithdrawalRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO withdrawal_requests (
			id, partner_id, amount, status, bank_name, bank_branch,
			bank_account_type, bank_account_number, bank_account_holder,
			payment_reference, rejection_reason, reviewed_by, requested_at,
			reviewed_at, processed_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.PartnerID,
		request.Amount,
		request.Status,
		request.BankName,
		request.BankBranch,
		request.BankAccountType,
		request.BankAccountNumber,
		request.BankAccountHolder,
		request.PaymentReference,
		request.RejectionReason,
		request.ReviewedBy,
		request.RequestedAt,
		request.ReviewedAt,
		request.ProcessedAt,
		request.CompletedAt,
		request.CreatedAt,
		request.UpdatedAt,
	).Error
}

const selectColumns = `id, partner_id, amount, status, bank_name, bank_branch,
	 bank_account_type, bank_account_number, bank_account_holder,
	 payment_reference, rejection_reason, reviewed_by, requested_at,
	 reviewed_at, processed_at, completed_at, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	var request withdrawaldomain.WithdrawalRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM withdrawal_requests WHERE id = ?`,
		id,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) FindInFlightByPartner(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (*withdrawaldomain.WithdrawalRequest, error) {
	var request withdrawaldomain.WithdrawalRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM withdrawal_requests
		 WHERE partner_id = ? AND status IN ?
		 ORDER BY created_at DESC LIMIT 1`,
		partnerID,
		withdrawaldomain.InFlightStatuses,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to withdrawaldomain.Status, update withdrawaldomain.StatusUpdate) (int64, error) {
	setters := []string{"status = ?", "updated_at = ?"}
	args := []any{to, time.Now().UTC()}

	if update.ReviewedBy != nil {
		setters = append(setters, "reviewed_by = ?")
		args = append(args, *update.ReviewedBy)
	}
	if update.RejectionReason != nil {
		setters = append(setters, "rejection_reason = ?")
		args = append(args, *update.RejectionReason)
	}
	if update.PaymentReference != nil {
		setters = append(setters, "payment_reference = ?")
		args = append(args, *update.PaymentReference)
	}
	if update.ReviewedAt != nil {
		setters = append(setters, "reviewed_at = ?")
		args = append(args, update.ReviewedAt.UTC())
	}
	if update.ProcessedAt != nil {
		setters = append(setters, "processed_at = ?")
		args = append(args, update.ProcessedAt.UTC())
	}
	if update.CompletedAt != nil {
		setters = append(setters, "completed_at = ?")
		args = append(args, update.CompletedAt.UTC())
	}

	args = append(args, id, from)
	res := db.WithContext(ctx).Exec(
		`UPDATE withdrawal_requests SET `+strings.Join(setters, ", ")+`
		 WHERE id = ? AND status = ?`,
		args...,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) AddWithdrawn(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partners SET total_withdrawn = total_withdrawn + ?, updated_at = ? WHERE id = ?`,
		amount,
		time.Now().UTC(),
		partnerID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter withdrawaldomain.ListFilter) ([]*withdrawaldomain.WithdrawalRequest, error) {
	var requests []*withdrawaldomain.WithdrawalRequest
	stmt := db.WithContext(ctx).Model(&withdrawaldomain.WithdrawalRequest{})

	if filter.PartnerID != 0 {
		stmt = stmt.Where("partner_id = ?", filter.PartnerID)
	}
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

	if err := stmt.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (withdrawaldomain.Stats, error) {
	var stats withdrawaldomain.Stats
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(amount), 0) AS total_requested,
		   COALESCE(SUM(CASE WHEN status = 'completed' THEN amount ELSE 0 END), 0) AS total_completed,
		   COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed_count,
		   COALESCE(SUM(CASE WHEN status IN ('pending', 'approved', 'processing') THEN amount ELSE 0 END), 0) AS in_flight_amount
		 FROM withdrawal_requests WHERE partner_id = ?`,
		partnerID,
	).Scan(&stats).Error
	if err != nil {
		return withdrawaldomain.Stats{}, err
	}
	return stats, nil
}
