package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *ledgerdomain.Entry) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO balance_ledger_entries (
			id, partner_id, entry_type, source_type, source_id, amount,
			balance_after, description, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partner_id, source_type, source_id) DO NOTHING`,
		entry.ID,
		entry.PartnerID,
		entry.EntryType,
		entry.SourceType,
		entry.SourceID,
		entry.Amount,
		entry.BalanceAfter,
		entry.Description,
		entry.Metadata,
		entry.CreatedAt,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, available, earned, withdrawn int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE partners
		 SET available_balance = available_balance + ?,
		     total_earned = total_earned + ?,
		     total_withdrawn = total_withdrawn + ?,
		     updated_at = ?
		 WHERE id = ? AND available_balance + ? >= 0`,
		available,
		earned,
		withdrawn,
		time.Now().UTC(),
		partnerID,
		available,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) AvailableBalance(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT available_balance FROM partners WHERE id = ?`,
		partnerID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) SetBalanceAfter(ctx context.Context, db *gorm.DB, entryID snowflake.ID, balance int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE balance_ledger_entries SET balance_after = ? WHERE id = ?`,
		balance,
		entryID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter ledgerdomain.ListFilter) ([]*ledgerdomain.Entry, error) {
	var entries []*ledgerdomain.Entry
	stmt := db.WithContext(ctx).Model(&ledgerdomain.Entry{}).
		Where("partner_id = ?", filter.PartnerID)

	if sourceType := strings.TrimSpace(string(filter.SourceType)); sourceType != "" {
		stmt = stmt.Where("source_type = ?", sourceType)
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

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumByPartner(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM balance_ledger_entries WHERE partner_id = ?`,
		partnerID,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}
