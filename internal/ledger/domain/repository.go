package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEntry appends a ledger line, ignoring the write when the
	// (partner, source_type, source_id) key already exists. Returns the
	// number of rows inserted.
	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) (int64, error)
	// ApplyDelta adjusts the cached totals on the partner row, refusing any
	// change that would drive the available balance negative. Returns the
	// number of rows updated.
	ApplyDelta(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, available, earned, withdrawn int64) (int64, error)
	AvailableBalance(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (int64, error)
	SetBalanceAfter(ctx context.Context, db *gorm.DB, entryID snowflake.ID, balance int64) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
	SumByPartner(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) (int64, error)
}

type EntryCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	PartnerID  snowflake.ID
	SourceType SourceType
	Cursor     *EntryCursor
	Limit      int
}
