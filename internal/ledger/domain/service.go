package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type PostRequest struct {
	PartnerID   snowflake.ID
	SourceType  SourceType
	SourceID    string
	Amount      int64
	Description string
	Metadata    map[string]any
}

type ListEntriesRequest struct {
	pagination.Pagination
	PartnerID  string
	SourceType string
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Service interface {
	// Post records a ledger line and adjusts the partner's cached totals in
	// a single transaction. Returns false when the (partner, source_type,
	// source_id) key was already posted.
	Post(ctx context.Context, req PostRequest) (bool, error)
	// PostTx is Post running inside a caller-owned transaction.
	PostTx(ctx context.Context, tx *gorm.DB, req PostRequest) (bool, error)
	List(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	// Reconcile compares the ledger sum against the cached available
	// balance and returns the drift, which must be zero.
	Reconcile(ctx context.Context, partnerID string) (int64, error)
}

var (
	ErrInvalidPartner      = errors.New("invalid_partner")
	ErrInvalidSourceType   = errors.New("invalid_source_type")
	ErrInvalidSourceID     = errors.New("invalid_source_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
