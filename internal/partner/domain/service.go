package domain

import (
	"context"
	"errors"
)

type CreatePartnerRequest struct {
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	ReferrerID  string         `json:"referrer_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type UpgradeTierRequest struct {
	PartnerID  string `json:"-"`
	TargetTier string `json:"target_tier"`
}

type SubscriptionEventRequest struct {
	PartnerID      string `json:"partner_id"`
	ProviderStatus string `json:"status"`
	EventID        string `json:"event_id,omitempty"`
}

type SetBankAccountRequest struct {
	PartnerID string `json:"-"`
	BankAccount
}

type BalanceSummary struct {
	AvailableBalance int64 `json:"available_balance"`
	TotalEarned      int64 `json:"total_earned"`
	TotalWithdrawn   int64 `json:"total_withdrawn"`
}

type Service interface {
	Create(ctx context.Context, req CreatePartnerRequest) (*Partner, error)
	GetByID(ctx context.Context, id string) (*Partner, error)
	Approve(ctx context.Context, id string) (*Partner, error)
	Suspend(ctx context.Context, id string) (*Partner, error)
	UpgradeTier(ctx context.Context, req UpgradeTierRequest) (*Partner, error)
	RecordEntryFeePayment(ctx context.Context, id string) (*Partner, error)
	RecordSubscriptionEvent(ctx context.Context, req SubscriptionEventRequest) (*Partner, error)
	SetBankAccount(ctx context.Context, req SetBankAccountRequest) (*Partner, error)
	SubmitKYC(ctx context.Context, id string) (*Partner, error)
	ReviewKYC(ctx context.Context, id string, approved bool) (*Partner, error)
	BalanceSummary(ctx context.Context, id string) (BalanceSummary, error)
}

var (
	ErrPartnerNotFound       = errors.New("partner_not_found")
	ErrInvalidPartnerID      = errors.New("invalid_partner_id")
	ErrInvalidReferrer       = errors.New("invalid_referrer")
	ErrMissingDisplayName    = errors.New("missing_display_name")
	ErrMissingEmail          = errors.New("missing_email")
	ErrPartnerNotApproved    = errors.New("partner_not_approved")
	ErrAlreadyAtTier         = errors.New("already_at_tier")
	ErrInvalidTargetTier     = errors.New("invalid_target_tier")
	ErrEntryFeeRequired      = errors.New("entry_fee_required")
	ErrSubscriptionRequired  = errors.New("subscription_required")
	ErrInvalidProviderStatus = errors.New("invalid_provider_status")
	ErrBankInfoIncomplete    = errors.New("bank_info_incomplete")
	ErrKYCNotPending         = errors.New("kyc_not_pending")
	ErrKYCAlreadyApproved    = errors.New("kyc_already_approved")
)
