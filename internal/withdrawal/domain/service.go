package domain

import (
	"context"
	"errors"

	"github.com/tabimed/partnerpay/pkg/db/pagination"
)

// Action is an operator-side lifecycle command.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionProcess  Action = "process"
	ActionComplete Action = "complete"
)

type CreateWithdrawalRequest struct {
	PartnerID string `json:"-"`
	Amount    int64  `json:"amount"`
}

type TransitionRequest struct {
	ID               string `json:"-"`
	Action           Action `json:"-"`
	OperatorID       string `json:"-"`
	OperatorRole     string `json:"-"`
	Reason           string `json:"reason,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

type ListWithdrawalsRequest struct {
	pagination.Pagination
	PartnerID string
	Status    string
}

type ListWithdrawalsResponse struct {
	pagination.PageInfo
	Withdrawals []WithdrawalRequest `json:"withdrawals"`
}

type Service interface {
	// Request reserves the amount against the partner balance and opens a
	// pending withdrawal.
	Request(ctx context.Context, req CreateWithdrawalRequest) (*WithdrawalRequest, error)
	// Cancel lets the requesting partner withdraw a still-pending request.
	Cancel(ctx context.Context, id, partnerID string) (*WithdrawalRequest, error)
	// Transition applies an operator action to the request lifecycle.
	Transition(ctx context.Context, req TransitionRequest) (*WithdrawalRequest, error)
	GetByID(ctx context.Context, id string) (*WithdrawalRequest, error)
	List(ctx context.Context, req ListWithdrawalsRequest) (ListWithdrawalsResponse, error)
	PartnerStats(ctx context.Context, partnerID string) (Stats, error)
}

var (
	ErrWithdrawalNotFound       = errors.New("withdrawal_not_found")
	ErrInvalidWithdrawalID      = errors.New("invalid_withdrawal_id")
	ErrInvalidAmount            = errors.New("invalid_amount")
	ErrAmountBelowMinimum       = errors.New("amount_below_minimum")
	ErrKYCRequired              = errors.New("kyc_required")
	ErrBankInfoRequired         = errors.New("bank_info_required")
	ErrPendingWithdrawalExists  = errors.New("pending_withdrawal_exists")
	ErrIllegalStateTransition   = errors.New("illegal_state_transition")
	ErrPaymentReferenceRequired = errors.New("payment_reference_required")
	ErrNotRequestOwner          = errors.New("not_request_owner")
	ErrInvalidAction            = errors.New("invalid_action")
	ErrInvalidStatus            = errors.New("invalid_status")
)
