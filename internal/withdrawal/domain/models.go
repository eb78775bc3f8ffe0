// Package domain models the withdrawal request lifecycle. Requested funds are
// reserved against the available balance immediately and given back only on
// rejection or cancellation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// InFlightStatuses are the states that count against the one-at-a-time rule.
// A partial unique index on partner_id enforces it at the database level.
var InFlightStatuses = []Status{StatusPending, StatusApproved, StatusProcessing}

// transitions is the full state table. Everything else is illegal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusCompleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// WithdrawalRequest carries a bank snapshot taken at request time, so later
// edits to the partner's bank details never redirect an in-flight payout.
type WithdrawalRequest struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	PartnerID snowflake.ID `gorm:"not null;index"`
	Amount    int64        `gorm:"not null"`
	Status    Status       `gorm:"type:text;not null;default:pending;index"`

	BankName          string `gorm:"type:text;not null"`
	BankBranch        string `gorm:"type:text;not null"`
	BankAccountType   string `gorm:"type:text;not null"`
	BankAccountNumber string `gorm:"type:text;not null"`
	BankAccountHolder string `gorm:"type:text;not null"`

	PaymentReference *string `gorm:"type:text"`
	RejectionReason  *string `gorm:"type:text"`
	ReviewedBy       *string `gorm:"type:text"`

	RequestedAt time.Time  `gorm:"not null"`
	ReviewedAt  *time.Time `gorm:""`
	ProcessedAt *time.Time `gorm:""`
	CompletedAt *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }
