package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/tabimed/partnerpay/internal/authorization"
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	withdrawaldomain "github.com/tabimed/partnerpay/internal/withdrawal/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{newValidationError("amount", "invalid_amount", "invalid value"), http.StatusBadRequest},
		{partnerdomain.ErrInvalidPartnerID, http.StatusBadRequest},
		{commissiondomain.ErrMissingCustomerRef, http.StatusBadRequest},
		{withdrawaldomain.ErrInvalidAction, http.StatusBadRequest},

		{ErrUnauthorized, http.StatusUnauthorized},

		{ErrForbidden, http.StatusForbidden},
		{authorization.ErrForbidden, http.StatusForbidden},
		{withdrawaldomain.ErrNotRequestOwner, http.StatusForbidden},

		{partnerdomain.ErrAlreadyAtTier, http.StatusConflict},
		{partnerdomain.ErrKYCAlreadyApproved, http.StatusConflict},
		{commissiondomain.ErrAlreadyCalculated, http.StatusConflict},
		{withdrawaldomain.ErrPendingWithdrawalExists, http.StatusConflict},
		{withdrawaldomain.ErrIllegalStateTransition, http.StatusConflict},

		{partnerdomain.ErrPartnerNotApproved, http.StatusUnprocessableEntity},
		{partnerdomain.ErrEntryFeeRequired, http.StatusUnprocessableEntity},
		{commissiondomain.ErrIneligiblePartner, http.StatusUnprocessableEntity},
		{withdrawaldomain.ErrKYCRequired, http.StatusUnprocessableEntity},
		{withdrawaldomain.ErrAmountBelowMinimum, http.StatusUnprocessableEntity},
		{ledgerdomain.ErrInsufficientBalance, http.StatusUnprocessableEntity},

		{partnerdomain.ErrPartnerNotFound, http.StatusNotFound},
		{commissiondomain.ErrBookingNotFound, http.StatusNotFound},
		{withdrawaldomain.ErrWithdrawalNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},

		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
	}
}

func TestMapErrorPayloads(t *testing.T) {
	_, payload := mapError(newValidationError("amount", "invalid_amount", "invalid value"))
	assert.Equal(t, "validation_error", payload.Type)
	assert.Len(t, payload.Errors, 1)
	assert.Equal(t, "amount", payload.Errors[0].Field)

	// Bare domain sentinels get a field derived from their code.
	_, payload = mapError(partnerdomain.ErrInvalidTargetTier)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Len(t, payload.Errors, 1)
	assert.Equal(t, "target_tier", payload.Errors[0].Field)
	assert.Equal(t, "invalid_target_tier", payload.Errors[0].Code)

	// Conflicts and preconditions surface the sentinel itself.
	_, payload = mapError(commissiondomain.ErrAlreadyCalculated)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "commission_already_calculated", payload.Message)

	_, payload = mapError(withdrawaldomain.ErrKYCRequired)
	assert.Equal(t, "precondition_failed", payload.Type)
	assert.Equal(t, "kyc_required", payload.Message)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(withdrawaldomain.ErrAmountBelowMinimum)
	assert.Equal(t, "precondition_failed", typ)
	assert.Equal(t, "amount_below_minimum", code)

	typ, code = classifyErrorForLog(partnerdomain.ErrInvalidPartnerID)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_partner_id", code)

	typ, code = classifyErrorForLog(nil)
	assert.Empty(t, typ)
	assert.Empty(t, code)
}
