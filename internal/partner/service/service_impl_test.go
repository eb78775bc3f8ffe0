package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	auditrepository "github.com/tabimed/partnerpay/internal/audit/repository"
	auditservice "github.com/tabimed/partnerpay/internal/audit/service"
	"github.com/tabimed/partnerpay/internal/clock"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/internal/partner/repository"
	"github.com/tabimed/partnerpay/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (partnerdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partnerdomain.Partner{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fakeClock,
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	})
	return svc, db, fakeClock
}

func createApproved(t *testing.T, svc partnerdomain.Service) *partnerdomain.Partner {
	t.Helper()
	partner, err := svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Hanako Guide",
		Email:       "hanako@example.com",
	})
	require.NoError(t, err)
	approved, err := svc.Approve(context.Background(), partner.ID.String())
	require.NoError(t, err)
	return approved
}

func TestCreateDefaults(t *testing.T) {
	svc, db, _ := newTestService(t)

	partner, err := svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Taro Guide",
		Email:       "taro@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.StatusPending, partner.Status)
	assert.Equal(t, tier.CodeGrowth, partner.Tier)
	assert.Equal(t, partnerdomain.SubscriptionStatusInactive, partner.SubscriptionStatus)
	assert.Equal(t, partnerdomain.EntryFeeStatusNone, partner.EntryFeeStatus)
	assert.Equal(t, partnerdomain.KYCStatusNone, partner.KYCStatus)
	assert.Nil(t, partner.ReferrerID)

	var stored partnerdomain.Partner
	require.NoError(t, db.First(&stored, "id = ?", partner.ID).Error)
	assert.Equal(t, "Taro Guide", stored.DisplayName)

	_, err = svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "No Name",
		Email:       "",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrMissingEmail)

	_, err = svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "",
		Email:       "x@example.com",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrMissingDisplayName)
}

func TestCreateWithReferrer(t *testing.T) {
	svc, _, _ := newTestService(t)

	referrer := createApproved(t, svc)

	referred, err := svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Referred Guide",
		Email:       "referred@example.com",
		ReferrerID:  referrer.ID.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, referred.ReferrerID)
	assert.Equal(t, referrer.ID, *referred.ReferrerID)

	_, err = svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Bad Referrer",
		Email:       "bad@example.com",
		ReferrerID:  "999999999999999999",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrInvalidReferrer)

	_, err = svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Bad Referrer",
		Email:       "bad@example.com",
		ReferrerID:  "not-a-snowflake",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrInvalidReferrer)
}

func TestApproveAndSuspend(t *testing.T) {
	svc, _, _ := newTestService(t)

	partner, err := svc.Create(context.Background(), partnerdomain.CreatePartnerRequest{
		DisplayName: "Lifecycle Guide",
		Email:       "lifecycle@example.com",
	})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.StatusApproved, approved.Status)

	// Approving twice is a no-op, not an error.
	again, err := svc.Approve(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.StatusApproved, again.Status)

	suspended, err := svc.Suspend(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.StatusSuspended, suspended.Status)

	_, err = svc.Approve(context.Background(), "12")
	assert.ErrorIs(t, err, partnerdomain.ErrPartnerNotFound)
}

func TestUpgradeTierPreconditionOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	partner, err := svc.Create(ctx, partnerdomain.CreatePartnerRequest{
		DisplayName: "Upgrade Guide",
		Email:       "upgrade@example.com",
	})
	require.NoError(t, err)

	_, err = svc.UpgradeTier(ctx, partnerdomain.UpgradeTierRequest{
		PartnerID:  partner.ID.String(),
		TargetTier: "platinum",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrInvalidTargetTier)

	// Downgrading through this endpoint is not a thing.
	_, err = svc.UpgradeTier(ctx, partnerdomain.UpgradeTierRequest{
		PartnerID:  partner.ID.String(),
		TargetTier: string(tier.CodeGrowth),
	})
	assert.ErrorIs(t, err, partnerdomain.ErrInvalidTargetTier)

	req := partnerdomain.UpgradeTierRequest{
		PartnerID:  partner.ID.String(),
		TargetTier: string(tier.CodePartner),
	}

	_, err = svc.UpgradeTier(ctx, req)
	assert.ErrorIs(t, err, partnerdomain.ErrPartnerNotApproved)

	_, err = svc.Approve(ctx, partner.ID.String())
	require.NoError(t, err)

	_, err = svc.UpgradeTier(ctx, req)
	assert.ErrorIs(t, err, partnerdomain.ErrEntryFeeRequired)

	_, err = svc.RecordEntryFeePayment(ctx, partner.ID.String())
	require.NoError(t, err)

	_, err = svc.UpgradeTier(ctx, req)
	assert.ErrorIs(t, err, partnerdomain.ErrSubscriptionRequired)

	_, err = svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "active",
	})
	require.NoError(t, err)

	upgraded, err := svc.UpgradeTier(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tier.CodePartner, upgraded.Tier)

	_, err = svc.UpgradeTier(ctx, req)
	assert.ErrorIs(t, err, partnerdomain.ErrAlreadyAtTier)
}

func TestRecordEntryFeePaymentIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	partner := createApproved(t, svc)

	first, err := svc.RecordEntryFeePayment(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.EntryFeeStatusCompleted, first.EntryFeeStatus)

	second, err := svc.RecordEntryFeePayment(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.EntryFeeStatusCompleted, second.EntryFeeStatus)
}

func TestRecordSubscriptionEventMapping(t *testing.T) {
	svc, _, _ := newTestService(t)
	partner := createApproved(t, svc)
	ctx := context.Background()

	updated, err := svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.SubscriptionStatusActive, updated.SubscriptionStatus)

	// "unpaid" collapses into canceled.
	updated, err = svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "unpaid",
	})
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.SubscriptionStatusCanceled, updated.SubscriptionStatus)

	_, err = svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "trialing",
	})
	assert.ErrorIs(t, err, partnerdomain.ErrInvalidProviderStatus)
}

func TestRecordSubscriptionEventRedeliveryIsNoOp(t *testing.T) {
	svc, db, _ := newTestService(t)
	partner := createApproved(t, svc)
	ctx := context.Background()

	event := partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "active",
		EventID:        "evt_1",
	}
	_, err := svc.RecordSubscriptionEvent(ctx, event)
	require.NoError(t, err)

	_, err = svc.RecordSubscriptionEvent(ctx, event)
	require.NoError(t, err)

	var stored partnerdomain.Partner
	require.NoError(t, db.First(&stored, "id = ?", partner.ID).Error)
	assert.Equal(t, partnerdomain.SubscriptionStatusActive, stored.SubscriptionStatus)
}

func TestCancellationTearsDownPaidTier(t *testing.T) {
	svc, db, _ := newTestService(t)
	partner := createApproved(t, svc)
	ctx := context.Background()

	_, err := svc.RecordEntryFeePayment(ctx, partner.ID.String())
	require.NoError(t, err)
	_, err = svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	_, err = svc.UpgradeTier(ctx, partnerdomain.UpgradeTierRequest{
		PartnerID:  partner.ID.String(),
		TargetTier: string(tier.CodePartner),
	})
	require.NoError(t, err)

	// past_due keeps the stored tier; only the effective tier degrades.
	updated, err := svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "past_due",
	})
	require.NoError(t, err)
	assert.Equal(t, tier.CodePartner, updated.Tier)
	assert.Equal(t, tier.CodeGrowth, updated.EffectiveTier())

	// Cancellation tears the tier down for real and resets the entry fee,
	// so a later re-upgrade pays it again.
	updated, err = svc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "canceled",
	})
	require.NoError(t, err)
	assert.Equal(t, tier.CodeGrowth, updated.Tier)
	assert.Equal(t, partnerdomain.EntryFeeStatusNone, updated.EntryFeeStatus)

	var stored partnerdomain.Partner
	require.NoError(t, db.First(&stored, "id = ?", partner.ID).Error)
	assert.Equal(t, tier.CodeGrowth, stored.Tier)
	assert.Equal(t, partnerdomain.EntryFeeStatusNone, stored.EntryFeeStatus)
	assert.Equal(t, partnerdomain.SubscriptionStatusCanceled, stored.SubscriptionStatus)
}

func TestEffectiveRate(t *testing.T) {
	partner := &partnerdomain.Partner{
		Tier:               tier.CodePartner,
		SubscriptionStatus: partnerdomain.SubscriptionStatusActive,
	}
	partnerRate, err := tier.RateFor(tier.CodePartner)
	require.NoError(t, err)
	assert.True(t, partner.EffectiveRate().Equal(partnerRate))

	// A lapsed subscription drops the rate back to growth immediately.
	partner.SubscriptionStatus = partnerdomain.SubscriptionStatusPastDue
	assert.True(t, partner.EffectiveRate().Equal(tier.GrowthRate()))

	partner.Tier = tier.CodeGrowth
	partner.SubscriptionStatus = partnerdomain.SubscriptionStatusActive
	assert.True(t, partner.EffectiveRate().Equal(tier.GrowthRate()))
}

func TestSetBankAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	partner := createApproved(t, svc)
	ctx := context.Background()

	_, err := svc.SetBankAccount(ctx, partnerdomain.SetBankAccountRequest{
		PartnerID: partner.ID.String(),
		BankAccount: partnerdomain.BankAccount{
			BankName:      "三菱UFJ銀行",
			BankBranch:    "渋谷支店",
			AccountType:   "普通",
			AccountNumber: "1234567",
		},
	})
	assert.ErrorIs(t, err, partnerdomain.ErrBankInfoIncomplete)

	updated, err := svc.SetBankAccount(ctx, partnerdomain.SetBankAccountRequest{
		PartnerID: partner.ID.String(),
		BankAccount: partnerdomain.BankAccount{
			BankName:      "三菱UFJ銀行",
			BankBranch:    "渋谷支店",
			AccountType:   "普通",
			AccountNumber: "1234567",
			AccountHolder: "ヤマダ ハナコ",
		},
	})
	require.NoError(t, err)
	assert.True(t, updated.BankComplete())
}

func TestKYCLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	partner := createApproved(t, svc)
	ctx := context.Background()

	_, err := svc.ReviewKYC(ctx, partner.ID.String(), true)
	assert.ErrorIs(t, err, partnerdomain.ErrKYCNotPending)

	submitted, err := svc.SubmitKYC(ctx, partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.KYCStatusPending, submitted.KYCStatus)

	// Resubmitting while pending is a no-op.
	submitted, err = svc.SubmitKYC(ctx, partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.KYCStatusPending, submitted.KYCStatus)

	rejected, err := svc.ReviewKYC(ctx, partner.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.KYCStatusRejected, rejected.KYCStatus)

	// Rejection is not terminal; the partner may try again.
	_, err = svc.SubmitKYC(ctx, partner.ID.String())
	require.NoError(t, err)
	approved, err := svc.ReviewKYC(ctx, partner.ID.String(), true)
	require.NoError(t, err)
	assert.Equal(t, partnerdomain.KYCStatusApproved, approved.KYCStatus)

	_, err = svc.SubmitKYC(ctx, partner.ID.String())
	assert.ErrorIs(t, err, partnerdomain.ErrKYCAlreadyApproved)
}

func TestBalanceSummary(t *testing.T) {
	svc, db, _ := newTestService(t)
	partner := createApproved(t, svc)

	require.NoError(t, db.Model(&partnerdomain.Partner{}).
		Where("id = ?", partner.ID).
		Updates(map[string]any{
			"available_balance": 12000,
			"total_earned":      30000,
			"total_withdrawn":   18000,
		}).Error)

	summary, err := svc.BalanceSummary(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(12000), summary.AvailableBalance)
	assert.Equal(t, int64(30000), summary.TotalEarned)
	assert.Equal(t, int64(18000), summary.TotalWithdrawn)
}
