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
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	"github.com/tabimed/partnerpay/internal/commission/repository"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	ledgerrepository "github.com/tabimed/partnerpay/internal/ledger/repository"
	ledgerservice "github.com/tabimed/partnerpay/internal/ledger/service"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	partnerrepository "github.com/tabimed/partnerpay/internal/partner/repository"
	partnerservice "github.com/tabimed/partnerpay/internal/partner/service"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	referralrepository "github.com/tabimed/partnerpay/internal/referral/repository"
	referralservice "github.com/tabimed/partnerpay/internal/referral/service"
	"github.com/shopspring/decimal"
	"github.com/tabimed/partnerpay/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	partnerSvc    partnerdomain.Service
	commissionSvc commissiondomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partnerdomain.Partner{},
		&commissiondomain.Booking{},
		&ledgerdomain.Entry{},
		&referraldomain.ReferralReward{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), AuditSvc: auditSvc,
	})
	partnerSvc := partnerservice.NewService(partnerservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Repo: partnerrepository.Provide(), AuditSvc: auditSvc,
	})
	referralSvc := referralservice.NewService(referralservice.Params{
		DB: db, Log: log, GenID: node,
		Repo: referralrepository.Provide(), LedgerSvc: ledgerSvc, AuditSvc: auditSvc,
	})
	commissionSvc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Repo:       repository.Provide(),
		PartnerSvc: partnerSvc, LedgerSvc: ledgerSvc, ReferralSvc: referralSvc,
		AuditSvc: auditSvc,
	})

	return &testEnv{db: db, partnerSvc: partnerSvc, commissionSvc: commissionSvc}
}

func (e *testEnv) approvedPartner(t *testing.T, referrerID string) *partnerdomain.Partner {
	t.Helper()
	ctx := context.Background()

	partner, err := e.partnerSvc.Create(ctx, partnerdomain.CreatePartnerRequest{
		DisplayName: "Guide",
		Email:       "guide@example.com",
		ReferrerID:  referrerID,
	})
	require.NoError(t, err)
	_, err = e.partnerSvc.Approve(ctx, partner.ID.String())
	require.NoError(t, err)

	fresh, err := e.partnerSvc.GetByID(ctx, partner.ID.String())
	require.NoError(t, err)
	return fresh
}

func (e *testEnv) partnerTierPartner(t *testing.T, referrerID string) *partnerdomain.Partner {
	t.Helper()
	ctx := context.Background()

	partner := e.approvedPartner(t, referrerID)
	_, err := e.partnerSvc.RecordEntryFeePayment(ctx, partner.ID.String())
	require.NoError(t, err)
	_, err = e.partnerSvc.RecordSubscriptionEvent(ctx, partnerdomain.SubscriptionEventRequest{
		PartnerID:      partner.ID.String(),
		ProviderStatus: "active",
	})
	require.NoError(t, err)
	_, err = e.partnerSvc.UpgradeTier(ctx, partnerdomain.UpgradeTierRequest{
		PartnerID:  partner.ID.String(),
		TargetTier: string(tier.CodePartner),
	})
	require.NoError(t, err)

	fresh, err := e.partnerSvc.GetByID(ctx, partner.ID.String())
	require.NoError(t, err)
	return fresh
}

func (e *testEnv) booking(t *testing.T, partnerID string, amount int64, firstOrder bool) *commissiondomain.Booking {
	t.Helper()
	booking, err := e.commissionSvc.CreateBooking(context.Background(), commissiondomain.CreateBookingRequest{
		PartnerID:    partnerID,
		CustomerRef:  "cust-001",
		ServiceName:  "Kyoto private tour",
		Amount:       amount,
		IsFirstOrder: firstOrder,
	})
	require.NoError(t, err)
	return booking
}

func (e *testEnv) balance(t *testing.T, partnerID snowflake.ID) int64 {
	t.Helper()
	var partner partnerdomain.Partner
	require.NoError(t, e.db.First(&partner, "id = ?", partnerID).Error)
	return partner.AvailableBalance
}

func TestCalculatePartnerTierWithReferralOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := env.approvedPartner(t, "")
	partner := env.partnerTierPartner(t, referrer.ID.String())
	booking := env.booking(t, partner.ID.String(), 220000, false)

	result, err := env.commissionSvc.Calculate(ctx, booking.ID.String())
	require.NoError(t, err)

	// ¥220,000 inclusive -> ¥200,000 net. Partner tier earns 20%, and the
	// referrer gets 2% of what the booking credited.
	assert.Equal(t, int64(200000), result.NetAmount)
	assert.Equal(t, int64(40000), result.CommissionAmount)
	assert.Equal(t, int64(0), result.FirstOrderBonus)
	assert.Equal(t, int64(40000), result.TotalCredited)
	assert.Equal(t, int64(800), result.ReferralReward)
	assert.True(t, decimal.RequireFromString(result.RateApplied).Equal(decimal.RequireFromString("0.20")))

	assert.Equal(t, int64(40000), env.balance(t, partner.ID))
	assert.Equal(t, int64(800), env.balance(t, referrer.ID))

	var reward referraldomain.ReferralReward
	require.NoError(t, env.db.First(&reward, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, referraldomain.RewardStatusCredited, reward.Status)
	assert.Equal(t, referrer.ID, reward.ReferrerID)

	stored, err := env.commissionSvc.GetBooking(ctx, booking.ID.String())
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.CommissionStatusCalculated, stored.CommissionStatus)
	require.NotNil(t, stored.CalculatedAt)
}

func TestReferralRewardCoversFirstOrderBonus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := env.approvedPartner(t, "")
	partner := env.approvedPartner(t, referrer.ID.String())
	booking := env.booking(t, partner.ID.String(), 220000, true)

	result, err := env.commissionSvc.Calculate(ctx, booking.ID.String())
	require.NoError(t, err)

	// Growth tier on a first order: 20,000 commission + 10,000 bonus. The
	// override is 2% of the full 30,000 credited, not of the commission
	// alone.
	assert.Equal(t, int64(20000), result.CommissionAmount)
	assert.Equal(t, int64(10000), result.FirstOrderBonus)
	assert.Equal(t, int64(30000), result.TotalCredited)
	assert.Equal(t, int64(600), result.ReferralReward)
	assert.Equal(t, int64(600), env.balance(t, referrer.ID))
}

func TestCalculateGrowthTierNoReferrer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	partner := env.approvedPartner(t, "")
	booking := env.booking(t, partner.ID.String(), 110000, true)

	result, err := env.commissionSvc.Calculate(ctx, booking.ID.String())
	require.NoError(t, err)

	assert.Equal(t, int64(100000), result.NetAmount)
	assert.Equal(t, int64(10000), result.CommissionAmount)
	assert.Equal(t, int64(5000), result.FirstOrderBonus)
	assert.Equal(t, int64(15000), result.TotalCredited)
	assert.Equal(t, int64(0), result.ReferralReward)
	assert.True(t, decimal.RequireFromString(result.RateApplied).Equal(decimal.RequireFromString("0.10")))
}

func TestFirstOrderBonusFollowsBookingFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	partner := env.approvedPartner(t, "")

	// The booking workflow knows the customer; the flag it sets is the only
	// thing that triggers the bonus.
	first := env.booking(t, partner.ID.String(), 110000, true)
	result, err := env.commissionSvc.Calculate(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), result.FirstOrderBonus)
	assert.Equal(t, int64(15000), result.TotalCredited)

	repeat := env.booking(t, partner.ID.String(), 110000, false)
	result, err = env.commissionSvc.Calculate(ctx, repeat.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.FirstOrderBonus)
	assert.Equal(t, int64(10000), result.TotalCredited)
}

func TestCalculateIsNotRepeatable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	partner := env.approvedPartner(t, "")
	booking := env.booking(t, partner.ID.String(), 110000, true)

	_, err := env.commissionSvc.Calculate(ctx, booking.ID.String())
	require.NoError(t, err)

	_, err = env.commissionSvc.Calculate(ctx, booking.ID.String())
	assert.ErrorIs(t, err, commissiondomain.ErrAlreadyCalculated)

	// The balance keeps the single credit.
	assert.Equal(t, int64(15000), env.balance(t, partner.ID))
}

func TestCalculateIneligibleBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Booking without a partner attribution.
	direct := env.booking(t, "", 110000, false)
	_, err := env.commissionSvc.Calculate(ctx, direct.ID.String())
	assert.ErrorIs(t, err, commissiondomain.ErrIneligiblePartner)

	// Suspended partners earn nothing.
	partner := env.approvedPartner(t, "")
	booking := env.booking(t, partner.ID.String(), 110000, false)
	_, err = env.partnerSvc.Suspend(ctx, partner.ID.String())
	require.NoError(t, err)
	_, err = env.commissionSvc.Calculate(ctx, booking.ID.String())
	assert.ErrorIs(t, err, commissiondomain.ErrIneligiblePartner)

	_, err = env.commissionSvc.Calculate(ctx, "404404404")
	assert.ErrorIs(t, err, commissiondomain.ErrBookingNotFound)
}

func TestReverseClawsBackCommissionAndReferral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := env.approvedPartner(t, "")
	partner := env.partnerTierPartner(t, referrer.ID.String())
	booking := env.booking(t, partner.ID.String(), 220000, true)

	_, err := env.commissionSvc.Calculate(ctx, booking.ID.String())
	require.NoError(t, err)
	require.Equal(t, int64(50000), env.balance(t, partner.ID))
	require.Equal(t, int64(1000), env.balance(t, referrer.ID))

	reversed, err := env.commissionSvc.Reverse(ctx, booking.ID.String())
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.CommissionStatusReversed, reversed.CommissionStatus)
	assert.Equal(t, commissiondomain.BookingStatusRefunded, reversed.Status)

	assert.Equal(t, int64(0), env.balance(t, partner.ID))
	assert.Equal(t, int64(0), env.balance(t, referrer.ID))

	var reward referraldomain.ReferralReward
	require.NoError(t, env.db.First(&reward, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, referraldomain.RewardStatusReversed, reward.Status)

	// A second reversal finds nothing to undo.
	_, err = env.commissionSvc.Reverse(ctx, booking.ID.String())
	assert.ErrorIs(t, err, commissiondomain.ErrNotCalculated)
}

func TestReverseRequiresCalculatedCommission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	partner := env.approvedPartner(t, "")
	booking := env.booking(t, partner.ID.String(), 110000, false)

	_, err := env.commissionSvc.Reverse(ctx, booking.ID.String())
	assert.ErrorIs(t, err, commissiondomain.ErrNotCalculated)
}

func TestCreateBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.commissionSvc.CreateBooking(ctx, commissiondomain.CreateBookingRequest{
		ServiceName: "Tour", Amount: 1000,
	})
	assert.ErrorIs(t, err, commissiondomain.ErrMissingCustomerRef)

	_, err = env.commissionSvc.CreateBooking(ctx, commissiondomain.CreateBookingRequest{
		CustomerRef: "c", Amount: 1000,
	})
	assert.ErrorIs(t, err, commissiondomain.ErrMissingServiceName)

	_, err = env.commissionSvc.CreateBooking(ctx, commissiondomain.CreateBookingRequest{
		CustomerRef: "c", ServiceName: "Tour", Amount: 0,
	})
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidAmount)
}
