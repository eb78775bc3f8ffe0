package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	auditrepository "github.com/tabimed/partnerpay/internal/audit/repository"
	auditservice "github.com/tabimed/partnerpay/internal/audit/service"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	ledgerrepository "github.com/tabimed/partnerpay/internal/ledger/repository"
	ledgerservice "github.com/tabimed/partnerpay/internal/ledger/service"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"github.com/tabimed/partnerpay/internal/referral/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (referraldomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partnerdomain.Partner{},
		&referraldomain.ReferralReward{},
		&ledgerdomain.Entry{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), AuditSvc: auditSvc,
	})
	svc := NewService(Params{
		DB: db, Log: log, GenID: node,
		Repo: repository.Provide(), LedgerSvc: ledgerSvc, AuditSvc: auditSvc,
	})
	return svc, db, node
}

func seedReferrer(t *testing.T, db *gorm.DB, node *snowflake.Node) *partnerdomain.Partner {
	t.Helper()
	partner := &partnerdomain.Partner{
		ID:          node.Generate(),
		DisplayName: "Referrer",
		Email:       "referrer@example.com",
		Status:      partnerdomain.StatusApproved,
	}
	require.NoError(t, db.Create(partner).Error)
	return partner
}

func referrerBalance(t *testing.T, db *gorm.DB, id snowflake.ID) int64 {
	t.Helper()
	var partner partnerdomain.Partner
	require.NoError(t, db.First(&partner, "id = ?", id).Error)
	return partner.AvailableBalance
}

func TestCreateForBookingCreditsReferrer(t *testing.T) {
	svc, db, node := newTestService(t)
	referrer := seedReferrer(t, db, node)
	bookingID := node.Generate()

	var reward *referraldomain.ReferralReward
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		reward, err = svc.CreateForBookingTx(context.Background(), tx, referraldomain.CreateRewardRequest{
			BookingID:         bookingID,
			ReferrerID:        referrer.ID,
			ReferredPartnerID: node.Generate(),
			CommissionAmount:  40000,
		})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, reward)
	assert.Equal(t, int64(800), reward.RewardAmount)
	assert.Equal(t, referraldomain.RewardStatusCredited, reward.Status)

	assert.Equal(t, int64(800), referrerBalance(t, db, referrer.ID))

	found, err := svc.GetByBookingID(context.Background(), bookingID.String())
	require.NoError(t, err)
	assert.Equal(t, reward.ID, found.ID)
}

func TestCreateForBookingSkipsZeroRounding(t *testing.T) {
	svc, db, node := newTestService(t)
	referrer := seedReferrer(t, db, node)
	bookingID := node.Generate()

	// 2% of ¥24 rounds to ¥0; no reward row, no ledger line.
	err := db.Transaction(func(tx *gorm.DB) error {
		reward, err := svc.CreateForBookingTx(context.Background(), tx, referraldomain.CreateRewardRequest{
			BookingID:         bookingID,
			ReferrerID:        referrer.ID,
			ReferredPartnerID: node.Generate(),
			CommissionAmount:  24,
		})
		require.NoError(t, err)
		assert.Nil(t, reward)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), referrerBalance(t, db, referrer.ID))
	_, err = svc.GetByBookingID(context.Background(), bookingID.String())
	assert.ErrorIs(t, err, referraldomain.ErrRewardNotFound)
}

func TestCreateForBookingIsIdempotentPerBooking(t *testing.T) {
	svc, db, node := newTestService(t)
	referrer := seedReferrer(t, db, node)
	bookingID := node.Generate()

	req := referraldomain.CreateRewardRequest{
		BookingID:         bookingID,
		ReferrerID:        referrer.ID,
		ReferredPartnerID: node.Generate(),
		CommissionAmount:  10000,
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.CreateForBookingTx(context.Background(), tx, req)
			return err
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&referraldomain.ReferralReward{}).
		Where("booking_id = ?", bookingID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(200), referrerBalance(t, db, referrer.ID))
}

func TestCreateForBookingValidation(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreateForBookingTx(ctx, tx, referraldomain.CreateRewardRequest{
			ReferrerID: node.Generate(), ReferredPartnerID: node.Generate(), CommissionAmount: 100,
		})
		assert.ErrorIs(t, err, referraldomain.ErrInvalidBookingID)

		_, err = svc.CreateForBookingTx(ctx, tx, referraldomain.CreateRewardRequest{
			BookingID: node.Generate(), ReferredPartnerID: node.Generate(), CommissionAmount: 100,
		})
		assert.ErrorIs(t, err, referraldomain.ErrInvalidReferrer)

		_, err = svc.CreateForBookingTx(ctx, tx, referraldomain.CreateRewardRequest{
			BookingID: node.Generate(), ReferrerID: node.Generate(), ReferredPartnerID: node.Generate(),
		})
		assert.ErrorIs(t, err, referraldomain.ErrInvalidCommission)
		return nil
	})
	require.NoError(t, err)
}

func TestReverseForBookingDebitsReferrer(t *testing.T) {
	svc, db, node := newTestService(t)
	referrer := seedReferrer(t, db, node)
	bookingID := node.Generate()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreateForBookingTx(context.Background(), tx, referraldomain.CreateRewardRequest{
			BookingID:         bookingID,
			ReferrerID:        referrer.ID,
			ReferredPartnerID: node.Generate(),
			CommissionAmount:  40000,
		})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(800), referrerBalance(t, db, referrer.ID))

	var reward *referraldomain.ReferralReward
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		reward, err = svc.ReverseForBookingTx(context.Background(), tx, bookingID)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, reward)

	assert.Equal(t, int64(0), referrerBalance(t, db, referrer.ID))

	found, err := svc.GetByBookingID(context.Background(), bookingID.String())
	require.NoError(t, err)
	assert.Equal(t, referraldomain.RewardStatusReversed, found.Status)

	// Reversing twice finds nothing credited and is a no-op.
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		reward, err = svc.ReverseForBookingTx(context.Background(), tx, bookingID)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, reward)
	assert.Equal(t, int64(0), referrerBalance(t, db, referrer.ID))
}

func TestReverseForBookingWithoutReward(t *testing.T) {
	svc, db, node := newTestService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		reward, err := svc.ReverseForBookingTx(context.Background(), tx, node.Generate())
		require.NoError(t, err)
		assert.Nil(t, reward)
		return nil
	})
	require.NoError(t, err)
}

func TestListByReferrer(t *testing.T) {
	svc, db, node := newTestService(t)
	referrer := seedReferrer(t, db, node)

	for i := 0; i < 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.CreateForBookingTx(context.Background(), tx, referraldomain.CreateRewardRequest{
				BookingID:         node.Generate(),
				ReferrerID:        referrer.ID,
				ReferredPartnerID: node.Generate(),
				CommissionAmount:  10000,
			})
			return err
		})
		require.NoError(t, err)
	}

	resp, err := svc.ListByReferrer(context.Background(), referraldomain.ListRewardsRequest{
		ReferrerID: referrer.ID.String(),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Rewards, 3)

	filtered, err := svc.ListByReferrer(context.Background(), referraldomain.ListRewardsRequest{
		ReferrerID: referrer.ID.String(),
		Status:     string(referraldomain.RewardStatusReversed),
	})
	require.NoError(t, err)
	assert.Empty(t, filtered.Rewards)

	_, err = svc.ListByReferrer(context.Background(), referraldomain.ListRewardsRequest{ReferrerID: "abc"})
	assert.ErrorIs(t, err, referraldomain.ErrInvalidReferrer)
}
