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
	"github.com/tabimed/partnerpay/internal/ledger/repository"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (ledgerdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partnerdomain.Partner{},
		&ledgerdomain.Entry{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

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
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	})
	return svc, db, node
}

func seedPartner(t *testing.T, db *gorm.DB, node *snowflake.Node, balance int64) *partnerdomain.Partner {
	t.Helper()
	partner := &partnerdomain.Partner{
		ID:               node.Generate(),
		DisplayName:      "Test Guide",
		Email:            "guide@example.com",
		Status:           partnerdomain.StatusApproved,
		AvailableBalance: balance,
		TotalEarned:      balance,
	}
	require.NoError(t, db.Create(partner).Error)
	return partner
}

func TestPostCreditUpdatesBalanceAndEarnings(t *testing.T) {
	svc, db, node := newTestService(t)
	partner := seedPartner(t, db, node, 0)

	posted, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
		PartnerID:   partner.ID,
		SourceType:  ledgerdomain.SourceTypeCommission,
		SourceID:    "booking-1",
		Amount:      40000,
		Description: "booking commission",
	})
	require.NoError(t, err)
	assert.True(t, posted)

	var fresh partnerdomain.Partner
	require.NoError(t, db.First(&fresh, "id = ?", partner.ID).Error)
	assert.Equal(t, int64(40000), fresh.AvailableBalance)
	assert.Equal(t, int64(40000), fresh.TotalEarned)
	assert.Equal(t, int64(0), fresh.TotalWithdrawn)

	var entry ledgerdomain.Entry
	require.NoError(t, db.First(&entry, "partner_id = ? AND source_id = ?", partner.ID, "booking-1").Error)
	assert.Equal(t, ledgerdomain.EntryTypeCredit, entry.EntryType)
	assert.Equal(t, int64(40000), entry.BalanceAfter)

	// The audit trail rides the posting transaction; the row must be there
	// by the time Post returns.
	var audits int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).
		Where("action = ? AND target_id = ?", "ledger.entry_posted", entry.ID.String()).
		Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestPostIsIdempotentPerSourceKey(t *testing.T) {
	svc, db, node := newTestService(t)
	partner := seedPartner(t, db, node, 0)

	req := ledgerdomain.PostRequest{
		PartnerID:  partner.ID,
		SourceType: ledgerdomain.SourceTypeCommission,
		SourceID:   "booking-replay",
		Amount:     1000,
	}

	posted, err := svc.Post(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, posted)

	// Redelivery of the same posting is a silent no-op.
	posted, err = svc.Post(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, posted)

	var fresh partnerdomain.Partner
	require.NoError(t, db.First(&fresh, "id = ?", partner.ID).Error)
	assert.Equal(t, int64(1000), fresh.AvailableBalance)

	var count int64
	require.NoError(t, db.Model(&ledgerdomain.Entry{}).
		Where("partner_id = ? AND source_id = ?", partner.ID, "booking-replay").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPostDebitRejectsOverdraw(t *testing.T) {
	svc, db, node := newTestService(t)
	partner := seedPartner(t, db, node, 500)

	_, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
		PartnerID:  partner.ID,
		SourceType: ledgerdomain.SourceTypeWithdrawal,
		SourceID:   "wd-1",
		Amount:     -600,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// The failed transaction must leave no ledger line behind.
	var count int64
	require.NoError(t, db.Model(&ledgerdomain.Entry{}).
		Where("partner_id = ?", partner.ID).
		Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var fresh partnerdomain.Partner
	require.NoError(t, db.First(&fresh, "id = ?", partner.ID).Error)
	assert.Equal(t, int64(500), fresh.AvailableBalance)

	// Draining the balance exactly to zero is allowed.
	posted, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
		PartnerID:  partner.ID,
		SourceType: ledgerdomain.SourceTypeWithdrawal,
		SourceID:   "wd-2",
		Amount:     -500,
	})
	require.NoError(t, err)
	assert.True(t, posted)

	require.NoError(t, db.First(&fresh, "id = ?", partner.ID).Error)
	assert.Equal(t, int64(0), fresh.AvailableBalance)
	// Withdrawal movements never touch lifetime earnings.
	assert.Equal(t, int64(500), fresh.TotalEarned)
}

func TestPostValidation(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{SourceType: ledgerdomain.SourceTypeCommission, SourceID: "x", Amount: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPartner)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{PartnerID: node.Generate(), SourceID: "x", Amount: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceType)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{PartnerID: node.Generate(), SourceType: ledgerdomain.SourceTypeCommission, Amount: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceID)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{PartnerID: node.Generate(), SourceType: ledgerdomain.SourceTypeCommission, SourceID: "x"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
}

func TestReconcileDetectsDrift(t *testing.T) {
	svc, db, node := newTestService(t)
	partner := seedPartner(t, db, node, 0)

	_, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
		PartnerID:  partner.ID,
		SourceType: ledgerdomain.SourceTypeCommission,
		SourceID:   "booking-r",
		Amount:     2500,
	})
	require.NoError(t, err)

	drift, err := svc.Reconcile(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), drift)

	// Corrupt the cached balance behind the ledger's back.
	require.NoError(t, db.Model(&partnerdomain.Partner{}).
		Where("id = ?", partner.ID).
		Update("available_balance", 9999).Error)

	drift, err = svc.Reconcile(context.Background(), partner.ID.String())
	require.NoError(t, err)
	assert.NotEqual(t, int64(0), drift)
}

func TestListEntriesPaginates(t *testing.T) {
	svc, db, node := newTestService(t)
	partner := seedPartner(t, db, node, 0)

	for i := 0; i < 5; i++ {
		_, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
			PartnerID:  partner.ID,
			SourceType: ledgerdomain.SourceTypeCommission,
			SourceID:   "booking-" + string(rune('a'+i)),
			Amount:     100,
		})
		require.NoError(t, err)
	}
	first, err := svc.List(context.Background(), ledgerdomain.ListEntriesRequest{PartnerID: partner.ID.String()})
	require.NoError(t, err)
	assert.Len(t, first.Entries, 5)

	paged, err := svc.List(context.Background(), ledgerdomain.ListEntriesRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		PartnerID:  partner.ID.String(),
	})
	require.NoError(t, err)
	assert.Len(t, paged.Entries, 2)
	assert.True(t, paged.HasMore)
	assert.NotEmpty(t, paged.NextPageToken)

	_, err = svc.List(context.Background(), ledgerdomain.ListEntriesRequest{
		Pagination: pagination.Pagination{PageToken: "garbage"},
		PartnerID:  partner.ID.String(),
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPageToken)
}
