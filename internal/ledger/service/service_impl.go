package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errAlreadyPosted aborts the posting transaction when the dedupe key
// already exists. Never returned to callers.
var errAlreadyPosted = errors.New("ledger_entry_already_posted")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (bool, error) {
	var posted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.post(ctx, tx, req)
		if err != nil {
			return err
		}
		posted = inserted
		return nil
	})
	if errors.Is(err, errAlreadyPosted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return posted, nil
}

func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (bool, error) {
	posted, err := s.post(ctx, tx, req)
	if errors.Is(err, errAlreadyPosted) {
		return false, nil
	}
	return posted, err
}

func (s *Service) post(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (bool, error) {
	if req.PartnerID == 0 {
		return false, ledgerdomain.ErrInvalidPartner
	}
	if strings.TrimSpace(string(req.SourceType)) == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	if req.Amount == 0 {
		return false, ledgerdomain.ErrInvalidAmount
	}

	entryType := ledgerdomain.EntryTypeCredit
	if req.Amount < 0 {
		entryType = ledgerdomain.EntryTypeDebit
	}

	entry := ledgerdomain.Entry{
		ID:          s.genID.Generate(),
		PartnerID:   req.PartnerID,
		EntryType:   entryType,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		Amount:      req.Amount,
		Description: req.Description,
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEntry(ctx, tx, &entry)
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, errAlreadyPosted
	}

	updated, err := s.repo.ApplyDelta(ctx, tx, req.PartnerID, req.Amount, earnedDelta(req), 0)
	if err != nil {
		return false, err
	}
	if updated == 0 {
		return false, ledgerdomain.ErrInsufficientBalance
	}

	balance, err := s.repo.AvailableBalance(ctx, tx, req.PartnerID)
	if err != nil {
		return false, err
	}
	if err := s.repo.SetBalanceAfter(ctx, tx, entry.ID, balance); err != nil {
		return false, err
	}

	entryID := entry.ID.String()
	metadata := map[string]any{
		"source_type":   string(req.SourceType),
		"source_id":     req.SourceID,
		"amount":        req.Amount,
		"balance_after": balance,
	}
	if err := s.auditSvc.AuditLogTx(ctx, tx, "", nil, "ledger.entry_posted", "ledger_entry", &entryID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(req.SourceType))
	}
	return true, nil
}

// earnedDelta maps source types onto the lifetime earnings counter. Earning
// events move it with the entry amount; payout movements leave it alone.
func earnedDelta(req ledgerdomain.PostRequest) int64 {
	switch req.SourceType {
	case ledgerdomain.SourceTypeCommission,
		ledgerdomain.SourceTypeCommissionReversal,
		ledgerdomain.SourceTypeReferralReward,
		ledgerdomain.SourceTypeReferralRewardReversal:
		return req.Amount
	default:
		return 0
	}
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	partnerID, err := snowflake.ParseString(strings.TrimSpace(req.PartnerID))
	if err != nil || partnerID == 0 {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPartner
	}

	var cursor *ledgerdomain.EntryCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursor = &ledgerdomain.EntryCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
		PartnerID:  partnerID,
		SourceType: ledgerdomain.SourceType(strings.TrimSpace(req.SourceType)),
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *ledgerdomain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]ledgerdomain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := ledgerdomain.ListEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Reconcile(ctx context.Context, partnerID string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(partnerID))
	if err != nil || id == 0 {
		return 0, ledgerdomain.ErrInvalidPartner
	}

	sum, err := s.repo.SumByPartner(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	balance, err := s.repo.AvailableBalance(ctx, s.db, id)
	if err != nil {
		return 0, err
	}

	drift := balance - sum
	if drift != 0 {
		s.log.Warn("ledger drift detected",
			zap.String("partner_id", partnerID),
			zap.Int64("ledger_sum", sum),
			zap.Int64("available_balance", balance),
			zap.Int64("drift", drift),
		)
	}
	return drift, nil
}
