package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       referraldomain.Repository
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       referraldomain.Repository
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) referraldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("referral.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateForBookingTx(ctx context.Context, tx *gorm.DB, req referraldomain.CreateRewardRequest) (*referraldomain.ReferralReward, error) {
	if req.BookingID == 0 {
		return nil, referraldomain.ErrInvalidBookingID
	}
	if req.ReferrerID == 0 || req.ReferredPartnerID == 0 {
		return nil, referraldomain.ErrInvalidReferrer
	}
	if req.CommissionAmount <= 0 {
		return nil, referraldomain.ErrInvalidCommission
	}

	amount := referraldomain.RewardFor(req.CommissionAmount)
	if amount == 0 {
		s.log.Debug("referral reward rounds to zero, skipping",
			zap.String("booking_id", req.BookingID.String()),
			zap.Int64("commission_amount", req.CommissionAmount),
		)
		return nil, nil
	}

	now := time.Now().UTC()
	reward := referraldomain.ReferralReward{
		ID:                s.genID.Generate(),
		BookingID:         req.BookingID,
		ReferrerID:        req.ReferrerID,
		ReferredPartnerID: req.ReferredPartnerID,
		CommissionAmount:  req.CommissionAmount,
		RewardAmount:      amount,
		Status:            referraldomain.RewardStatusCredited,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	inserted, err := s.repo.Insert(ctx, tx, &reward)
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		// Booking already rewarded. The ledger dedupe key makes the credit
		// below a no-op too, so skipping early keeps the transaction small.
		return nil, nil
	}

	if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
		PartnerID:   req.ReferrerID,
		SourceType:  ledgerdomain.SourceTypeReferralReward,
		SourceID:    req.BookingID.String(),
		Amount:      amount,
		Description: "referral override",
		Metadata: map[string]any{
			"booking_id":          req.BookingID.String(),
			"referred_partner_id": req.ReferredPartnerID.String(),
		},
	}); err != nil {
		return nil, err
	}

	rewardID := reward.ID.String()
	if err := s.auditSvc.AuditLogTx(ctx, tx, "", nil, "referral.reward_credited", "referral_reward", &rewardID, map[string]any{
		"booking_id":    req.BookingID.String(),
		"referrer_id":   req.ReferrerID.String(),
		"reward_amount": amount,
	}); err != nil {
		s.log.Warn("failed to write referral audit log", zap.Error(err))
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReferralReward(ctx)
	}
	return &reward, nil
}

func (s *Service) ReverseForBookingTx(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (*referraldomain.ReferralReward, error) {
	if bookingID == 0 {
		return nil, referraldomain.ErrInvalidBookingID
	}

	reversed, err := s.repo.MarkReversed(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if reversed == 0 {
		return nil, nil
	}

	reward, err := s.repo.FindByBookingID(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, nil
	}

	if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
		PartnerID:   reward.ReferrerID,
		SourceType:  ledgerdomain.SourceTypeReferralRewardReversal,
		SourceID:    bookingID.String(),
		Amount:      -reward.RewardAmount,
		Description: "referral override reversal",
		Metadata: map[string]any{
			"booking_id": bookingID.String(),
		},
	}); err != nil {
		return nil, err
	}

	rewardID := reward.ID.String()
	if err := s.auditSvc.AuditLogTx(ctx, tx, "", nil, "referral.reward_reversed", "referral_reward", &rewardID, map[string]any{
		"booking_id":    bookingID.String(),
		"reward_amount": reward.RewardAmount,
	}); err != nil {
		s.log.Warn("failed to write referral audit log", zap.Error(err))
	}
	return reward, nil
}

func (s *Service) GetByBookingID(ctx context.Context, bookingID string) (*referraldomain.ReferralReward, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(bookingID))
	if err != nil || id == 0 {
		return nil, referraldomain.ErrInvalidBookingID
	}

	reward, err := s.repo.FindByBookingID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, referraldomain.ErrRewardNotFound
	}
	return reward, nil
}

func (s *Service) ListByReferrer(ctx context.Context, req referraldomain.ListRewardsRequest) (referraldomain.ListRewardsResponse, error) {
	referrerID, err := snowflake.ParseString(strings.TrimSpace(req.ReferrerID))
	if err != nil || referrerID == 0 {
		return referraldomain.ListRewardsResponse{}, referraldomain.ErrInvalidReferrer
	}

	var cursor *referraldomain.RewardCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return referraldomain.ListRewardsResponse{}, referraldomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return referraldomain.ListRewardsResponse{}, referraldomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return referraldomain.ListRewardsResponse{}, referraldomain.ErrInvalidPageToken
		}
		cursor = &referraldomain.RewardCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.ListByReferrer(ctx, s.db, referraldomain.ListFilter{
		ReferrerID: referrerID,
		Status:     referraldomain.RewardStatus(strings.TrimSpace(req.Status)),
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return referraldomain.ListRewardsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *referraldomain.ReferralReward) string {
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

	rewards := make([]referraldomain.ReferralReward, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rewards = append(rewards, *item)
	}

	resp := referraldomain.ListRewardsResponse{Rewards: rewards}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
