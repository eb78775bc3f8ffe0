package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	"github.com/tabimed/partnerpay/internal/clock"
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        commissiondomain.Repository
	PartnerSvc  partnerdomain.Service
	LedgerSvc   ledgerdomain.Service
	ReferralSvc referraldomain.Service
	AuditSvc    auditdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        commissiondomain.Repository
	partnerSvc  partnerdomain.Service
	ledgerSvc   ledgerdomain.Service
	referralSvc referraldomain.Service
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) commissiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("commission.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		partnerSvc:  p.PartnerSvc,
		ledgerSvc:   p.LedgerSvc,
		referralSvc: p.ReferralSvc,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreateBooking(ctx context.Context, req commissiondomain.CreateBookingRequest) (*commissiondomain.Booking, error) {
	customerRef := strings.TrimSpace(req.CustomerRef)
	if customerRef == "" {
		return nil, commissiondomain.ErrMissingCustomerRef
	}
	serviceName := strings.TrimSpace(req.ServiceName)
	if serviceName == "" {
		return nil, commissiondomain.ErrMissingServiceName
	}
	if req.Amount <= 0 {
		return nil, commissiondomain.ErrInvalidAmount
	}

	var partnerID *snowflake.ID
	if strings.TrimSpace(req.PartnerID) != "" {
		partner, err := s.partnerSvc.GetByID(ctx, req.PartnerID)
		if err != nil {
			return nil, err
		}
		partnerID = &partner.ID
	}

	now := s.clock.Now()
	booking := commissiondomain.Booking{
		ID:               s.genID.Generate(),
		PartnerID:        partnerID,
		CustomerRef:      customerRef,
		ServiceName:      serviceName,
		Amount:           req.Amount,
		IsFirstOrder:     req.IsFirstOrder,
		Status:           commissiondomain.BookingStatusConfirmed,
		CommissionStatus: commissiondomain.CommissionStatusPending,
		Metadata:         datatypes.JSONMap(req.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*commissiondomain.Booking, error) {
	bookingID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, commissiondomain.ErrBookingNotFound
	}
	return booking, nil
}

func (s *Service) Calculate(ctx context.Context, bookingID string) (commissiondomain.CalculationResult, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return commissiondomain.CalculationResult{}, err
	}
	if booking.PartnerID == nil {
		return commissiondomain.CalculationResult{}, commissiondomain.ErrIneligiblePartner
	}
	if booking.CommissionStatus != commissiondomain.CommissionStatusPending {
		return commissiondomain.CalculationResult{}, commissiondomain.ErrAlreadyCalculated
	}
	if booking.Amount <= 0 {
		return commissiondomain.CalculationResult{}, commissiondomain.ErrInvalidAmount
	}

	partner, err := s.partnerSvc.GetByID(ctx, booking.PartnerID.String())
	if err != nil {
		return commissiondomain.CalculationResult{}, commissiondomain.ErrIneligiblePartner
	}
	if partner.Status != partnerdomain.StatusApproved {
		return commissiondomain.CalculationResult{}, commissiondomain.ErrIneligiblePartner
	}

	// Rate and tier are snapshotted here; a later subscription change never
	// rewrites a calculated commission.
	effectiveTier := partner.EffectiveTier()
	rate := partner.EffectiveRate()
	net := commissiondomain.NetOfTax(booking.Amount)
	commission := commissiondomain.CommissionFor(booking.Amount, rate)

	var bonus int64
	if booking.IsFirstOrder {
		bonus = commissiondomain.FirstOrderBonusFor(booking.Amount)
	}
	total := commission + bonus

	rateStr := rate.String()
	now := s.clock.Now()
	booking.RateApplied = &rateStr
	booking.NetAmount = net
	booking.CommissionAmount = commission
	booking.FirstOrderBonus = bonus
	booking.CalculatedAt = &now

	var reward *referraldomain.ReferralReward
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.MarkCalculated(ctx, tx, booking)
		if err != nil {
			return err
		}
		if updated == 0 {
			return commissiondomain.ErrAlreadyCalculated
		}

		if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
			PartnerID:   partner.ID,
			SourceType:  ledgerdomain.SourceTypeCommission,
			SourceID:    booking.ID.String(),
			Amount:      total,
			Description: "booking commission",
			Metadata: map[string]any{
				"booking_id":        booking.ID.String(),
				"rate_applied":      rateStr,
				"net_amount":        net,
				"first_order_bonus": bonus,
			},
		}); err != nil {
			return err
		}

		if partner.ReferrerID != nil {
			// The override is 2% of everything the booking credited, first
			// order bonus included.
			reward, err = s.referralSvc.CreateForBookingTx(ctx, tx, referraldomain.CreateRewardRequest{
				BookingID:         booking.ID,
				ReferrerID:        *partner.ReferrerID,
				ReferredPartnerID: partner.ID,
				CommissionAmount:  total,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return commissiondomain.CalculationResult{}, err
	}

	targetID := booking.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, "commission.calculated", "booking", &targetID, map[string]any{
		"partner_id":        partner.ID.String(),
		"rate_applied":      rateStr,
		"net_amount":        net,
		"commission_amount": commission,
		"first_order_bonus": bonus,
	}); err != nil {
		s.log.Warn("failed to write commission audit log", zap.Error(err))
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCommission(ctx, string(effectiveTier))
	}

	result := commissiondomain.CalculationResult{
		BookingID:        booking.ID.String(),
		PartnerID:        partner.ID.String(),
		RateApplied:      rateStr,
		NetAmount:        net,
		CommissionAmount: commission,
		FirstOrderBonus:  bonus,
		TotalCredited:    total,
	}
	if reward != nil {
		result.ReferralReward = reward.RewardAmount
	}
	return result, nil
}

func (s *Service) Reverse(ctx context.Context, bookingID string) (*commissiondomain.Booking, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CommissionStatus != commissiondomain.CommissionStatusCalculated {
		return nil, commissiondomain.ErrNotCalculated
	}

	total := booking.CommissionAmount + booking.FirstOrderBonus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reversed, err := s.repo.MarkReversed(ctx, tx, booking.ID)
		if err != nil {
			return err
		}
		if reversed == 0 {
			return commissiondomain.ErrNotCalculated
		}

		if err := s.repo.UpdateStatus(ctx, tx, booking.ID, commissiondomain.BookingStatusRefunded); err != nil {
			return err
		}

		if booking.PartnerID != nil && total > 0 {
			if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
				PartnerID:   *booking.PartnerID,
				SourceType:  ledgerdomain.SourceTypeCommissionReversal,
				SourceID:    booking.ID.String(),
				Amount:      -total,
				Description: "booking commission reversal",
				Metadata: map[string]any{
					"booking_id": booking.ID.String(),
				},
			}); err != nil {
				return err
			}
		}

		_, err = s.referralSvc.ReverseForBookingTx(ctx, tx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	booking.CommissionStatus = commissiondomain.CommissionStatusReversed
	booking.Status = commissiondomain.BookingStatusRefunded

	targetID := booking.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, "commission.reversed", "booking", &targetID, map[string]any{
		"amount_reversed": total,
	}); err != nil {
		s.log.Warn("failed to write commission audit log", zap.Error(err))
	}
	return booking, nil
}

func (s *Service) ListBookings(ctx context.Context, req commissiondomain.ListBookingsRequest) (commissiondomain.ListBookingsResponse, error) {
	partnerID, err := snowflake.ParseString(strings.TrimSpace(req.PartnerID))
	if err != nil || partnerID == 0 {
		return commissiondomain.ListBookingsResponse{}, partnerdomain.ErrInvalidPartnerID
	}

	var cursor *commissiondomain.BookingCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return commissiondomain.ListBookingsResponse{}, commissiondomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return commissiondomain.ListBookingsResponse{}, commissiondomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return commissiondomain.ListBookingsResponse{}, commissiondomain.ErrInvalidPageToken
		}
		cursor = &commissiondomain.BookingCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.ListByPartner(ctx, s.db, commissiondomain.ListFilter{
		PartnerID:        partnerID,
		CommissionStatus: commissiondomain.CommissionStatus(strings.TrimSpace(req.CommissionStatus)),
		Cursor:           cursor,
		Limit:            pageSize,
	})
	if err != nil {
		return commissiondomain.ListBookingsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *commissiondomain.Booking) string {
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

	bookings := make([]commissiondomain.Booking, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		bookings = append(bookings, *item)
	}

	resp := commissiondomain.ListBookingsResponse{Bookings: bookings}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, commissiondomain.ErrInvalidBookingID
	}
	return id, nil
}
