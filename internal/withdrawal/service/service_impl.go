package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	"github.com/tabimed/partnerpay/internal/authorization"
	"github.com/tabimed/partnerpay/internal/clock"
	"github.com/tabimed/partnerpay/internal/config"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/internal/providers/email"
	withdrawaldomain "github.com/tabimed/partnerpay/internal/withdrawal/domain"
	"github.com/tabimed/partnerpay/pkg/db"
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
	Clock      clock.Clock
	Repo       withdrawaldomain.Repository
	PartnerSvc partnerdomain.Service
	LedgerSvc  ledgerdomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	Email      email.Provider
	PayoutCfg  *config.PayoutConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       withdrawaldomain.Repository
	partnerSvc partnerdomain.Service
	ledgerSvc  ledgerdomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	email      email.Provider
	payoutCfg  *config.PayoutConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) withdrawaldomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("withdrawal.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		partnerSvc: p.PartnerSvc,
		ledgerSvc:  p.LedgerSvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		email:      p.Email,
		payoutCfg:  p.PayoutCfg,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Request(ctx context.Context, req withdrawaldomain.CreateWithdrawalRequest) (*withdrawaldomain.WithdrawalRequest, error) {
	partner, err := s.partnerSvc.GetByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}

	// Preconditions are checked in a fixed order so clients always see the
	// same error for the same account state.
	if partner.Status != partnerdomain.StatusApproved {
		return nil, partnerdomain.ErrPartnerNotApproved
	}
	if partner.KYCStatus != partnerdomain.KYCStatusApproved {
		return nil, withdrawaldomain.ErrKYCRequired
	}
	if !partner.BankComplete() {
		return nil, withdrawaldomain.ErrBankInfoRequired
	}
	if req.Amount <= 0 {
		return nil, withdrawaldomain.ErrInvalidAmount
	}
	if min := s.payoutCfg.Get().MinWithdrawalAmount; req.Amount < min {
		return nil, withdrawaldomain.ErrAmountBelowMinimum
	}
	inFlight, err := s.repo.FindInFlightByPartner(ctx, s.db, partner.ID)
	if err != nil {
		return nil, err
	}
	if inFlight != nil {
		return nil, withdrawaldomain.ErrPendingWithdrawalExists
	}

	now := s.clock.Now()
	request := withdrawaldomain.WithdrawalRequest{
		ID:                s.genID.Generate(),
		PartnerID:         partner.ID,
		Amount:            req.Amount,
		Status:            withdrawaldomain.StatusPending,
		BankName:          *partner.BankName,
		BankBranch:        *partner.BankBranch,
		BankAccountType:   *partner.BankAccountType,
		BankAccountNumber: *partner.BankAccountNumber,
		BankAccountHolder: *partner.BankAccountHolder,
		RequestedAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &request); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return withdrawaldomain.ErrPendingWithdrawalExists
			}
			return err
		}
		// Reserve the funds immediately. The guarded balance update is what
		// actually rejects an over-draw.
		if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
			PartnerID:   partner.ID,
			SourceType:  ledgerdomain.SourceTypeWithdrawal,
			SourceID:    request.ID.String(),
			Amount:      -req.Amount,
			Description: "withdrawal reservation",
			Metadata: map[string]any{
				"withdrawal_id": request.ID.String(),
			},
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "withdrawal.requested", request.ID, map[string]any{
		"partner_id": partner.ID.String(),
		"amount":     req.Amount,
	})
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWithdrawalTransition(ctx, "requested")
	}
	return &request, nil
}

func (s *Service) Cancel(ctx context.Context, id, partnerID string) (*withdrawaldomain.WithdrawalRequest, error) {
	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := snowflake.ParseString(strings.TrimSpace(partnerID))
	if err != nil || owner == 0 || request.PartnerID != owner {
		return nil, withdrawaldomain.ErrNotRequestOwner
	}
	if request.Status != withdrawaldomain.StatusPending {
		return nil, withdrawaldomain.ErrIllegalStateTransition
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdateStatus(ctx, tx, request.ID,
			withdrawaldomain.StatusPending, withdrawaldomain.StatusCancelled,
			withdrawaldomain.StatusUpdate{})
		if err != nil {
			return err
		}
		if updated == 0 {
			return withdrawaldomain.ErrIllegalStateTransition
		}
		return s.refundReservation(ctx, tx, request)
	})
	if err != nil {
		return nil, err
	}
	request.Status = withdrawaldomain.StatusCancelled

	s.audit(ctx, "withdrawal.cancelled", request.ID, map[string]any{
		"partner_id": request.PartnerID.String(),
		"amount":     request.Amount,
	})
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWithdrawalTransition(ctx, "cancelled")
	}
	s.notifyStatus(request, "", "")
	return request, nil
}

func (s *Service) Transition(ctx context.Context, req withdrawaldomain.TransitionRequest) (*withdrawaldomain.WithdrawalRequest, error) {
	target, authzAction, err := transitionTarget(req.Action)
	if err != nil {
		return nil, err
	}

	if err := s.authzSvc.Authorize(ctx, req.OperatorID, req.OperatorRole, authorization.ObjectWithdrawal, authzAction); err != nil {
		return nil, err
	}

	request, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !withdrawaldomain.CanTransition(request.Status, target) {
		return nil, withdrawaldomain.ErrIllegalStateTransition
	}

	paymentReference := strings.TrimSpace(req.PaymentReference)
	if target == withdrawaldomain.StatusCompleted && paymentReference == "" {
		return nil, withdrawaldomain.ErrPaymentReferenceRequired
	}

	now := s.clock.Now()
	update := withdrawaldomain.StatusUpdate{}
	operator := strings.TrimSpace(req.OperatorID)
	switch target {
	case withdrawaldomain.StatusApproved:
		update.ReviewedBy = &operator
		update.ReviewedAt = &now
	case withdrawaldomain.StatusRejected:
		update.ReviewedBy = &operator
		update.ReviewedAt = &now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			update.RejectionReason = &reason
		}
	case withdrawaldomain.StatusProcessing:
		update.ProcessedAt = &now
	case withdrawaldomain.StatusCompleted:
		update.PaymentReference = &paymentReference
		update.CompletedAt = &now
	}

	from := request.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdateStatus(ctx, tx, request.ID, from, target, update)
		if err != nil {
			return err
		}
		if updated == 0 {
			return withdrawaldomain.ErrIllegalStateTransition
		}

		switch target {
		case withdrawaldomain.StatusRejected:
			return s.refundReservation(ctx, tx, request)
		case withdrawaldomain.StatusCompleted:
			return s.repo.AddWithdrawn(ctx, tx, request.PartnerID, request.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = target
	request.ReviewedBy = update.ReviewedBy
	request.RejectionReason = update.RejectionReason
	if update.PaymentReference != nil {
		request.PaymentReference = update.PaymentReference
	}

	s.audit(ctx, "withdrawal."+string(req.Action), request.ID, map[string]any{
		"partner_id": request.PartnerID.String(),
		"amount":     request.Amount,
		"from":       string(from),
		"to":         string(target),
		"operator":   operator,
	})
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWithdrawalTransition(ctx, string(target))
	}
	s.notifyStatus(request, paymentReference, strings.TrimSpace(req.Reason))
	return request, nil
}

// refundReservation gives the reserved funds back after a rejection or
// cancellation. The refund has its own dedupe key so retries stay safe.
func (s *Service) refundReservation(ctx context.Context, tx *gorm.DB, request *withdrawaldomain.WithdrawalRequest) error {
	_, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
		PartnerID:   request.PartnerID,
		SourceType:  ledgerdomain.SourceTypeWithdrawalRefund,
		SourceID:    request.ID.String(),
		Amount:      request.Amount,
		Description: "withdrawal reservation refund",
		Metadata: map[string]any{
			"withdrawal_id": request.ID.String(),
		},
	})
	return err
}

func (s *Service) GetByID(ctx context.Context, id string) (*withdrawaldomain.WithdrawalRequest, error) {
	requestID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || requestID == 0 {
		return nil, withdrawaldomain.ErrInvalidWithdrawalID
	}
	request, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, withdrawaldomain.ErrWithdrawalNotFound
	}
	return request, nil
}

func (s *Service) List(ctx context.Context, req withdrawaldomain.ListWithdrawalsRequest) (withdrawaldomain.ListWithdrawalsResponse, error) {
	var partnerID snowflake.ID
	if strings.TrimSpace(req.PartnerID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.PartnerID))
		if err != nil || id == 0 {
			return withdrawaldomain.ListWithdrawalsResponse{}, partnerdomain.ErrInvalidPartnerID
		}
		partnerID = id
	}

	status := withdrawaldomain.Status(strings.TrimSpace(req.Status))
	if status != "" {
		switch status {
		case withdrawaldomain.StatusPending, withdrawaldomain.StatusApproved,
			withdrawaldomain.StatusProcessing, withdrawaldomain.StatusCompleted,
			withdrawaldomain.StatusRejected, withdrawaldomain.StatusCancelled:
		default:
			return withdrawaldomain.ListWithdrawalsResponse{}, withdrawaldomain.ErrInvalidStatus
		}
	}

	var cursor *withdrawaldomain.RequestCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return withdrawaldomain.ListWithdrawalsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return withdrawaldomain.ListWithdrawalsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return withdrawaldomain.ListWithdrawalsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursor = &withdrawaldomain.RequestCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, withdrawaldomain.ListFilter{
		PartnerID: partnerID,
		Status:    status,
		Cursor:    cursor,
		Limit:     pageSize,
	})
	if err != nil {
		return withdrawaldomain.ListWithdrawalsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *withdrawaldomain.WithdrawalRequest) string {
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

	withdrawals := make([]withdrawaldomain.WithdrawalRequest, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		withdrawals = append(withdrawals, *item)
	}

	resp := withdrawaldomain.ListWithdrawalsResponse{Withdrawals: withdrawals}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) PartnerStats(ctx context.Context, partnerID string) (withdrawaldomain.Stats, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(partnerID))
	if err != nil || id == 0 {
		return withdrawaldomain.Stats{}, partnerdomain.ErrInvalidPartnerID
	}
	return s.repo.Stats(ctx, s.db, id)
}

func transitionTarget(action withdrawaldomain.Action) (withdrawaldomain.Status, string, error) {
	switch action {
	case withdrawaldomain.ActionApprove:
		return withdrawaldomain.StatusApproved, authorization.ActionWithdrawalApprove, nil
	case withdrawaldomain.ActionReject:
		return withdrawaldomain.StatusRejected, authorization.ActionWithdrawalReject, nil
	case withdrawaldomain.ActionProcess:
		return withdrawaldomain.StatusProcessing, authorization.ActionWithdrawalProcess, nil
	case withdrawaldomain.ActionComplete:
		return withdrawaldomain.StatusCompleted, authorization.ActionWithdrawalComplete, nil
	default:
		return "", "", withdrawaldomain.ErrInvalidAction
	}
}

// notifyStatus emails the partner about a lifecycle change. Best effort,
// detached from the request so a slow SMTP server never blocks the response.
func (s *Service) notifyStatus(request *withdrawaldomain.WithdrawalRequest, paymentReference, reason string) {
	req := *request
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		partner, err := s.partnerSvc.GetByID(ctx, req.PartnerID.String())
		if err != nil {
			s.log.Warn("failed to load partner for withdrawal notification",
				zap.String("withdrawal_id", req.ID.String()), zap.Error(err))
			return
		}

		data := map[string]interface{}{
			"subject":      "出金リクエストのステータス更新",
			"partner_name": partner.DisplayName,
			"amount":       req.Amount,
			"status":       string(req.Status),
		}
		if paymentReference != "" {
			data["payment_reference"] = paymentReference
		}
		if reason != "" {
			data["reason"] = reason
		}

		if err := s.email.SendTemplate(ctx, []string{partner.Email}, "withdrawal_status", data); err != nil {
			s.log.Warn("failed to send withdrawal notification",
				zap.String("withdrawal_id", req.ID.String()), zap.Error(err))
		}
	}()
}

func (s *Service) audit(ctx context.Context, action string, withdrawalID snowflake.ID, metadata map[string]any) {
	targetID := withdrawalID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "withdrawal", &targetID, metadata); err != nil {
		s.log.Warn("failed to write withdrawal audit log", zap.String("action", action), zap.Error(err))
	}
}
