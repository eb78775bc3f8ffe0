package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	"github.com/tabimed/partnerpay/internal/audit/masking"
	"github.com/tabimed/partnerpay/internal/clock"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/internal/tier"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// providerStatusMap translates payment provider subscription states into our
// internal vocabulary. "unpaid" collapses into canceled; anything else is
// rejected so a provider-side vocabulary change fails loudly.
var providerStatusMap = map[string]partnerdomain.SubscriptionStatus{
	"active":   partnerdomain.SubscriptionStatusActive,
	"past_due": partnerdomain.SubscriptionStatusPastDue,
	"canceled": partnerdomain.SubscriptionStatusCanceled,
	"unpaid":   partnerdomain.SubscriptionStatusCanceled,
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       partnerdomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       partnerdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) partnerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("partner.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req partnerdomain.CreatePartnerRequest) (*partnerdomain.Partner, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, partnerdomain.ErrMissingDisplayName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, partnerdomain.ErrMissingEmail
	}

	var referrerID *snowflake.ID
	if strings.TrimSpace(req.ReferrerID) != "" {
		id, err := s.parseID(req.ReferrerID, partnerdomain.ErrInvalidReferrer)
		if err != nil {
			return nil, err
		}
		referrer, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, partnerdomain.ErrInvalidReferrer
		}
		referrerID = &id
	}

	now := s.clock.Now()
	partner := partnerdomain.Partner{
		ID:                 s.genID.Generate(),
		DisplayName:        displayName,
		Email:              email,
		Status:             partnerdomain.StatusPending,
		Tier:               tier.CodeGrowth,
		SubscriptionStatus: partnerdomain.SubscriptionStatusInactive,
		EntryFeeStatus:     partnerdomain.EntryFeeStatusNone,
		ReferrerID:         referrerID,
		KYCStatus:          partnerdomain.KYCStatusNone,
		Metadata:           datatypes.JSONMap(req.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, &partner); err != nil {
		return nil, err
	}

	s.audit(ctx, "partner.created", partner.ID, map[string]any{
		"email": masking.MaskEmail(email),
	})
	return &partner, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*partnerdomain.Partner, error) {
	partnerID, err := s.parseID(id, partnerdomain.ErrInvalidPartnerID)
	if err != nil {
		return nil, err
	}
	partner, err := s.repo.FindByID(ctx, s.db, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, partnerdomain.ErrPartnerNotFound
	}
	return partner, nil
}

func (s *Service) Approve(ctx context.Context, id string) (*partnerdomain.Partner, error) {
	return s.setStatus(ctx, id, partnerdomain.StatusApproved, "partner.approved")
}

func (s *Service) Suspend(ctx context.Context, id string) (*partnerdomain.Partner, error) {
	return s.setStatus(ctx, id, partnerdomain.StatusSuspended, "partner.suspended")
}

func (s *Service) setStatus(ctx context.Context, id string, status partnerdomain.Status, action string) (*partnerdomain.Partner, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if partner.Status == status {
		return partner, nil
	}

	if err := s.repo.UpdateStatus(ctx, s.db, partner.ID, status); err != nil {
		return nil, err
	}
	partner.Status = status

	s.audit(ctx, action, partner.ID, nil)
	return partner, nil
}

func (s *Service) UpgradeTier(ctx context.Context, req partnerdomain.UpgradeTierRequest) (*partnerdomain.Partner, error) {
	target := tier.Code(strings.TrimSpace(req.TargetTier))
	if !tier.Valid(target) || target != tier.CodePartner {
		return nil, partnerdomain.ErrInvalidTargetTier
	}

	partner, err := s.GetByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner.Status != partnerdomain.StatusApproved {
		return nil, partnerdomain.ErrPartnerNotApproved
	}
	if partner.Tier == target {
		return nil, partnerdomain.ErrAlreadyAtTier
	}
	if partner.EntryFeeStatus != partnerdomain.EntryFeeStatusCompleted {
		return nil, partnerdomain.ErrEntryFeeRequired
	}
	if partner.SubscriptionStatus != partnerdomain.SubscriptionStatusActive {
		return nil, partnerdomain.ErrSubscriptionRequired
	}

	updated, err := s.repo.PromoteTier(ctx, s.db, partner.ID, string(target))
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		// Lost a race with a concurrent subscription event or upgrade.
		// Re-read and classify against the fresh row.
		fresh, err := s.GetByID(ctx, req.PartnerID)
		if err != nil {
			return nil, err
		}
		switch {
		case fresh.Tier == target:
			return nil, partnerdomain.ErrAlreadyAtTier
		case fresh.EntryFeeStatus != partnerdomain.EntryFeeStatusCompleted:
			return nil, partnerdomain.ErrEntryFeeRequired
		default:
			return nil, partnerdomain.ErrSubscriptionRequired
		}
	}
	partner.Tier = target

	s.audit(ctx, "partner.tier_upgraded", partner.ID, map[string]any{
		"target_tier": string(target),
	})
	return partner, nil
}

func (s *Service) RecordEntryFeePayment(ctx context.Context, id string) (*partnerdomain.Partner, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if partner.EntryFeeStatus == partnerdomain.EntryFeeStatusCompleted {
		return partner, nil
	}

	if err := s.repo.UpdateEntryFeeStatus(ctx, s.db, partner.ID, partnerdomain.EntryFeeStatusCompleted); err != nil {
		return nil, err
	}
	partner.EntryFeeStatus = partnerdomain.EntryFeeStatusCompleted

	s.audit(ctx, "partner.entry_fee_paid", partner.ID, nil)
	return partner, nil
}

func (s *Service) RecordSubscriptionEvent(ctx context.Context, req partnerdomain.SubscriptionEventRequest) (*partnerdomain.Partner, error) {
	mapped, ok := providerStatusMap[strings.ToLower(strings.TrimSpace(req.ProviderStatus))]
	if !ok {
		return nil, partnerdomain.ErrInvalidProviderStatus
	}

	partner, err := s.GetByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner.SubscriptionStatus == mapped {
		// Redelivered event, nothing to change.
		return partner, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateSubscription(ctx, tx, partner.ID, mapped); err != nil {
			return err
		}
		// A definitive lapse tears down the paid tier. Re-upgrading later
		// means paying the entry fee again.
		if mapped == partnerdomain.SubscriptionStatusCanceled && partner.Tier == tier.CodePartner {
			return s.repo.Downgrade(ctx, tx, partner.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	previous := partner.SubscriptionStatus
	partner.SubscriptionStatus = mapped
	if mapped == partnerdomain.SubscriptionStatusCanceled && partner.Tier == tier.CodePartner {
		partner.Tier = tier.CodeGrowth
		partner.EntryFeeStatus = partnerdomain.EntryFeeStatusNone
	}

	s.audit(ctx, "partner.subscription_updated", partner.ID, map[string]any{
		"provider_status": req.ProviderStatus,
		"from":            string(previous),
		"to":              string(mapped),
		"event_id":        req.EventID,
	})
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSubscriptionEvent(ctx, strings.ToLower(strings.TrimSpace(req.ProviderStatus)))
	}
	return partner, nil
}

func (s *Service) SetBankAccount(ctx context.Context, req partnerdomain.SetBankAccountRequest) (*partnerdomain.Partner, error) {
	bank := partnerdomain.BankAccount{
		BankName:      strings.TrimSpace(req.BankName),
		BankBranch:    strings.TrimSpace(req.BankBranch),
		AccountType:   strings.TrimSpace(req.AccountType),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		AccountHolder: strings.TrimSpace(req.AccountHolder),
	}
	if bank.BankName == "" || bank.BankBranch == "" || bank.AccountType == "" ||
		bank.AccountNumber == "" || bank.AccountHolder == "" {
		return nil, partnerdomain.ErrBankInfoIncomplete
	}

	partner, err := s.GetByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateBankAccount(ctx, s.db, partner.ID, bank); err != nil {
		return nil, err
	}
	partner.BankName = &bank.BankName
	partner.BankBranch = &bank.BankBranch
	partner.BankAccountType = &bank.AccountType
	partner.BankAccountNumber = &bank.AccountNumber
	partner.BankAccountHolder = &bank.AccountHolder

	s.audit(ctx, "partner.bank_account_updated", partner.ID, map[string]any{
		"bank_name":      bank.BankName,
		"account_number": masking.MaskAccountNumber(bank.AccountNumber),
	})
	return partner, nil
}

func (s *Service) SubmitKYC(ctx context.Context, id string) (*partnerdomain.Partner, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch partner.KYCStatus {
	case partnerdomain.KYCStatusApproved:
		return nil, partnerdomain.ErrKYCAlreadyApproved
	case partnerdomain.KYCStatusPending:
		return partner, nil
	}

	if err := s.repo.UpdateKYCStatus(ctx, s.db, partner.ID, partnerdomain.KYCStatusPending); err != nil {
		return nil, err
	}
	partner.KYCStatus = partnerdomain.KYCStatusPending

	s.audit(ctx, "partner.kyc_submitted", partner.ID, nil)
	return partner, nil
}

func (s *Service) ReviewKYC(ctx context.Context, id string, approved bool) (*partnerdomain.Partner, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if partner.KYCStatus != partnerdomain.KYCStatusPending {
		return nil, partnerdomain.ErrKYCNotPending
	}

	status := partnerdomain.KYCStatusRejected
	action := "partner.kyc_rejected"
	if approved {
		status = partnerdomain.KYCStatusApproved
		action = "partner.kyc_approved"
	}

	if err := s.repo.UpdateKYCStatus(ctx, s.db, partner.ID, status); err != nil {
		return nil, err
	}
	partner.KYCStatus = status

	s.audit(ctx, action, partner.ID, nil)
	return partner, nil
}

func (s *Service) BalanceSummary(ctx context.Context, id string) (partnerdomain.BalanceSummary, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return partnerdomain.BalanceSummary{}, err
	}
	return partnerdomain.BalanceSummary{
		AvailableBalance: partner.AvailableBalance,
		TotalEarned:      partner.TotalEarned,
		TotalWithdrawn:   partner.TotalWithdrawn,
	}, nil
}

func (s *Service) audit(ctx context.Context, action string, partnerID snowflake.ID, metadata map[string]any) {
	targetID := partnerID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "partner", &targetID, metadata); err != nil {
		s.log.Warn("failed to write partner audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
