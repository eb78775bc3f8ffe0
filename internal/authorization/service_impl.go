// Package authorization guards operator-facing endpoints with role based
// access control backed by casbin. Roles arrive on the request; the policy
// table is seeded at startup and persisted through the gorm adapter.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectWithdrawal = "withdrawal"
	ObjectPartner    = "partner"
	ObjectCommission = "commission"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionWithdrawalView     = "withdrawal.view"
	ActionWithdrawalApprove  = "withdrawal.approve"
	ActionWithdrawalReject   = "withdrawal.reject"
	ActionWithdrawalProcess  = "withdrawal.process"
	ActionWithdrawalComplete = "withdrawal.complete"

	ActionPartnerView      = "partner.view"
	ActionPartnerApprove   = "partner.approve"
	ActionPartnerSuspend   = "partner.suspend"
	ActionPartnerReviewKYC = "partner.review_kyc"

	ActionCommissionReverse = "commission.reverse"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	// Authorize checks whether the actor, acting under the given role, may
	// perform the action on the object.
	Authorize(ctx context.Context, actor, role, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("operator:%s", actor)
	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, role, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actor, role, object, action)
	}
	return nil
}

// ensureGrouping keeps the operator bound to exactly the role presented on
// this request, dropping stale bindings from earlier requests.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor, role, object, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeOperator), &actor, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   role,
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actor, role, object, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeOperator), &actor, "authorization.granted", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   role,
	})
}

// shouldAuditGrant marks the money-moving actions whose grants are recorded,
// not just their denials.
func shouldAuditGrant(action string) bool {
	switch action {
	case ActionWithdrawalReject, ActionWithdrawalComplete, ActionCommissionReverse:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Operators review requests but never move money.
		{"role:operator", ObjectWithdrawal, ActionWithdrawalView},
		{"role:operator", ObjectWithdrawal, ActionWithdrawalApprove},
		{"role:operator", ObjectWithdrawal, ActionWithdrawalReject},
		{"role:operator", ObjectPartner, ActionPartnerView},

		// Admins additionally settle payouts and manage partner accounts.
		{"role:admin", ObjectWithdrawal, ActionWithdrawalProcess},
		{"role:admin", ObjectWithdrawal, ActionWithdrawalComplete},
		{"role:admin", ObjectPartner, ActionPartnerApprove},
		{"role:admin", ObjectPartner, ActionPartnerSuspend},
		{"role:admin", ObjectPartner, ActionPartnerReviewKYC},
		{"role:admin", ObjectCommission, ActionCommissionReverse},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		params := make([]interface{}, 0, len(policy))
		for _, value := range policy {
			params = append(params, value)
		}
		if _, err := enforcer.AddPolicy(params...); err != nil {
			return err
		}
	}

	// Admins inherit everything operators can do.
	if _, err := enforcer.AddGroupingPolicy("role:admin", "role:operator"); err != nil {
		return err
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
