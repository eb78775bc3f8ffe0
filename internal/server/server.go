package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tabimed/partnerpay/internal/audit"
	auditdomain "github.com/tabimed/partnerpay/internal/audit/domain"
	"github.com/tabimed/partnerpay/internal/authorization"
	"github.com/tabimed/partnerpay/internal/commission"
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	"github.com/tabimed/partnerpay/internal/config"
	"github.com/tabimed/partnerpay/internal/ledger"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	"github.com/tabimed/partnerpay/internal/observability"
	obsmiddleware "github.com/tabimed/partnerpay/internal/observability/logger"
	obsmetrics "github.com/tabimed/partnerpay/internal/observability/metrics"
	obstracing "github.com/tabimed/partnerpay/internal/observability/tracing"
	"github.com/tabimed/partnerpay/internal/partner"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	"github.com/tabimed/partnerpay/internal/providers/email"
	"github.com/tabimed/partnerpay/internal/referral"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"github.com/tabimed/partnerpay/internal/withdrawal"
	withdrawaldomain "github.com/tabimed/partnerpay/internal/withdrawal/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	email.Module,
	ledger.Module,
	partner.Module,
	referral.Module,
	commission.Module,
	withdrawal.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	partnerSvc    partnerdomain.Service
	commissionSvc commissiondomain.Service
	referralSvc   referraldomain.Service
	ledgerSvc     ledgerdomain.Service
	withdrawalSvc withdrawaldomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	PartnerSvc    partnerdomain.Service
	CommissionSvc commissiondomain.Service
	ReferralSvc   referraldomain.Service
	LedgerSvc     ledgerdomain.Service
	WithdrawalSvc withdrawaldomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		partnerSvc:    p.PartnerSvc,
		commissionSvc: p.CommissionSvc,
		referralSvc:   p.ReferralSvc,
		ledgerSvc:     p.LedgerSvc,
		withdrawalSvc: p.WithdrawalSvc,
	}

	svc.engine.Use(svc.RequestContext())

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Partners --------
	api.POST("/partners", s.CreatePartner)

	partners := api.Group("/partners/:id", s.PartnerActor())
	{
		partners.GET("", s.GetPartner)
		partners.POST("/tier/upgrade", s.UpgradeTier)
		partners.POST("/entry-fee/completed", s.CompleteEntryFee)
		partners.PUT("/bank-account", s.SetBankAccount)
		partners.POST("/kyc/submit", s.SubmitKYC)
		partners.GET("/balance", s.GetBalance)
		partners.GET("/ledger", s.ListLedgerEntries)
		partners.GET("/referrals", s.ListReferralRewards)

		partners.POST("/withdrawals", s.RequestWithdrawal)
		partners.GET("/withdrawals", s.ListPartnerWithdrawals)
		partners.GET("/withdrawals/stats", s.PartnerWithdrawalStats)
		partners.DELETE("/withdrawals/:wid", s.CancelWithdrawal)
	}

	// -------- Bookings --------
	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings", s.ListBookings)
	api.GET("/bookings/:id", s.GetBooking)
	api.POST("/bookings/:id/commission", s.CalculateCommission)
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/subscription", s.HandleSubscriptionWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/v1")
	admin.Use(s.OperatorRequired())

	// -------- Partners --------
	admin.GET("/partners/:id", s.authorizeOperator(authorization.ObjectPartner, authorization.ActionPartnerView), s.GetPartner)
	admin.POST("/partners/:id/approve", s.authorizeOperator(authorization.ObjectPartner, authorization.ActionPartnerApprove), s.ApprovePartner)
	admin.POST("/partners/:id/suspend", s.authorizeOperator(authorization.ObjectPartner, authorization.ActionPartnerSuspend), s.SuspendPartner)
	admin.POST("/partners/:id/kyc/review", s.authorizeOperator(authorization.ObjectPartner, authorization.ActionPartnerReviewKYC), s.ReviewKYC)

	// -------- Commission --------
	admin.POST("/bookings/:id/commission/reverse", s.authorizeOperator(authorization.ObjectCommission, authorization.ActionCommissionReverse), s.ReverseCommission)

	// -------- Withdrawals --------
	// Transition authorization happens in the service, which maps the
	// lifecycle action to the matching RBAC policy.
	admin.GET("/withdrawals", s.authorizeOperator(authorization.ObjectWithdrawal, authorization.ActionWithdrawalView), s.ListWithdrawals)
	admin.GET("/withdrawals/stats", s.authorizeOperator(authorization.ObjectWithdrawal, authorization.ActionWithdrawalView), s.WithdrawalStats)
	admin.GET("/withdrawals/:id", s.authorizeOperator(authorization.ObjectWithdrawal, authorization.ActionWithdrawalView), s.GetWithdrawal)
	admin.POST("/withdrawals/:id/:action", s.TransitionWithdrawal)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorizeOperator(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
