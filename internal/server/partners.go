package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/tabimed/partnerpay/internal/ledger/domain"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
	referraldomain "github.com/tabimed/partnerpay/internal/referral/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
)

func (s *Server) CreatePartner(c *gin.Context) {
	var req partnerdomain.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)
	req.ReferrerID = strings.TrimSpace(req.ReferrerID)

	resp, err := s.partnerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPartner(c *gin.Context) {
	resp, err := s.partnerSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApprovePartner(c *gin.Context) {
	resp, err := s.partnerSvc.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SuspendPartner(c *gin.Context) {
	resp, err := s.partnerSvc.Suspend(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpgradeTier(c *gin.Context) {
	var req partnerdomain.UpgradeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PartnerID = strings.TrimSpace(c.Param("id"))
	req.TargetTier = strings.TrimSpace(req.TargetTier)

	resp, err := s.partnerSvc.UpgradeTier(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CompleteEntryFee(c *gin.Context) {
	resp, err := s.partnerSvc.RecordEntryFeePayment(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetBankAccount(c *gin.Context) {
	var req partnerdomain.SetBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PartnerID = strings.TrimSpace(c.Param("id"))

	resp, err := s.partnerSvc.SetBankAccount(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitKYC(c *gin.Context) {
	resp, err := s.partnerSvc.SubmitKYC(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type reviewKYCRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) ReviewKYC(c *gin.Context) {
	var req reviewKYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partnerSvc.ReviewKYC(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Approved)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBalance(c *gin.Context) {
	resp, err := s.partnerSvc.BalanceSummary(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listLedgerQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	SourceType string `form:"source_type"`
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	var query listLedgerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PartnerID:  strings.TrimSpace(c.Param("id")),
		SourceType: strings.TrimSpace(query.SourceType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

type listReferralsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
}

func (s *Server) ListReferralRewards(c *gin.Context) {
	var query listReferralsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.referralSvc.ListByReferrer(c.Request.Context(), referraldomain.ListRewardsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ReferrerID: strings.TrimSpace(c.Param("id")),
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Rewards, "page_info": resp.PageInfo})
}

func isPartnerValidationError(err error) bool {
	switch {
	case errors.Is(err, partnerdomain.ErrInvalidPartnerID),
		errors.Is(err, partnerdomain.ErrInvalidReferrer),
		errors.Is(err, partnerdomain.ErrMissingDisplayName),
		errors.Is(err, partnerdomain.ErrMissingEmail),
		errors.Is(err, partnerdomain.ErrInvalidTargetTier),
		errors.Is(err, partnerdomain.ErrInvalidProviderStatus),
		errors.Is(err, partnerdomain.ErrBankInfoIncomplete):
		return true
	default:
		return false
	}
}
