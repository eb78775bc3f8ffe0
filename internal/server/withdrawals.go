package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	withdrawaldomain "github.com/tabimed/partnerpay/internal/withdrawal/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
)

func (s *Server) RequestWithdrawal(c *gin.Context) {
	var req withdrawaldomain.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PartnerID = strings.TrimSpace(c.Param("id"))

	resp, err := s.withdrawalSvc.Request(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelWithdrawal(c *gin.Context) {
	resp, err := s.withdrawalSvc.Cancel(c.Request.Context(),
		strings.TrimSpace(c.Param("wid")),
		strings.TrimSpace(c.Param("id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listWithdrawalsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	PartnerID string `form:"partner_id"`
	Status    string `form:"status"`
}

func (s *Server) ListPartnerWithdrawals(c *gin.Context) {
	var query listWithdrawalsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.withdrawalSvc.List(c.Request.Context(), withdrawaldomain.ListWithdrawalsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PartnerID: strings.TrimSpace(c.Param("id")),
		Status:    strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Withdrawals, "page_info": resp.PageInfo})
}

func (s *Server) PartnerWithdrawalStats(c *gin.Context) {
	resp, err := s.withdrawalSvc.PartnerStats(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWithdrawal(c *gin.Context) {
	resp, err := s.withdrawalSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListWithdrawals(c *gin.Context) {
	var query listWithdrawalsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.withdrawalSvc.List(c.Request.Context(), withdrawaldomain.ListWithdrawalsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PartnerID: strings.TrimSpace(query.PartnerID),
		Status:    strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Withdrawals, "page_info": resp.PageInfo})
}

func (s *Server) WithdrawalStats(c *gin.Context) {
	partnerID := strings.TrimSpace(c.Query("partner_id"))
	if partnerID == "" {
		AbortWithError(c, newValidationError("partner_id", "invalid_partner_id", "partner_id is required"))
		return
	}

	resp, err := s.withdrawalSvc.PartnerStats(c.Request.Context(), partnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TransitionWithdrawal(c *gin.Context) {
	action := withdrawaldomain.Action(strings.TrimSpace(c.Param("action")))
	switch action {
	case withdrawaldomain.ActionApprove,
		withdrawaldomain.ActionReject,
		withdrawaldomain.ActionProcess,
		withdrawaldomain.ActionComplete:
	default:
		AbortWithError(c, withdrawaldomain.ErrInvalidAction)
		return
	}

	var req withdrawaldomain.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	operatorID, operatorRole := operatorFrom(c)
	req.ID = strings.TrimSpace(c.Param("id"))
	req.Action = action
	req.OperatorID = operatorID
	req.OperatorRole = operatorRole
	req.Reason = strings.TrimSpace(req.Reason)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)

	resp, err := s.withdrawalSvc.Transition(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isWithdrawalValidationError(err error) bool {
	switch {
	case errors.Is(err, withdrawaldomain.ErrInvalidWithdrawalID),
		errors.Is(err, withdrawaldomain.ErrInvalidAmount),
		errors.Is(err, withdrawaldomain.ErrPaymentReferenceRequired),
		errors.Is(err, withdrawaldomain.ErrInvalidAction),
		errors.Is(err, withdrawaldomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}
