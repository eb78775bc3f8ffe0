package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/tabimed/partnerpay/internal/commission/domain"
	"github.com/tabimed/partnerpay/pkg/db/pagination"
)

func (s *Server) CreateBooking(c *gin.Context) {
	var req commissiondomain.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.PartnerID = strings.TrimSpace(req.PartnerID)
	req.CustomerRef = strings.TrimSpace(req.CustomerRef)
	req.ServiceName = strings.TrimSpace(req.ServiceName)

	resp, err := s.commissionSvc.CreateBooking(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBooking(c *gin.Context) {
	resp, err := s.commissionSvc.GetBooking(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CalculateCommission(c *gin.Context) {
	resp, err := s.commissionSvc.Calculate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReverseCommission(c *gin.Context) {
	resp, err := s.commissionSvc.Reverse(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listBookingsQuery struct {
	PageToken        string `form:"page_token"`
	PageSize         int    `form:"page_size"`
	PartnerID        string `form:"partner_id"`
	CommissionStatus string `form:"commission_status"`
}

func (s *Server) ListBookings(c *gin.Context) {
	var query listBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.ListBookings(c.Request.Context(), commissiondomain.ListBookingsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PartnerID:        strings.TrimSpace(query.PartnerID),
		CommissionStatus: strings.TrimSpace(query.CommissionStatus),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Bookings, "page_info": resp.PageInfo})
}

func isCommissionValidationError(err error) bool {
	switch {
	case errors.Is(err, commissiondomain.ErrInvalidBookingID),
		errors.Is(err, commissiondomain.ErrInvalidAmount),
		errors.Is(err, commissiondomain.ErrMissingCustomerRef),
		errors.Is(err, commissiondomain.ErrMissingServiceName),
		errors.Is(err, commissiondomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}
