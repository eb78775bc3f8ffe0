package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tabimed/partnerpay/internal/auditcontext"
	partnerdomain "github.com/tabimed/partnerpay/internal/partner/domain"
)

// HandleSubscriptionWebhook ingests subscription lifecycle events from the
// payment provider. Events replay safely: applying the same status twice is
// a no-op.
func (s *Server) HandleSubscriptionWebhook(c *gin.Context) {
	var req partnerdomain.SubscriptionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.PartnerID = strings.TrimSpace(req.PartnerID)
	req.ProviderStatus = strings.TrimSpace(req.ProviderStatus)
	req.EventID = strings.TrimSpace(req.EventID)

	ctx := auditcontext.WithActor(c.Request.Context(), "system", "subscription_webhook")

	resp, err := s.partnerSvc.RecordSubscriptionEvent(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"partner_id":          resp.ID.String(),
		"subscription_status": resp.SubscriptionStatus,
		"tier":                resp.Tier,
	}})
}
