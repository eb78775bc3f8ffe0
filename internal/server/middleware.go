package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tabimed/partnerpay/internal/auditcontext"
)

const (
	headerRequestID    = "X-Request-Id"
	headerOperatorID   = "X-Operator-Id"
	headerOperatorRole = "X-Operator-Role"

	ctxOperatorID   = "operator_id"
	ctxOperatorRole = "operator_role"
)

// RequestContext stamps every request with the identifiers the audit trail
// records alongside each action.
func (s *Server) RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		ctx := auditcontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// PartnerActor attributes actions on /partners/:id routes to the partner in
// the path. Authentication happens at the gateway; this layer only carries
// the identity through to the audit trail.
func (s *Server) PartnerActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		partnerID := strings.TrimSpace(c.Param("id"))
		if partnerID != "" {
			ctx := auditcontext.WithActor(c.Request.Context(), "partner", partnerID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// OperatorRequired gates the back-office surface on the operator identity
// headers set by the internal gateway.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := strings.TrimSpace(c.GetHeader(headerOperatorID))
		operatorRole := strings.TrimSpace(c.GetHeader(headerOperatorRole))
		if operatorID == "" || operatorRole == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(ctxOperatorID, operatorID)
		c.Set(ctxOperatorRole, operatorRole)

		ctx := auditcontext.WithActor(c.Request.Context(), "operator", operatorID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func operatorFrom(c *gin.Context) (string, string) {
	return c.GetString(ctxOperatorID), c.GetString(ctxOperatorRole)
}

// authorizeOperator enforces an RBAC policy before the handler runs.
func (s *Server) authorizeOperator(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID, operatorRole := operatorFrom(c)
		if err := s.authzSvc.Authorize(c.Request.Context(), operatorID, operatorRole, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
