package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
)

type subscribeResponse struct {
	InvoiceID string                 `json:"invoice_id"`
	Message   string                 `json:"message"`
	Invoice   *invoicedomain.Invoice `json:"invoice"`
}

// GetBillingStatus reports the caller's tenant state. Anonymous callers get DEMO.
func (s *Server) GetBillingStatus(c *gin.Context) {
	view, err := s.billingSvc.Status(c.Request.Context(), principalFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) GetBillingSummary(c *gin.Context) {
	tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	var target snowflake.ID
	if tenantID != nil {
		target = *tenantID
	}
	summary, err := s.billingSvc.Summary(c.Request.Context(), principalFromContext(c), scopeFromContext(c), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// ListPlans returns the catalog, narrowed to the caller's tenant level when known.
func (s *Server) ListPlans(c *gin.Context) {
	principal := principalFromContext(c)

	var level tenancy.Level
	if principal.HasTenant() {
		tenant, err := s.tenantSvc.Get(c.Request.Context(), principal.Tenant())
		if err != nil && !errors.Is(err, tenantdomain.ErrNotFound) {
			AbortWithError(c, err)
			return
		}
		if tenant != nil {
			level = tenant.Level
		}
	}

	plans, err := s.planSvc.List(c.Request.Context(), level)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) Subscribe(c *gin.Context) {
	var req invoicedomain.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan", "plan_id is required"))
		return
	}

	invoice, err := s.invoiceSvc.Subscribe(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": subscribeResponse{
		InvoiceID: invoice.ID.String(),
		Message:   "invoice issued, complete the payment to activate the subscription",
		Invoice:   invoice,
	}})
}

func (s *Server) GetHierarchy(c *gin.Context) {
	tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	var target snowflake.ID
	if tenantID != nil {
		target = *tenantID
	}
	hierarchy, err := s.billingSvc.Hierarchy(c.Request.Context(), principalFromContext(c), scopeFromContext(c), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hierarchy})
}
