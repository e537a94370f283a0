package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
)

type createTenantRequest struct {
	Name           string `json:"name" binding:"required"`
	Level          string `json:"level" binding:"required,oneof=RT RW rt rw"`
	ParentTenantID string `json:"parent_tenant_id"`
	BillingMode    string `json:"billing_mode"`
}

type updateBillingModeRequest struct {
	BillingMode string `json:"billing_mode" binding:"required"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	parentID, err := parseOptionalSnowflakeID(req.ParentTenantID)
	if err != nil {
		AbortWithError(c, newValidationError("parent_tenant_id", "invalid_parent_tenant_id", "invalid parent_tenant_id"))
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), principalFromContext(c), tenantdomain.CreateTenantRequest{
		Name:           strings.TrimSpace(req.Name),
		Level:          strings.ToUpper(strings.TrimSpace(req.Level)),
		ParentTenantID: parentID,
		BillingMode:    req.BillingMode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

// GetTenant returns a tenant visible in the request scope.
func (s *Server) GetTenant(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}
	if !scopeFromContext(c).Contains(id) {
		AbortWithError(c, tenantdomain.ErrNotFound)
		return
	}

	tenant, err := s.tenantSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) UpdateTenantBillingMode(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req updateBillingModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	mode, ok := tenantdomain.ParseBillingMode(strings.ToUpper(strings.TrimSpace(req.BillingMode)))
	if !ok {
		AbortWithError(c, tenantdomain.ErrInvalidBillingMode)
		return
	}

	tenant, err := s.tenantSvc.UpdateBillingMode(c.Request.Context(), principalFromContext(c), id, mode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tenant})
}
