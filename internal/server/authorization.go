package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type permissionRequest struct {
	Role       string `json:"role" binding:"required"`
	Permission string `json:"permission" binding:"required"`
}

// ListPermissions returns the capabilities currently mapped to a role.
func (s *Server) ListPermissions(c *gin.Context) {
	principal := principalFromContext(c)
	role := strings.ToUpper(strings.TrimSpace(c.Param("role")))
	if role != principal.RoleCode {
		if err := s.gate.RequireSuperAdmin(c.Request.Context(), principal); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	permissions, err := s.gate.Permissions(c.Request.Context(), role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"role": role, "permissions": permissions}})
}

func (s *Server) GrantPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.gate.Grant(c.Request.Context(), principalFromContext(c), req.Role, req.Permission); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RevokePermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.gate.Revoke(c.Request.Context(), principalFromContext(c), req.Role, req.Permission); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ReloadPermissions(c *gin.Context) {
	if err := s.gate.RequireSuperAdmin(c.Request.Context(), principalFromContext(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.gate.Reload(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
