package server

import (
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/rukun/internal/observability/context"
	"github.com/smallbiznis/rukun/internal/tenancy"
)

const (
	contextPrincipalKey = "principal"
	contextScopeKey     = "scope"
)

// AuthRequired resolves the session into a principal and rejects anonymous callers.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, tenancy.ErrUnauthenticated)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		s.setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalAuth resolves a principal when a valid session is present and
// continues as anonymous otherwise.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := tenancy.Anonymous()
		if token, ok := s.sessions.ReadToken(c); ok {
			if resolved, err := s.authsvc.Authenticate(c.Request.Context(), token); err == nil {
				principal = resolved
			}
		}

		s.setPrincipal(c, principal)
		c.Next()
	}
}

// RequirePermission checks a capability before the handler runs.
func (s *Server) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.gate.Can(c.Request.Context(), principalFromContext(c), permission); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RequireActiveBilling rejects callers whose tenant billing has EXPIRED.
func (s *Server) RequireActiveBilling() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.billingSvc.RequireUsable(c.Request.Context(), principalFromContext(c)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// WithScope computes the read scope of the principal once per request.
func (s *Server) WithScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := s.scopes.Resolve(c.Request.Context(), principalFromContext(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextScopeKey, scope)
		c.Next()
	}
}

func (s *Server) setPrincipal(c *gin.Context, principal tenancy.Principal) {
	c.Set(contextPrincipalKey, principal)

	ctx := c.Request.Context()
	if principal.Authenticated() {
		ctx = obscontext.WithActor(ctx, principal.ActorType(), principal.ActorID())
	}
	if principal.HasTenant() {
		ctx = obscontext.WithTenantID(ctx, principal.Tenant().String())
	}
	c.Request = c.Request.WithContext(ctx)
}

func principalFromContext(c *gin.Context) tenancy.Principal {
	if value, ok := c.Get(contextPrincipalKey); ok {
		if principal, ok := value.(tenancy.Principal); ok {
			return principal
		}
	}
	return tenancy.Anonymous()
}

// scopeFromContext returns the request scope, or no tenants when WithScope did not run.
func scopeFromContext(c *gin.Context) tenancy.Scope {
	if value, ok := c.Get(contextScopeKey); ok {
		if scope, ok := value.(tenancy.Scope); ok {
			return scope
		}
	}
	return tenancy.NoTenants()
}
