package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rukun/internal/audit"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/auth"
	authdomain "github.com/smallbiznis/rukun/internal/auth/domain"
	"github.com/smallbiznis/rukun/internal/auth/session"
	"github.com/smallbiznis/rukun/internal/authorization"
	"github.com/smallbiznis/rukun/internal/billing"
	billingservice "github.com/smallbiznis/rukun/internal/billing/service"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/invoice"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	"github.com/smallbiznis/rukun/internal/locking"
	"github.com/smallbiznis/rukun/internal/observability"
	obslogger "github.com/smallbiznis/rukun/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rukun/internal/observability/metrics"
	obstracing "github.com/smallbiznis/rukun/internal/observability/tracing"
	"github.com/smallbiznis/rukun/internal/payment"
	"github.com/smallbiznis/rukun/internal/plan"
	plandomain "github.com/smallbiznis/rukun/internal/plan/domain"
	"github.com/smallbiznis/rukun/internal/providers"
	"github.com/smallbiznis/rukun/internal/settings"
	settingsdomain "github.com/smallbiznis/rukun/internal/settings/domain"
	"github.com/smallbiznis/rukun/internal/subscription"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/internal/tenant"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	auth.Module,
	tenant.Module,
	subscription.Module,
	plan.Module,
	billing.Module,
	settings.Module,
	payment.Module,
	providers.Module,
	locking.Module,
	invoice.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// EngineParams carries the optional observability hooks of the engine.
type EngineParams struct {
	Debug       bool
	HTTPMetrics *obsmetrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.Debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(EngineParams{
		Debug:       obsCfg.Debug(),
		HTTPMetrics: httpMetrics,
		Gatherer:    prometheus.Gatherers{registry, prometheus.DefaultGatherer},
	})
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	authsvc     authdomain.Service
	sessions    *session.Manager
	gate        authorization.Gate
	scopes      *tenancy.ScopeFilter
	auditSvc    auditdomain.Service
	billingSvc  *billingservice.Service
	invoiceSvc  invoicedomain.Service
	planSvc     plandomain.Service
	settingsSvc settingsdomain.Service
	tenantSvc   tenantdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Authsvc     authdomain.Service
	Sessions    *session.Manager
	Gate        authorization.Gate
	Scopes      *tenancy.ScopeFilter
	AuditSvc    auditdomain.Service
	BillingSvc  *billingservice.Service
	InvoiceSvc  invoicedomain.Service
	PlanSvc     plandomain.Service
	SettingsSvc settingsdomain.Service
	TenantSvc   tenantdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		authsvc:     p.Authsvc,
		sessions:    p.Sessions,
		gate:        p.Gate,
		scopes:      p.Scopes,
		auditSvc:    p.AuditSvc,
		billingSvc:  p.BillingSvc,
		invoiceSvc:  p.InvoiceSvc,
		planSvc:     p.PlanSvc,
		settingsSvc: p.SettingsSvc,
		tenantSvc:   p.TenantSvc,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Billing --------
	// Billing, invoice and payment routes stay reachable for EXPIRED tenants so they can pay.
	api.GET("/billing/status", s.OptionalAuth(), s.GetBillingStatus)
	api.GET("/billing/summary", s.AuthRequired(), s.RequirePermission(authorization.PermissionBillingView), s.WithScope(), s.GetBillingSummary)
	api.GET("/billing/plans", s.OptionalAuth(), s.ListPlans)
	api.POST("/billing/subscribe", s.AuthRequired(), s.Subscribe)
	api.GET("/billing/hierarchy", s.AuthRequired(), s.RequirePermission(authorization.PermissionHierarchyView), s.WithScope(), s.GetHierarchy)

	// -------- Invoices --------
	api.GET("/invoices", s.AuthRequired(), s.RequirePermission(authorization.PermissionInvoiceList), s.WithScope(), s.ListInvoices)
	api.GET("/invoices/:id", s.AuthRequired(), s.GetInvoiceByID)
	api.GET("/invoices/:id/download", s.AuthRequired(), s.DownloadInvoice)
	api.POST("/invoices/:id/pay", s.AuthRequired(), s.PayInvoice)
	api.POST("/invoices/:id/confirm", s.AuthRequired(), s.ConfirmInvoice)
	api.POST("/invoices/:id/cancel", s.AuthRequired(), s.CancelInvoice)

	// -------- Payment callbacks --------
	api.POST("/payments/:channel/callback", s.HandlePaymentCallback)

	// -------- Settings --------
	api.GET("/settings/payment", s.AuthRequired(), s.RequirePermission(authorization.PermissionSettingsView), s.GetPaymentSettings)
	api.PUT("/settings/payment", s.AuthRequired(), s.RequireActiveBilling(), s.UpdatePaymentSettings)

	// -------- Tenants --------
	api.POST("/tenants", s.AuthRequired(), s.RequirePermission(authorization.PermissionTenantCreate), s.RequireActiveBilling(), s.CreateTenant)
	api.GET("/tenants/:id", s.AuthRequired(), s.RequireActiveBilling(), s.WithScope(), s.GetTenant)
	api.PATCH("/tenants/:id/billing-mode", s.AuthRequired(), s.UpdateTenantBillingMode)

	// -------- Permissions --------
	api.GET("/permissions/:role", s.AuthRequired(), s.ListPermissions)
	api.POST("/permissions", s.AuthRequired(), s.GrantPermission)
	api.DELETE("/permissions", s.AuthRequired(), s.RevokePermission)
	api.POST("/permissions/reload", s.AuthRequired(), s.ReloadPermissions)

	// -------- Audit --------
	api.GET("/audit-logs", s.AuthRequired(), s.RequirePermission(authorization.PermissionAuditView), s.RequireActiveBilling(), s.WithScope(), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
