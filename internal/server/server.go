package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/billbook/internal/audit"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/invoice"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/observability"
	obsmiddleware "github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/party"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/internal/ratelimit"
	"github.com/smallbiznis/billbook/internal/report"
	reportdomain "github.com/smallbiznis/billbook/internal/report/domain"
	"github.com/smallbiznis/billbook/internal/scheduler"
	"github.com/smallbiznis/billbook/internal/tax"
	"github.com/smallbiznis/billbook/internal/user"
	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	tax.Module,
	user.Module,
	party.Module,
	audit.Module,
	report.Module,
	invoice.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
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
	engine     *gin.Engine
	cfg        config.Config
	userSvc    userdomain.Service
	partySvc   partydomain.Service
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
	reportSvc  reportdomain.Service
	limiter    *ratelimit.WriteLimiter

	billingMetrics *obsmetrics.BillingMetrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	UserSvc    userdomain.Service
	PartySvc   partydomain.Service
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service
	ReportSvc  reportdomain.Service
	Limiter    *ratelimit.WriteLimiter `optional:"true"`

	BillingMetrics *obsmetrics.BillingMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		userSvc:    p.UserSvc,
		partySvc:   p.PartySvc,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
		reportSvc:  p.ReportSvc,
		limiter:    p.Limiter,

		billingMetrics: p.BillingMetrics,
	}
	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Users --------
	api.POST("/users", s.CreateUser)
	api.GET("/users/:id", s.ActorRequired(), s.GetUserByID)

	owned := api.Group("", s.ActorRequired(), s.WriteRateLimit())

	// -------- Invoices --------
	// stats is registered before :id so it is not captured as an id.
	owned.GET("/invoices/stats", s.GetInvoiceStats)
	owned.GET("/invoices", s.ListInvoices)
	owned.POST("/invoices", s.CreateInvoice)
	owned.GET("/invoices/:id", s.GetInvoiceByID)
	owned.PUT("/invoices/:id", s.UpdateInvoice)
	owned.DELETE("/invoices/:id", s.DeleteInvoice)
	owned.GET("/invoices/:id/audit-logs", s.ListInvoiceAuditLogs)

	// -------- Parties --------
	owned.GET("/parties", s.ListParties)
	owned.POST("/parties", s.CreateParty)
	owned.GET("/parties/:id", s.GetPartyByID)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
