package router

import (
	"net/http"

	_ "github.com/fieldcrm/crm-api/docs" // generated swagger docs
	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/http/handler"
	"github.com/fieldcrm/crm-api/internal/http/middleware"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

var (
	office = []domain.UserRole{domain.RoleAdmin, domain.RoleCoordinator}
	staff  = []domain.UserRole{domain.RoleAdmin, domain.RoleCoordinator, domain.RoleWarehouseman}
)

// ModuleHandlers are the handlers bound to one module's services
type ModuleHandlers struct {
	Orders    *handler.OrderHandler
	Warehouse *handler.WarehouseHandler
	Reports   *handler.ReportHandler
}

type Router struct {
	cfg             *config.Config
	logger          *zap.Logger
	authMiddleware  *auth.Middleware
	rateLimiter     *middleware.RateLimiter
	auditMiddleware *middleware.AuditMiddleware
	metrics         *metrics.Metrics
	healthHandler   *handler.HealthHandler
	userHandler     *handler.UserHandler
	teamHandler     *handler.TeamHandler
	auditHandler    *handler.AuditHandler
	modules         map[domain.ModuleCode]ModuleHandlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	auditMiddleware *middleware.AuditMiddleware,
	metrics *metrics.Metrics,
	healthHandler *handler.HealthHandler,
	userHandler *handler.UserHandler,
	teamHandler *handler.TeamHandler,
	auditHandler *handler.AuditHandler,
	modules map[domain.ModuleCode]ModuleHandlers,
) *Router {
	return &Router{
		cfg:             cfg,
		logger:          logger,
		authMiddleware:  authMiddleware,
		rateLimiter:     rateLimiter,
		auditMiddleware: auditMiddleware,
		metrics:         metrics,
		healthHandler:   healthHandler,
		userHandler:     userHandler,
		teamHandler:     teamHandler,
		auditHandler:    auditHandler,
		modules:         modules,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	if rt.cfg.Metrics.Enabled {
		r.Use(rt.metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)
	if rt.cfg.Server.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(rt.cfg.Server.RequestTimeoutDuration()))
	}

	r.Get("/health", rt.healthHandler.Live)
	r.Get("/health/db", rt.healthHandler.Database)
	r.Get("/health/ready", rt.healthHandler.Ready)
	if rt.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, rt.cfg.Metrics.Path, rt.metrics.Handler())
	}

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.authMiddleware.ResolveLocation)
		r.Use(rt.rateLimiter.LimitByUser)

		r.Route("/core", rt.coreRoutes)

		for _, m := range domain.Modules() {
			h, ok := rt.modules[m.Code]
			if !ok {
				continue
			}
			code := m.Code
			r.Route("/"+string(code), func(r chi.Router) {
				r.Use(rt.authMiddleware.RequireModule(code))
				rt.moduleRoutes(r, h)
			})
		}
	})

	return r
}

func (rt *Router) coreRoutes(r chi.Router) {
	r.Use(middleware.Tag)
	r.Use(rt.auditMiddleware.Audit)

	r.Route("/users", func(r chi.Router) {
		r.Get("/me", rt.userHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireRole(staff...))
			r.Get("/", rt.userHandler.List)
			r.Get("/{id}", rt.userHandler.GetByID)
			r.Get("/{id}/modules", rt.userHandler.ListModuleAccess)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireAdmin)
			r.Post("/", rt.userHandler.Create)
			r.Put("/{id}/modules", rt.userHandler.SyncModules)
			r.Delete("/{id}/modules/{module}", rt.userHandler.DeactivateModule)
			r.Put("/{id}/locations", rt.userHandler.SetLocations)
			r.Put("/{id}/blocked", rt.userHandler.SetBlocked)
		})
	})

	r.Route("/locations", func(r chi.Router) {
		r.Get("/", rt.userHandler.ListLocations)
		r.With(rt.authMiddleware.RequireAdmin).Post("/", rt.userHandler.CreateLocation)
	})

	r.Route("/modules", func(r chi.Router) {
		r.Get("/", rt.userHandler.ListModules)
		r.Route("/{module}", func(r chi.Router) {
			r.With(rt.authMiddleware.RequireRole(staff...)).Get("/technicians", rt.userHandler.ListTechnicians)

			r.Route("/teams", func(r chi.Router) {
				r.With(rt.authMiddleware.RequireRole(staff...)).Get("/", rt.teamHandler.List)
				r.With(rt.authMiddleware.RequireRole(office...)).Post("/", rt.teamHandler.Create)
				r.With(rt.authMiddleware.RequireRole(office...)).Delete("/{id}", rt.teamHandler.Deactivate)
				r.Get("/partner/{technicianId}", rt.teamHandler.SuggestedPartner)
			})

			r.Get("/settings/{userId}", rt.teamHandler.GetSettings)
			r.Put("/settings/{userId}", rt.teamHandler.UpdateSettings)
		})
	})

	r.With(rt.authMiddleware.RequireAdmin).Get("/audit-logs", rt.auditHandler.List)
}

func (rt *Router) moduleRoutes(r chi.Router, h ModuleHandlers) {
	r.Use(middleware.Tag)
	r.Use(rt.auditMiddleware.Audit)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.Orders.List)
		r.Get("/earnings", h.Orders.Earnings)
		r.Get("/catalog", h.Orders.Catalog)
		r.Get("/{id}", h.Orders.GetByID)
		r.Get("/{id}/history", h.Orders.History)
		r.Post("/{id}/complete", h.Orders.Complete)

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireRole(office...))
			r.Post("/", h.Orders.Create)
			r.Post("/{id}/assign", h.Orders.Assign)
			r.Post("/{id}/retry", h.Orders.CreateRetry)
		})
	})

	r.Route("/warehouse", func(r chi.Router) {
		// technician self-service
		r.Get("/sum", h.Warehouse.Sum)
		r.Get("/technicians/{technicianId}", h.Warehouse.TechnicianStock)
		r.Get("/transfers", h.Warehouse.PendingTransfers)
		r.Post("/transfers", h.Warehouse.RequestTransfer)
		r.Post("/transfers/{id}/confirm", h.Warehouse.ConfirmTransfer)
		r.Post("/transfers/{id}/reject", h.Warehouse.RejectTransfer)

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireRole(staff...))
			r.Get("/", h.Warehouse.List)
			r.Get("/collected", h.Warehouse.CollectedDevices)
			r.Get("/items/{id}/history", h.Warehouse.ItemHistory)
			r.Post("/items/{id}/assign", h.Warehouse.AssignToOrder)
			r.Post("/receive", h.Warehouse.Receive)
			r.Post("/transfer", h.Warehouse.Transfer)
			r.Post("/issue", h.Warehouse.Issue)
			r.Post("/return", h.Warehouse.ReturnFromTechnician)
			r.Post("/write-off", h.Warehouse.WriteOff)
			r.Post("/return-to-operator", h.Warehouse.ReturnToOperator)
		})
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/technicians/{technicianId}/stock", h.Reports.TechnicianStock)

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireRole(staff...))
			r.Get("/warehouse-stock", h.Reports.WarehouseStock)
			r.Get("/orders", h.Reports.Orders)
			r.Get("/returned-devices", h.Reports.ReturnedDevices)
			r.Get("/settlements", h.Reports.Settlements)
		})
	})
}
