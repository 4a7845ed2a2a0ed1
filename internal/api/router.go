// Package api provides the HTTP API for MealDrop.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/api/handler"
	"github.com/mealdrop/mealdrop/internal/api/middleware"
	"github.com/mealdrop/mealdrop/internal/auth"
	"github.com/mealdrop/mealdrop/internal/device"
	"github.com/mealdrop/mealdrop/internal/order"
	"github.com/mealdrop/mealdrop/internal/push"
	"github.com/mealdrop/mealdrop/internal/realtime"
	"github.com/mealdrop/mealdrop/internal/user"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	JWTService     *auth.JWTService
	UserService    *user.Service
	DeviceService  *device.Service
	OrderService   *order.Service
	Hub            *realtime.Hub
	PushDispatcher *push.Dispatcher

	// ReadinessProbes maps subsystem name to its health probe.
	ReadinessProbes map[string]handler.ReadinessProbe
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mealdrop-api"
	}

	// Global middleware that never wraps the response writer. The websocket
	// route needs the writer to stay hijackable for the upgrade.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)

	var connections handler.ConnectionCounter
	var broadcaster handler.LocationBroadcaster
	if cfg.Hub != nil {
		connections = cfg.Hub.Registry()
		broadcaster = cfg.Hub
	}

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, connections, cfg.ReadinessProbes)
	meHandler := handler.NewMeHandler(cfg.UserService)
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceService, cfg.PushDispatcher, cfg.Logger)
	orderHandler := handler.NewOrderHandler(cfg.OrderService, broadcaster, cfg.Logger)
	wsHandler := handler.NewWSHandler(cfg.Hub, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.JWTService)
	adminOnly := middleware.RequireRole(user.RoleAdmin)
	agentOrAdmin := middleware.RequireRole(user.RoleAgent, user.RoleAdmin)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Realtime channel - minimal middleware chain, auth only.
		r.With(authMiddleware).Get("/ws", wsHandler.Connect)

		// REST surface - full middleware stack.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Tracing(serviceName))
			if cfg.Metrics != nil {
				r.Use(cfg.Metrics.Middleware())
			}
			r.Use(middleware.Logger(cfg.Logger))
			r.Use(middleware.Recovery(cfg.Logger))
			r.Use(middleware.SecurityHeaders)
			r.Use(middleware.RequireTLS)
			r.Use(middleware.ContentTypeJSON)

			// Ops endpoints (public)
			r.Route("/ops", func(r chi.Router) {
				r.Get("/health", opsHandler.HealthCheck)
				r.Get("/ready", opsHandler.ReadinessCheck)
				r.With(authMiddleware, adminOnly).Get("/status", opsHandler.SystemStatus)
			})

			// Account
			r.With(authMiddleware, standardRateLimit).Get("/me", meHandler.GetMe)

			// Device tokens (authenticated)
			r.Route("/devices", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
				r.Post("/", deviceHandler.RegisterDevice)
				r.Patch("/{token}/ping", deviceHandler.PingDevice)
				r.Delete("/{token}", deviceHandler.UnregisterDevice)
			})

			// Orders (authenticated)
			r.Route("/orders", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))

				r.Post("/", orderHandler.CreateOrder)
				r.Get("/", orderHandler.ListOrders)

				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", orderHandler.GetOrder)
					r.Post("/cancel", orderHandler.CancelOrder)

					r.With(adminOnly).Post("/assign", orderHandler.AssignOrder)
					r.With(adminOnly).Post("/ready", orderHandler.MarkReady)
					r.With(adminOnly).Post("/payment", orderHandler.UpdatePayment)

					r.With(agentOrAdmin).Post("/out-for-delivery", orderHandler.StartDelivery)
					r.With(agentOrAdmin).Post("/delivered", orderHandler.MarkDelivered)
					r.With(agentOrAdmin).Post("/location", orderHandler.UpdateLocation)
				})
			})
		})
	})

	return r
}
