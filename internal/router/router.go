package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/salonova/salon-reservation/internal/config"
    "github.com/salonova/salon-reservation/internal/handler"    // import the handlers that implement business logic
    "github.com/salonova/salon-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
    "github.com/salonova/salon-reservation/internal/model"
)

// Handlers bundles every handler the router needs.
type Handlers struct {
    Auth      *handler.AuthHandler
    Booking   *handler.BookingHandler
    Payment   *handler.PaymentHandler
    Webhook   *handler.WebhookHandler
    Promo     *handler.PromoHandler
    Formation *handler.FormationHandler
    Admin     *handler.AdminHandler
}

// Register wires every route of the API onto the Echo instance.
// Public routes carry no auth; customer routes require a valid token
// with the CLIENT or ADMIN role; admin routes require ADMIN.  Webhook
// routes are authenticated by the uniqueness of provider transaction
// ids rather than JWTs, since providers cannot carry our tokens.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client) {
    // Health check for load balancers and monitoring.
    e.GET("/healthz", handler.Health)

    // Session endpoints.
    authGroup := e.Group("/v1/auth")
    authGroup.POST("/register", h.Auth.Register)
    authGroup.POST("/login", h.Auth.Login)

    // Provider callbacks.
    e.POST("/v1/webhooks/:provider", h.Webhook.Receive)

    // Public browse endpoints.  Read-heavy and safe to cache briefly.
    cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
    e.GET("/v1/prestations", h.Booking.ListPrestations, cache)
    e.GET("/v1/formations", h.Formation.List, cache)
    e.GET("/v1/slots/availability", h.Booking.Availability, cache)

    // Authenticated customer routes.
    limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
    authed := e.Group("/v1")
    authed.Use(middleware.JWTAuth(jwtSecret))
    authed.Use(middleware.RequireRole(model.RoleClient, model.RoleAdmin))
    authed.GET("/me", h.Auth.Me)

    authed.POST("/bookings", h.Booking.Create, limiter)
    authed.GET("/bookings", h.Booking.List)
    authed.DELETE("/bookings/:id", h.Booking.Cancel)
    authed.PUT("/bookings/:id/reschedule", h.Booking.Reschedule)

    authed.POST("/promo-codes/validate", h.Promo.Validate, limiter)

    authed.POST("/payments", h.Payment.Initiate)
    authed.GET("/payments", h.Payment.ListForEntity)

    authed.POST("/formations/enroll", h.Formation.Enroll)
    authed.GET("/formations/my", h.Formation.MyEnrollments)
    authed.PUT("/enrollments/:id/progress", h.Formation.UpdateProgress)

    // Staff-only routes.
    admin := e.Group("/v1/admin")
    admin.Use(middleware.JWTAuth(jwtSecret))
    admin.Use(middleware.RequireRole(model.RoleAdmin))
    admin.POST("/promo-codes", h.Admin.CreatePromo)
    admin.GET("/promo-codes", h.Admin.ListPromos)
    admin.DELETE("/promo-codes/:id", h.Admin.DeactivatePromo)
    admin.POST("/slots", h.Admin.CreateSlot)
    admin.POST("/bookings/:id/confirm", h.Admin.ConfirmBooking)
    admin.POST("/on-leave", h.Admin.MarkOnLeave)
    admin.POST("/jobs/expire", h.Admin.RunExpiry)
    admin.POST("/jobs/reminders", h.Admin.RunReminders)
}
