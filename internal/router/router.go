// Package router registers the API routes on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/cinema-seat-booking/internal/handler"
	"github.com/iliyamo/cinema-seat-booking/internal/middleware"
)

// Roles allowed on the buyer endpoints.
var buyerRoles = []string{"CUSTOMER", "STAFF"}

// RegisterRoutes registers the unauthenticated operational endpoints.  A nil
// gatherer leaves /metrics out.
func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers login under /v1/auth and /v1/me behind JWTAuth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	e.POST("/v1/auth/login", a.Login)
	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(buyerRoles...))
}

// RegisterSeats registers the theater seat endpoints.  The seat map is
// public; everything that changes seat state requires a token.  limiter
// guards lock acquisition and may be nil.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/v1/theaters/:id/seats", h.Seats)

	g := e.Group("/v1/theaters/:id",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(buyerRoles...),
	)
	g.POST("/selection", h.StartSelection)
	if limiter != nil {
		g.POST("/locks", h.Lock, limiter)
	} else {
		g.POST("/locks", h.Lock)
	}
	g.DELETE("/locks", h.Unlock)
	g.GET("/checkout", h.Checkout)
	g.POST("/checkout-session", h.CreateCheckoutSession)
	g.GET("/payment/success", h.PaymentSuccess)
	// GET is the provider's browser redirect.
	g.GET("/payment/cancel", h.PaymentCancel)
	g.POST("/payment/cancel", h.PaymentCancel)
	g.POST("/confirm", h.DemoConfirm)
}

// RegisterWebhooks registers the payment provider callback.  It is
// authenticated by the event signature, not by JWT.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payment", w.Payment)
}
