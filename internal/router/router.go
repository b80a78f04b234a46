package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-checkout/internal/handler"
)

// RegisterRoutes registers the health check used by load balancers.  The
// public seat map is registered by RegisterPublic.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic registers unauthenticated booking endpoints.  Guests can
// look at the seat map of a show before signing in.
func RegisterPublic(e *echo.Echo, h *handler.BookingHandler, mws ...echo.MiddlewareFunc) {
	e.GET("/v1/shows/:id/seats", h.ShowSeats, mws...)
}
