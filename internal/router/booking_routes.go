package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-checkout/internal/handler"
)

// RegisterBooking registers the checkout and booking endpoints under /v1.
// auth must authenticate the caller (JWTAuth); extra middlewares such as
// role checks and rate limiting run after it, in the given order, so that
// limits can be keyed by user.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, auth echo.MiddlewareFunc, mws ...echo.MiddlewareFunc) {
	g := e.Group("/v1", append([]echo.MiddlewareFunc{auth}, mws...)...)

	g.POST("/orders", h.CreateOrder)
	g.POST("/payments/verify", h.VerifyPayment)

	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)
}
