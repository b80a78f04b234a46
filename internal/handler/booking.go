package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-ticket-checkout/internal/middleware"
    "github.com/iliyamo/cinema-ticket-checkout/internal/service"
)

// BookingService is the part of the booking flow exposed over HTTP.
type BookingService interface {
    OccupiedSeats(ctx context.Context, showID string) (*service.SeatAvailability, error)
    CreateOrder(ctx context.Context, in service.CreateOrderInput) (*service.OrderResult, error)
    VerifyPayment(ctx context.Context, in service.VerifyInput) (*service.VerifyResult, error)
    ListBookings(ctx context.Context, userID string) ([]service.BookingView, error)
    GetBooking(ctx context.Context, userID, bookingID string) (*service.BookingView, error)
    CancelBooking(ctx context.Context, userID, bookingID string) (*service.CancelResult, error)
}

// BookingHandler serves checkout, payment verification and booking
// history.  All routes except ShowSeats expect JWTAuth to have stored the
// caller's subject in the context.
type BookingHandler struct {
    svc BookingService
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc BookingService) *BookingHandler {
    if svc == nil {
        panic("nil service passed to NewBookingHandler")
    }
    return &BookingHandler{svc: svc}
}

type createOrderRequest struct {
    EventID     string   `json:"event_id" validate:"required"`
    ShowID      string   `json:"show_id" validate:"required"`
    SeatIDs     []string `json:"seat_ids" validate:"required,min=1,unique,dive,required,max=16"`
    TicketPrice int64    `json:"ticket_price" validate:"gt=0"`
}

type verifyPaymentRequest struct {
    BookingID         string `json:"booking_id" validate:"required"`
    RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
    RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
    RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// decode binds the JSON body into req and runs the validator registered
// on echo, if any.
func decode(c echo.Context, req interface{}) error {
    if err := c.Bind(req); err != nil {
        return errors.New("invalid request body")
    }
    if c.Echo().Validator != nil {
        return c.Validate(req)
    }
    return nil
}

// CreateOrder handles POST /v1/orders.  The response carries the gateway
// order id, the amount in minor units and the public key id the client
// needs to open checkout.
func (h *BookingHandler) CreateOrder(c echo.Context) error {
    var req createOrderRequest
    if err := decode(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    res, err := h.svc.CreateOrder(c.Request().Context(), service.CreateOrderInput{
        UserID:      middleware.UserID(c),
        EventID:     req.EventID,
        ShowID:      req.ShowID,
        SeatIDs:     req.SeatIDs,
        TicketPrice: req.TicketPrice,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}

// VerifyPayment handles POST /v1/payments/verify.  An unsuccessful
// verification answers 400 with the result body so the client can show
// the reason.
func (h *BookingHandler) VerifyPayment(c echo.Context) error {
    var req verifyPaymentRequest
    if err := decode(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    res, err := h.svc.VerifyPayment(c.Request().Context(), service.VerifyInput{
        UserID:           middleware.UserID(c),
        BookingID:        req.BookingID,
        GatewayOrderID:   req.RazorpayOrderID,
        GatewayPaymentID: req.RazorpayPaymentID,
        Signature:        req.RazorpaySignature,
    })
    if err != nil {
        return writeError(c, err)
    }
    if verr := res.Err(); verr != nil {
        return c.JSON(statusFor(verr), res)
    }
    return c.JSON(http.StatusOK, res)
}

// ListBookings handles GET /v1/bookings: the caller's bookings, newest first.
func (h *BookingHandler) ListBookings(c echo.Context) error {
    list, err := h.svc.ListBookings(c.Request().Context(), middleware.UserID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    b, err := h.svc.GetBooking(c.Request().Context(), middleware.UserID(c), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// CancelBooking handles DELETE /v1/bookings/:id.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
    res, err := h.svc.CancelBooking(c.Request().Context(), middleware.UserID(c), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// ShowSeats handles GET /v1/shows/:id/seats.  It is public so guests can
// see the seat map before signing in.
func (h *BookingHandler) ShowSeats(c echo.Context) error {
    av, err := h.svc.OccupiedSeats(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, av)
}
