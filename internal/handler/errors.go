package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-ticket-checkout/internal/service"
)

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrVerificationFailed):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrAuthentication):
        return http.StatusUnauthorized
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrSeatUnavailable), errors.Is(err, service.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, service.ErrPaymentGateway):
        return http.StatusBadGateway
    case errors.Is(err, service.ErrTransientStore):
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// writeError renders err as {"error": "..."}.  Messages of client errors
// are passed through; server-side failures get a generic message so that
// driver or gateway details never reach the client.
func writeError(c echo.Context, err error) error {
    status := statusFor(err)
    msg := err.Error()
    switch status {
    case http.StatusBadGateway:
        msg = "payment gateway unavailable"
    case http.StatusServiceUnavailable:
        msg = "service temporarily unavailable"
    case http.StatusInternalServerError:
        msg = "internal error"
    }
    if status >= http.StatusInternalServerError {
        c.Logger().Errorf("request failed: %v", err)
    }
    return c.JSON(status, echo.Map{"error": msg})
}
