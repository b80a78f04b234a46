package service

import (
	"context"

	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// BookingView is a booking as shown in the user's history.
type BookingView = repository.BookingDetail

// PaymentStatusUnknown is reported for bookings without a payment row.
const PaymentStatusUnknown = "unknown"

// ListBookings returns the caller's bookings, newest first.
func (s *Service) ListBookings(ctx context.Context, userID string) ([]BookingView, error) {
	if userID == "" {
		return nil, ErrAuthentication
	}
	details, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list bookings", err)
	}
	for i := range details {
		normalizeView(&details[i])
	}
	return details, nil
}

// GetBooking returns one of the caller's bookings.
func (s *Service) GetBooking(ctx context.Context, userID, bookingID string) (*BookingView, error) {
	if userID == "" {
		return nil, ErrAuthentication
	}
	if bookingID == "" {
		return nil, validationErr("booking id is required")
	}
	d, err := s.bookings.GetDetailForUser(ctx, bookingID, userID)
	if err != nil {
		return nil, storeErr("load booking", err)
	}
	normalizeView(d)
	return d, nil
}

func normalizeView(v *BookingView) {
	if v.PaymentStatus == "" {
		v.PaymentStatus = PaymentStatusUnknown
	}
	if v.Seats == nil {
		v.Seats = []string{}
	}
	if len(v.Seats) > 0 {
		v.TicketCount = len(v.Seats)
	}
}
