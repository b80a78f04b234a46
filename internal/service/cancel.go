package service

import (
	"context"

	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
)

// CancelResult reports a cancellation.
type CancelResult struct {
	BookingID      string   `json:"booking_id"`
	PreviousStatus string   `json:"previous_status"`
	Status         string   `json:"status"`
	NeedsRefund    bool     `json:"needs_refund"`
	ReleasedSeats  []string `json:"released_seats"`
}

// CancelBooking cancels a pending or confirmed booking of the caller
// before its show starts.  Seats of a confirmed booking become free again
// and the payment is flagged for refund.
func (s *Service) CancelBooking(ctx context.Context, userID, bookingID string) (*CancelResult, error) {
	if userID == "" {
		return nil, ErrAuthentication
	}
	if bookingID == "" {
		return nil, validationErr("booking id is required")
	}
	res, err := s.bookings.Cancel(ctx, bookingID, userID, s.now())
	if err != nil {
		return nil, storeErr("cancel booking", err)
	}
	out := &CancelResult{
		BookingID:      bookingID,
		PreviousStatus: res.PreviousStatus.String(),
		Status:         model.BookingCancelled.String(),
		NeedsRefund:    res.PreviousStatus == model.BookingConfirmed,
		ReleasedSeats:  res.ReleasedSeats,
	}
	if out.ReleasedSeats == nil {
		out.ReleasedSeats = []string{}
	}
	if len(res.ReleasedSeats) > 0 {
		s.invalidateSeats(ctx, res.ShowID)
	}
	if out.NeedsRefund {
		s.reconcile(ctx, queue.ReconciliationEvent{
			Kind:      queue.KindRefundRequired,
			BookingID: bookingID,
			UserID:    userID,
			ShowID:    res.ShowID,
			Seats:     res.ReleasedSeats,
			Detail:    "confirmed booking cancelled",
		}, nil)
	}
	s.log.WithUserID(userID).Info("booking cancelled", "booking_id", bookingID, "previous_status", out.PreviousStatus)
	return out, nil
}
