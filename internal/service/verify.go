package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticket-checkout/internal/logger"
	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// Reasons reported with an unsuccessful verification.
const (
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonSeatUnavailable   = "seat_unavailable"
	ReasonSettlementPending = "settlement_pending"
	ReasonOrderMismatch     = "order_mismatch"
)

// statusUnknown is reported when the booking could not be read.
const statusUnknown = "unknown"

// VerifyInput is the confirmation the client relays from checkout.
type VerifyInput struct {
	UserID           string
	BookingID        string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyResult is the outcome of a verification.
type VerifyResult struct {
	Success   bool   `json:"success"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Err returns nil for a successful result and an error wrapping
// ErrVerificationFailed otherwise.
func (r *VerifyResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrVerificationFailed, r.Reason)
}

// VerifyPayment checks the gateway signature and settles the booking.
// A valid confirmation for an already confirmed booking succeeds again
// without changing anything.  An invalid one never confirms a booking
// and only fails bookings that are still pending.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.UserID == "" {
		return nil, ErrAuthentication
	}
	if in.BookingID == "" || in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, validationErr("booking id, order id, payment id and signature are required")
	}
	log := s.log.WithUserID(in.UserID)

	// the signature alone tells whether the gateway captured the payment
	signed := s.signatures.Verify(in.GatewayOrderID, in.GatewayPaymentID, in.Signature)

	booking, err := s.bookings.GetByIDForUser(ctx, in.BookingID, in.UserID)
	if err != nil {
		if signed && !errors.Is(err, repository.ErrNotFound) {
			return s.settlementPending(ctx, nil, in, err), nil
		}
		return nil, storeErr("load booking", err)
	}
	orderMatches := true
	payment, err := s.payments.GetByBookingID(ctx, booking.ID)
	switch {
	case err == nil:
		orderMatches = payment.GatewayOrderID == in.GatewayOrderID
	case errors.Is(err, repository.ErrNotFound):
		payment = nil
	case signed:
		return s.settlementPending(ctx, booking, in, err), nil
	default:
		return nil, storeErr("load payment", err)
	}

	if !orderMatches || !signed {
		return s.rejectSignature(ctx, booking, in, log)
	}
	if payment == nil && booking.Status == model.BookingPending {
		// nothing ties the order to this booking yet; the gateway's copy
		// of the order does
		if res := s.bindOrder(ctx, booking, in, log); res != nil {
			return res, nil
		}
	}

	res, err := s.bookings.Settle(ctx, repository.SettleRequest{
		BookingID:        booking.ID,
		UserID:           in.UserID,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Signature:        in.Signature,
		PaidAt:           s.now(),
		PaymentID:        s.newID(),
		Amount:           MinorUnits(booking.TotalAmount, s.factor),
		Currency:         booking.Currency,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, storeErr("settle booking", err)
		}
		return s.settlementPending(ctx, booking, in, err), nil
	}

	out := &VerifyResult{BookingID: booking.ID, Status: res.Status.String()}
	switch res.Outcome {
	case repository.SettleConfirmed:
		out.Success = true
		s.invalidateSeats(ctx, res.ShowID)
		s.publishConfirmed(ctx, booking, in)
		log.Info("booking confirmed", "booking_id", booking.ID, "gateway_payment_id", in.GatewayPaymentID)
	case repository.SettleAlreadyConfirmed:
		out.Success = true
	case repository.SettleSeatConflict:
		out.Reason = ReasonSeatUnavailable
		s.reconcile(ctx, queue.ReconciliationEvent{
			Kind:             queue.KindRefundRequired,
			BookingID:        booking.ID,
			UserID:           in.UserID,
			ShowID:           res.ShowID,
			GatewayOrderID:   in.GatewayOrderID,
			GatewayPaymentID: in.GatewayPaymentID,
			Seats:            res.ConflictingSeats,
			Detail:           "seats taken before settlement",
		}, nil)
	default:
		out.Reason = "booking_" + res.Status.String()
	}
	return out, nil
}

// settlementPending records a captured payment that could not be settled
// and tells the client it went through.  An operator completes it.
func (s *Service) settlementPending(ctx context.Context, b *model.Booking, in VerifyInput, err error) *VerifyResult {
	ev := queue.ReconciliationEvent{
		Kind:             queue.KindSettlementStoreError,
		BookingID:        in.BookingID,
		UserID:           in.UserID,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
	}
	status := statusUnknown
	if b != nil {
		ev.ShowID = b.ShowID
		ev.Seats = b.SeatIDs
		status = b.Status.String()
	}
	s.reconcile(ctx, ev, err)
	return &VerifyResult{
		Success:   true,
		BookingID: in.BookingID,
		Status:    status,
		Reason:    ReasonSettlementPending,
	}
}

// bindOrder checks, for a booking without a payment row, that the gateway
// order was created for this booking and for its amount.  It returns nil
// when settlement may go ahead.
func (s *Service) bindOrder(ctx context.Context, b *model.Booking, in VerifyInput, log *logger.Logger) *VerifyResult {
	order, err := s.gateway.FetchOrder(ctx, in.GatewayOrderID)
	if err != nil {
		s.reconcile(ctx, queue.ReconciliationEvent{
			Kind:             queue.KindUnboundOrder,
			BookingID:        b.ID,
			UserID:           in.UserID,
			ShowID:           b.ShowID,
			GatewayOrderID:   in.GatewayOrderID,
			GatewayPaymentID: in.GatewayPaymentID,
			Seats:            b.SeatIDs,
		}, err)
		return &VerifyResult{
			Success:   true,
			BookingID: b.ID,
			Status:    b.Status.String(),
			Reason:    ReasonSettlementPending,
		}
	}
	want := MinorUnits(b.TotalAmount, s.factor)
	if order.Notes["booking_id"] == b.ID && order.Amount == want && strings.EqualFold(order.Currency, b.Currency) {
		return nil
	}
	log.Warn("gateway order does not belong to booking",
		"booking_id", b.ID, "gateway_order_id", order.ID, "order_booking_id", order.Notes["booking_id"],
		"order_amount", order.Amount, "booking_amount", want)
	s.reconcile(ctx, queue.ReconciliationEvent{
		Kind:             queue.KindOrderMismatch,
		BookingID:        b.ID,
		UserID:           in.UserID,
		ShowID:           b.ShowID,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Detail: fmt.Sprintf("order for booking %q amount %d %s, booking amount %d %s",
			order.Notes["booking_id"], order.Amount, order.Currency, want, b.Currency),
	}, nil)
	return &VerifyResult{
		BookingID: b.ID,
		Status:    b.Status.String(),
		Reason:    ReasonOrderMismatch,
	}
}

func (s *Service) rejectSignature(ctx context.Context, b *model.Booking, in VerifyInput, log *logger.Logger) (*VerifyResult, error) {
	log.Warn("payment signature mismatch", "booking_id", b.ID, "gateway_order_id", in.GatewayOrderID)
	status := b.Status
	if status == model.BookingPending {
		st, err := s.bookings.FailPending(ctx, b.ID, in.UserID)
		if err != nil {
			return nil, storeErr("fail booking", err)
		}
		status = st
	}
	return &VerifyResult{
		BookingID: b.ID,
		Status:    status.String(),
		Reason:    ReasonSignatureMismatch,
	}, nil
}

func (s *Service) publishConfirmed(ctx context.Context, b *model.Booking, in VerifyInput) {
	pctx, cancel := detached(ctx)
	defer cancel()
	ev := queue.BookingConfirmedEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		EventID:          b.EventID,
		ShowID:           b.ShowID,
		Seats:            b.SeatIDs,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		TotalAmountMinor: MinorUnits(b.TotalAmount, s.factor),
		Currency:         b.Currency,
		ConfirmedAt:      s.now().Format(time.RFC3339),
	}
	if err := s.events.PublishBookingConfirmed(pctx, ev); err != nil {
		s.log.WithError(err).Warn("publish booking.confirmed failed", "booking_id", b.ID)
	}
}
