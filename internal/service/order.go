package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-ticket-checkout/internal/gateway"
	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// maxSeatIDLen bounds a seat identifier such as "A12" or "BALC-07".
const maxSeatIDLen = 16

// CreateOrderInput is a checkout request.  TicketPrice is what the client
// displayed; the stored show price is what gets charged.
type CreateOrderInput struct {
	UserID      string
	EventID     string
	ShowID      string
	SeatIDs     []string
	TicketPrice int64
}

// OrderResult identifies the gateway order the client opens checkout for.
// Amount is in minor units.  Degraded is set when the gateway order exists
// but the booking could not be stored; BookingID is then empty.
type OrderResult struct {
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	BookingID string `json:"booking_id"`
	KeyID     string `json:"key_id"`
	Quote     Quote  `json:"quote"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func (s *Service) validateOrder(in CreateOrderInput) error {
	if in.UserID == "" {
		return ErrAuthentication
	}
	if in.EventID == "" || in.ShowID == "" {
		return validationErr("event id and show id are required")
	}
	if len(in.SeatIDs) == 0 {
		return validationErr("at least one seat is required")
	}
	if len(in.SeatIDs) > s.pricing.MaxSeats {
		return validationErr("at most %d seats per booking", s.pricing.MaxSeats)
	}
	seen := make(map[string]struct{}, len(in.SeatIDs))
	for _, sid := range in.SeatIDs {
		if strings.TrimSpace(sid) == "" || len(sid) > maxSeatIDLen {
			return validationErr("invalid seat id %q", sid)
		}
		if _, dup := seen[sid]; dup {
			return validationErr("duplicate seat id %q", sid)
		}
		seen[sid] = struct{}{}
	}
	if in.TicketPrice <= 0 || in.TicketPrice > MaxUnitPrice {
		return validationErr("ticket price must be between 1 and %d", MaxUnitPrice)
	}
	return nil
}

// CreateOrder validates a checkout request, creates a gateway order for
// the server-side total and records a pending booking with its payment.
// Requests are not idempotent: a retry creates a new order and booking.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	if err := s.validateOrder(in); err != nil {
		return nil, err
	}
	log := s.log.WithUserID(in.UserID)

	show, err := s.shows.GetByID(ctx, in.ShowID)
	if err != nil {
		return nil, storeErr("load show", err)
	}
	if show.EventID != in.EventID {
		return nil, validationErr("show does not belong to event")
	}
	event, err := s.shows.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, storeErr("load event", err)
	}
	if !event.IsPublic {
		return nil, fmt.Errorf("%w: event", ErrNotFound)
	}
	if !show.Bookable(s.now()) {
		return nil, validationErr("show is not open for booking")
	}

	occupied, err := s.shows.OccupiedSeatIDs(ctx, show.ID)
	if err != nil {
		return nil, storeErr("load occupancy", err)
	}
	if taken := intersect(in.SeatIDs, occupied); len(taken) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeatUnavailable, strings.Join(taken, ","))
	}
	if len(occupied)+len(in.SeatIDs) > show.TotalSeats {
		return nil, fmt.Errorf("%w: only %d seats left", ErrSeatUnavailable, max(show.TotalSeats-len(occupied), 0))
	}

	quote, err := s.pricing.Quote(show.TicketPrice, in.SeatIDs)
	if err != nil {
		return nil, err
	}
	if clientTotal := in.TicketPrice * int64(len(in.SeatIDs)); clientTotal != quote.Subtotal {
		log.Info("client price differs from show price",
			"show_id", show.ID, "client_subtotal", clientTotal, "server_subtotal", quote.Subtotal)
	}

	bookingID := s.newID()
	amount := MinorUnits(quote.Total, s.factor)
	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  "rcpt_" + s.newID(),
		Notes: map[string]string{
			"booking_id": bookingID,
			"event_id":   in.EventID,
			"show_id":    in.ShowID,
			"user_id":    in.UserID,
			"seats":      strings.Join(in.SeatIDs, ","),
		},
	})
	if err != nil {
		log.WithError(err).Error("gateway order creation failed", "show_id", show.ID)
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	res := &OrderResult{
		OrderID:   order.ID,
		Amount:    amount,
		Currency:  s.currency,
		BookingID: bookingID,
		KeyID:     s.gateway.KeyID(),
		Quote:     quote,
	}

	booking := &model.Booking{
		ID:             bookingID,
		UserID:         in.UserID,
		EventID:        in.EventID,
		ShowID:         in.ShowID,
		SeatIDs:        append([]string(nil), in.SeatIDs...),
		TicketCount:    quote.Quantity,
		Subtotal:       quote.Subtotal,
		ConvenienceFee: quote.ConvenienceFee,
		TotalAmount:    quote.Total,
		Currency:       s.currency,
		Status:         model.BookingPending,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		s.reconcile(ctx, queue.ReconciliationEvent{
			Kind:           queue.KindOrphanedGatewayOrder,
			UserID:         in.UserID,
			ShowID:         in.ShowID,
			GatewayOrderID: order.ID,
			Seats:          in.SeatIDs,
		}, err)
		res.BookingID = ""
		res.Degraded = true
		return res, nil
	}

	payment := &model.Payment{
		ID:             s.newID(),
		BookingID:      bookingID,
		UserID:         in.UserID,
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.currency,
		Status:         model.PaymentPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			err = fmt.Errorf("duplicate payment row: %w", err)
		}
		s.reconcile(ctx, queue.ReconciliationEvent{
			Kind:           queue.KindPaymentRowMissing,
			BookingID:      bookingID,
			UserID:         in.UserID,
			ShowID:         in.ShowID,
			GatewayOrderID: order.ID,
		}, err)
	}

	log.Info("order created", "booking_id", bookingID, "gateway_order_id", order.ID, "quote", quote.String())
	return res, nil
}
