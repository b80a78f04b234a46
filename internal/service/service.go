// Package service implements the booking flow: seat inventory, pricing,
// gateway order issuing, payment verification with seat settlement,
// booking history and cancellation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-ticket-checkout/internal/gateway"
	"github.com/iliyamo/cinema-ticket-checkout/internal/logger"
	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// ShowStore reads shows, events and seat occupancy.
type ShowStore interface {
	GetByID(ctx context.Context, id string) (*model.Show, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	OccupiedSeatIDs(ctx context.Context, showID string) ([]string, error)
	HeldSeatIDs(ctx context.Context, showID string, since time.Time) ([]string, error)
}

// BookingStore persists bookings and runs the settlement transaction.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByIDForUser(ctx context.Context, bookingID, userID string) (*model.Booking, error)
	Settle(ctx context.Context, req repository.SettleRequest) (*repository.SettleResult, error)
	FailPending(ctx context.Context, bookingID, userID string) (model.BookingStatus, error)
	Cancel(ctx context.Context, bookingID, userID string, now time.Time) (*repository.CancelResult, error)
	ListByUser(ctx context.Context, userID string) ([]repository.BookingDetail, error)
	GetDetailForUser(ctx context.Context, bookingID, userID string) (*repository.BookingDetail, error)
}

// PaymentStore persists payment rows.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByBookingID(ctx context.Context, bookingID string) (*model.Payment, error)
}

// EventPublisher emits booking events.  Publishing is best-effort.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PublishReconciliation(ctx context.Context, ev queue.ReconciliationEvent) error
}

// SeatCache caches occupied seat ids per show.
type SeatCache interface {
	Get(ctx context.Context, showID string) ([]string, bool)
	Set(ctx context.Context, showID string, seats []string) error
	Invalidate(ctx context.Context, showID string) error
}

// SignatureVerifier checks gateway payment signatures.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// Deps are the collaborators of Service.  Events and Cache may be nil.
type Deps struct {
	Shows      ShowStore
	Bookings   BookingStore
	Payments   PaymentStore
	Gateway    gateway.Client
	Signatures SignatureVerifier
	Events     EventPublisher
	Cache      SeatCache
	Log        *logger.Logger
}

// Options carry the money and inventory settings.
type Options struct {
	Currency        string
	MinorUnitFactor int64
	FeeBps          int64
	MaxSeats        int
	HoldTTL         time.Duration
}

// Service is the booking flow.  It holds no request state; all shared
// state lives in the stores.
type Service struct {
	shows      ShowStore
	bookings   BookingStore
	payments   PaymentStore
	gateway    gateway.Client
	signatures SignatureVerifier
	events     EventPublisher
	cache      SeatCache
	log        *logger.Logger

	pricing  Pricing
	currency string
	factor   int64
	holdTTL  time.Duration

	now   func() time.Time
	newID func() string
}

// New wires a Service.  Zero options fall back to INR, a factor of 100,
// a 5% fee and a cap of 10 seats.
func New(d Deps, o Options) *Service {
	if o.Currency == "" {
		o.Currency = "INR"
	}
	if o.MinorUnitFactor <= 0 {
		o.MinorUnitFactor = 100
	}
	if o.FeeBps == 0 {
		o.FeeBps = DefaultFeeBps
	}
	if o.MaxSeats <= 0 {
		o.MaxSeats = DefaultMaxSeats
	}
	s := &Service{
		shows:      d.Shows,
		bookings:   d.Bookings,
		payments:   d.Payments,
		gateway:    d.Gateway,
		signatures: d.Signatures,
		events:     d.Events,
		cache:      d.Cache,
		log:        d.Log,
		pricing:    Pricing{FeeBps: o.FeeBps, MaxSeats: o.MaxSeats},
		currency:   o.Currency,
		factor:     o.MinorUnitFactor,
		holdTTL:    o.HoldTTL,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

type noopPublisher struct{}

func (noopPublisher) PublishBookingConfirmed(context.Context, queue.BookingConfirmedEvent) error {
	return nil
}
func (noopPublisher) PublishReconciliation(context.Context, queue.ReconciliationEvent) error {
	return nil
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]string, bool)  { return nil, false }
func (noopCache) Set(context.Context, string, []string) error    { return nil }
func (noopCache) Invalidate(context.Context, string) error       { return nil }

const publishTimeout = 5 * time.Second

// detached returns a context that survives the request being cancelled,
// for side effects that run after the outcome is already decided.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

// reconcile logs an inconsistency and publishes it for follow-up.
func (s *Service) reconcile(ctx context.Context, ev queue.ReconciliationEvent, err error) {
	ev.OccurredAt = s.now().Format(time.RFC3339)
	if err != nil && ev.Detail == "" {
		ev.Detail = err.Error()
	}
	s.log.Reconcile(ctx, "reconciliation required", err,
		"kind", string(ev.Kind),
		"booking_id", ev.BookingID,
		"user_id", ev.UserID,
		"gateway_order_id", ev.GatewayOrderID,
		"gateway_payment_id", ev.GatewayPaymentID,
	)
	pctx, cancel := detached(ctx)
	defer cancel()
	if perr := s.events.PublishReconciliation(pctx, ev); perr != nil {
		s.log.WithError(perr).Warn("publish reconciliation event failed", "kind", string(ev.Kind))
	}
}

func (s *Service) invalidateSeats(ctx context.Context, showID string) {
	cctx, cancel := detached(ctx)
	defer cancel()
	if err := s.cache.Invalidate(cctx, showID); err != nil {
		s.log.WithError(err).Warn("seat cache invalidation failed", "show_id", showID)
	}
}
