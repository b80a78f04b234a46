package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-ticket-checkout/internal/gateway"
	"github.com/iliyamo/cinema-ticket-checkout/internal/logger"
	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
	"github.com/iliyamo/cinema-ticket-checkout/internal/repository"
)

// memStore is an in-memory ShowStore, BookingStore and PaymentStore.
// One mutex plays the role of the row locks of the SQL implementation.
type memStore struct {
	mu        sync.Mutex
	events    map[string]model.Event
	shows     map[string]model.Show
	bookings  map[string]*model.Booking
	payments  map[string]*model.Payment // by booking id
	occupancy map[string]map[string]string // show -> seat -> booking
	seq       int

	failCreateBooking error
	failCreatePayment error
	failSettle        error
	writes            int
}

func newMemStore() *memStore {
	return &memStore{
		events:    map[string]model.Event{},
		shows:     map[string]model.Show{},
		bookings:  map[string]*model.Booking{},
		payments:  map[string]*model.Payment{},
		occupancy: map[string]map[string]string{},
	}
}

func (m *memStore) addShow(ev model.Event, sh model.Show) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
	m.shows[sh.ID] = sh
}

func (m *memStore) occupy(showID, seatID, bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupancy[showID] == nil {
		m.occupancy[showID] = map[string]string{}
	}
	m.occupancy[showID][seatID] = bookingID
}

func (m *memStore) booking(id string) model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) payment(bookingID string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[bookingID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Show, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sh, nil
}

func (m *memStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ev, nil
}

func (m *memStore) OccupiedSeatIDs(_ context.Context, showID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for sid := range m.occupancy[showID] {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) HeldSeatIDs(_ context.Context, showID string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]struct{}{}
	for _, b := range m.bookings {
		if b.ShowID == showID && b.Status == model.BookingPending && b.CreatedAt.After(since) {
			for _, sid := range b.SeatIDs {
				set[sid] = struct{}{}
			}
		}
	}
	out := []string{}
	for sid := range set {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Create(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateBooking != nil {
		return m.failCreateBooking
	}
	m.writes++
	m.seq++
	cp := *b
	cp.SeatIDs = append([]string(nil), b.SeatIDs...)
	cp.CreatedAt = testNow.Add(-5 * time.Minute).Add(time.Duration(m.seq) * time.Second)
	cp.UpdatedAt = cp.CreatedAt
	b.CreatedAt, b.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) GetByIDForUser(_ context.Context, bookingID, userID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) Settle(_ context.Context, req repository.SettleRequest) (*repository.SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSettle != nil {
		return nil, m.failSettle
	}
	b, ok := m.bookings[req.BookingID]
	if !ok || b.UserID != req.UserID {
		return nil, repository.ErrNotFound
	}
	res := &repository.SettleResult{Status: b.Status, ShowID: b.ShowID, SeatIDs: b.SeatIDs}
	switch b.Status {
	case model.BookingConfirmed:
		res.Outcome = repository.SettleAlreadyConfirmed
		return res, nil
	case model.BookingPending:
	default:
		res.Outcome = repository.SettleNotPending
		return res, nil
	}
	m.writes++
	occ := m.occupancy[b.ShowID]
	if occ == nil {
		occ = map[string]string{}
		m.occupancy[b.ShowID] = occ
	}
	var conflicts []string
	for _, sid := range b.SeatIDs {
		if _, taken := occ[sid]; taken {
			conflicts = append(conflicts, sid)
		}
	}
	if len(conflicts) == 0 && len(occ)+len(b.SeatIDs) > m.shows[b.ShowID].TotalSeats {
		conflicts = append(conflicts, b.SeatIDs...)
	}
	p := m.payments[b.ID]
	if len(conflicts) > 0 {
		b.Status = model.BookingFailed
		b.NeedsRefund = true
		if p != nil && p.Status == model.PaymentPending {
			p.Status = model.PaymentFailed
			p.GatewayPaymentID = &req.GatewayPaymentID
		}
		res.Outcome = repository.SettleSeatConflict
		res.Status = model.BookingFailed
		res.ConflictingSeats = conflicts
		return res, nil
	}
	for _, sid := range b.SeatIDs {
		occ[sid] = b.ID
	}
	b.Status = model.BookingConfirmed
	paidAt := req.PaidAt
	if p == nil {
		p = &model.Payment{ID: req.PaymentID, BookingID: b.ID, UserID: b.UserID, GatewayOrderID: req.GatewayOrderID,
			Amount: req.Amount, Currency: req.Currency}
		m.payments[b.ID] = p
	}
	p.Status = model.PaymentCompleted
	p.GatewayPaymentID = &req.GatewayPaymentID
	p.Signature = &req.Signature
	p.PaidAt = &paidAt
	res.Outcome = repository.SettleConfirmed
	res.Status = model.BookingConfirmed
	return res, nil
}

func (m *memStore) FailPending(_ context.Context, bookingID, userID string) (model.BookingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.UserID != userID {
		return "", repository.ErrNotFound
	}
	if b.Status != model.BookingPending {
		return b.Status, nil
	}
	m.writes++
	b.Status = model.BookingFailed
	if p := m.payments[bookingID]; p != nil && p.Status == model.PaymentPending {
		p.Status = model.PaymentFailed
	}
	return b.Status, nil
}

func (m *memStore) Cancel(_ context.Context, bookingID, userID string, now time.Time) (*repository.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	if !b.Status.CanBeCancelled() {
		return nil, fmt.Errorf("%w: booking is %s", repository.ErrConflict, b.Status)
	}
	if !m.shows[b.ShowID].StartsAt.After(now) {
		return nil, fmt.Errorf("%w: show already started", repository.ErrConflict)
	}
	released := []string{}
	for sid, owner := range m.occupancy[b.ShowID] {
		if owner == b.ID {
			released = append(released, sid)
			delete(m.occupancy[b.ShowID], sid)
		}
	}
	sort.Strings(released)
	prev := b.Status
	b.Status = model.BookingCancelled
	b.NeedsRefund = prev == model.BookingConfirmed
	return &repository.CancelResult{PreviousStatus: prev, ShowID: b.ShowID, ReleasedSeats: released}, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]repository.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*model.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	out := make([]repository.BookingDetail, 0, len(list))
	for _, b := range list {
		out = append(out, m.detail(b))
	}
	return out, nil
}

func (m *memStore) GetDetailForUser(_ context.Context, bookingID, userID string) (*repository.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	d := m.detail(b)
	return &d, nil
}

func (m *memStore) detail(b *model.Booking) repository.BookingDetail {
	ev := m.events[b.EventID]
	d := repository.BookingDetail{
		ID:             b.ID,
		EventID:        b.EventID,
		ShowID:         b.ShowID,
		EventTitle:     ev.Title,
		Venue:          ev.Venue,
		City:           ev.City,
		ShowStartsAt:   m.shows[b.ShowID].StartsAt.Format(time.RFC3339),
		Seats:          append([]string(nil), b.SeatIDs...),
		TicketCount:    b.TicketCount,
		Subtotal:       b.Subtotal,
		ConvenienceFee: b.ConvenienceFee,
		TotalAmount:    b.TotalAmount,
		Currency:       b.Currency,
		Status:         b.Status.String(),
		NeedsRefund:    b.NeedsRefund,
		BookingDate:    b.CreatedAt.Format(time.RFC3339),
	}
	if p := m.payments[b.ID]; p != nil {
		d.PaymentStatus = string(p.Status)
		d.PaymentID = p.GatewayPaymentID
	}
	return d
}

// payments side of memStore, exposed through paymentView so the method
// names do not clash with the booking store.
type paymentView struct{ m *memStore }

func (v paymentView) Create(_ context.Context, p *model.Payment) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if v.m.failCreatePayment != nil {
		return v.m.failCreatePayment
	}
	if _, exists := v.m.payments[p.BookingID]; exists {
		return repository.ErrDuplicate
	}
	v.m.writes++
	cp := *p
	v.m.payments[p.BookingID] = &cp
	return nil
}

func (v paymentView) GetByBookingID(_ context.Context, bookingID string) (*model.Payment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.payments[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []gateway.OrderRequest
	orders   map[string]gateway.Order
	err      error
	fetchErr error
	fetches  int
	nextID   int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	g.nextID++
	o := gateway.Order{ID: fmt.Sprintf("order_%d", g.nextID), Amount: req.Amount, Currency: req.Currency,
		Receipt: req.Receipt, Status: "created", Notes: req.Notes}
	if g.orders == nil {
		g.orders = map[string]gateway.Order{}
	}
	g.orders[o.ID] = o
	return &o, nil
}

func (g *fakeGateway) FetchOrder(_ context.Context, orderID string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: no order %s", gateway.ErrGateway, orderID)
	}
	return &o, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakePublisher struct {
	mu        sync.Mutex
	confirmed []queue.BookingConfirmedEvent
	reconcile []queue.ReconciliationEvent
}

func (p *fakePublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, ev)
	return nil
}

func (p *fakePublisher) PublishReconciliation(_ context.Context, ev queue.ReconciliationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconcile = append(p.reconcile, ev)
	return errors.New("broker down") // failures must not leak into results
}

// downBookings is a BookingStore whose booking lookup fails.
type downBookings struct {
	*memStore
	err error
}

func (d downBookings) GetByIDForUser(context.Context, string, string) (*model.Booking, error) {
	return nil, d.err
}

// downPayments is a PaymentStore whose lookup fails.
type downPayments struct {
	paymentView
	err error
}

func (d downPayments) GetByBookingID(context.Context, string) (*model.Payment, error) {
	return nil, d.err
}

func (p *fakePublisher) kinds() []queue.ReconciliationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.ReconciliationKind
	for _, ev := range p.reconcile {
		out = append(out, ev.Kind)
	}
	return out
}

func (p *fakePublisher) confirmedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.confirmed)
}

type memCache struct {
	mu          sync.Mutex
	entries     map[string][]string
	invalidated []string
}

func (c *memCache) Get(_ context.Context, showID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[showID]
	return v, ok
}

func (c *memCache) Set(_ context.Context, showID string, seats []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]string{}
	}
	c.entries[showID] = seats
	return nil
}

func (c *memCache) Invalidate(_ context.Context, showID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, showID)
	c.invalidated = append(c.invalidated, showID)
	return nil
}

const testSecret = "test_key_secret"

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *memStore
	gw     *fakeGateway
	events *fakePublisher
	cache  *memCache
	signer *gateway.Verifier
}

func newFixture() *fixture {
	store := newMemStore()
	store.addShow(
		model.Event{ID: "ev-1", Title: "Dune", Venue: "PVR", City: "Pune", IsPublic: true},
		model.Show{ID: "show-1", EventID: "ev-1", StartsAt: testNow.Add(48 * time.Hour), TicketPrice: 200,
			TotalSeats: 50, Status: model.ShowScheduled},
	)
	store.addShow(
		model.Event{ID: "ev-2", Title: "Private", IsPublic: false},
		model.Show{ID: "show-2", EventID: "ev-2", StartsAt: testNow.Add(48 * time.Hour), TicketPrice: 999,
			TotalSeats: 2, Status: model.ShowScheduled},
	)
	store.addShow(
		model.Event{ID: "ev-3", Title: "Small Hall", IsPublic: true},
		model.Show{ID: "show-3", EventID: "ev-3", StartsAt: testNow.Add(48 * time.Hour), TicketPrice: 999,
			TotalSeats: 2, Status: model.ShowScheduled},
	)
	gw := &fakeGateway{}
	events := &fakePublisher{}
	c := &memCache{}
	signer := gateway.NewVerifier(testSecret)
	svc := New(Deps{
		Shows:      store,
		Bookings:   store,
		Payments:   paymentView{store},
		Gateway:    gw,
		Signatures: signer,
		Events:     events,
		Cache:      c,
		Log:        logger.Discard(),
	}, Options{Currency: "INR", MinorUnitFactor: 100, FeeBps: 500, MaxSeats: 10, HoldTTL: 10 * time.Minute})
	svc.now = func() time.Time { return testNow }
	ids := 0
	var idMu sync.Mutex
	svc.newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}
	return &fixture{svc: svc, store: store, gw: gw, events: events, cache: c, signer: signer}
}

func (f *fixture) order(user string, showID, eventID string, seats ...string) *OrderResult {
	res, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: user, EventID: eventID, ShowID: showID, SeatIDs: seats, TicketPrice: 200,
	})
	if err != nil {
		panic(err)
	}
	return res
}

func (f *fixture) verifyInput(user string, o *OrderResult, paymentID string) VerifyInput {
	return VerifyInput{
		UserID:           user,
		BookingID:        o.BookingID,
		GatewayOrderID:   o.OrderID,
		GatewayPaymentID: paymentID,
		Signature:        f.signer.Sign(o.OrderID, paymentID),
	}
}
