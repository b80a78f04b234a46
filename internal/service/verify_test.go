package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
	"github.com/iliyamo/cinema-ticket-checkout/internal/queue"
)

func TestVerifyPaymentConfirmsBooking(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1", "A2")

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, res.Err())
	assert.Equal(t, "confirmed", res.Status)

	assert.Equal(t, model.BookingConfirmed, f.store.booking(o.BookingID).Status)
	p := f.store.payment(o.BookingID)
	require.NotNil(t, p)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, "pay_1", *p.GatewayPaymentID)
	require.NotNil(t, p.PaidAt)

	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Equal(t, []string{"A1", "A2"}, occupied)
	assert.Equal(t, 1, f.events.confirmedCount())
	assert.Equal(t, int64(42000), f.events.confirmed[0].TotalAmountMinor)
	assert.Contains(t, f.cache.invalidated, "show-1")
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	in := f.verifyInput("user-1", o, "pay_1")

	first, err := f.svc.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	second, err := f.svc.VerifyPayment(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.events.confirmedCount())
	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Equal(t, []string{"A1"}, occupied)
}

func TestVerifyPaymentRejectsTamperedSignature(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	in := f.verifyInput("user-1", o, "pay_1")
	in.Signature = in.Signature[:len(in.Signature)-1] + "0"
	if in.Signature == f.signer.Sign(o.OrderID, "pay_1") {
		in.Signature = in.Signature[:len(in.Signature)-1] + "1"
	}

	res, err := f.svc.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSignatureMismatch, res.Reason)
	assert.Equal(t, "failed", res.Status)
	assert.ErrorIs(t, res.Err(), ErrVerificationFailed)

	assert.Equal(t, model.BookingFailed, f.store.booking(o.BookingID).Status)
	assert.Equal(t, model.PaymentFailed, f.store.payment(o.BookingID).Status)
	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Empty(t, occupied)
	assert.Zero(t, f.events.confirmedCount())
}

func TestVerifyPaymentTamperedAfterConfirmationKeepsBooking(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	_, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)

	bad := f.verifyInput("user-1", o, "pay_2")
	bad.Signature = f.signer.Sign("other_order", "pay_2")
	res, err := f.svc.VerifyPayment(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, model.BookingConfirmed, f.store.booking(o.BookingID).Status)
}

func TestVerifyPaymentRejectsOrderOfAnotherBooking(t *testing.T) {
	f := newFixture()
	a := f.order("user-1", "show-1", "ev-1", "A1")
	b := f.order("user-1", "show-1", "ev-1", "B1")

	// valid signature, but for b's order
	in := f.verifyInput("user-1", b, "pay_1")
	in.BookingID = a.BookingID
	res, err := f.svc.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSignatureMismatch, res.Reason)
	assert.Equal(t, model.BookingFailed, f.store.booking(a.BookingID).Status)
	assert.Equal(t, model.BookingPending, f.store.booking(b.BookingID).Status)
}

func TestVerifyPaymentScopesBookingsToUser(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	_, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-2", o, "pay_1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, model.BookingPending, f.store.booking(o.BookingID).Status)
}

func TestVerifyPaymentValidatesInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.VerifyPayment(context.Background(), VerifyInput{UserID: "u", BookingID: "b"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.VerifyPayment(context.Background(), VerifyInput{BookingID: "b"})
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestVerifyPaymentSeatTakenByEarlierConfirmation(t *testing.T) {
	f := newFixture()
	first := f.order("user-1", "show-1", "ev-1", "C5")
	second := f.order("user-2", "show-1", "ev-1", "C5", "C6")

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", first, "pay_1"))
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = f.svc.VerifyPayment(context.Background(), f.verifyInput("user-2", second, "pay_2"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSeatUnavailable, res.Reason)
	assert.Equal(t, "failed", res.Status)

	b := f.store.booking(second.BookingID)
	assert.Equal(t, model.BookingFailed, b.Status)
	assert.True(t, b.NeedsRefund)
	p := f.store.payment(second.BookingID)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, "pay_2", *p.GatewayPaymentID)
	assert.Equal(t, []queue.ReconciliationKind{queue.KindRefundRequired}, f.events.kinds())

	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Equal(t, []string{"C5"}, occupied)
}

func TestVerifyPaymentConcurrentConfirmationsForOneSeat(t *testing.T) {
	f := newFixture()
	const n = 8
	inputs := make([]VerifyInput, n)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("user-%d", i)
		o := f.order(user, "show-1", "ev-1", "D1")
		inputs[i] = f.verifyInput(user, o, fmt.Sprintf("pay_%d", i))
	}

	var wg sync.WaitGroup
	results := make([]*VerifyResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.VerifyPayment(context.Background(), inputs[i])
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Success {
			confirmed++
		} else {
			assert.Equal(t, ReasonSeatUnavailable, results[i].Reason)
		}
	}
	assert.Equal(t, 1, confirmed)
	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Equal(t, []string{"D1"}, occupied)
}

func TestVerifyPaymentOnFailedBooking(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	_, err := f.store.FailPending(context.Background(), o.BookingID, "user-1")
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "booking_failed", res.Reason)
}

func TestVerifyPaymentCreatesMissingPaymentRow(t *testing.T) {
	f := newFixture()
	f.store.failCreatePayment = errors.New("connection reset")
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.store.failCreatePayment = nil
	require.Nil(t, f.store.payment(o.BookingID))

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	p := f.store.payment(o.BookingID)
	require.NotNil(t, p)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, o.OrderID, p.GatewayOrderID)
	assert.Equal(t, int64(21000), p.Amount)
	assert.Equal(t, 1, f.gw.fetches)
}

func TestVerifyPaymentStoreFailureAfterValidSignature(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.store.failSettle = errors.New("deadlock found")

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ReasonSettlementPending, res.Reason)
	assert.Equal(t, []queue.ReconciliationKind{queue.KindSettlementStoreError}, f.events.kinds())
	assert.Equal(t, "pay_1", f.events.reconcile[0].GatewayPaymentID)
}

func TestVerifyPaymentBookingLookupFailsAfterValidSignature(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.svc.bookings = downBookings{memStore: f.store, err: errors.New("dial tcp: connection refused")}

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ReasonSettlementPending, res.Reason)
	assert.Equal(t, o.BookingID, res.BookingID)
	assert.Equal(t, "unknown", res.Status)

	require.Equal(t, []queue.ReconciliationKind{queue.KindSettlementStoreError}, f.events.kinds())
	ev := f.events.reconcile[0]
	assert.Equal(t, o.BookingID, ev.BookingID)
	assert.Equal(t, o.OrderID, ev.GatewayOrderID)
	assert.Equal(t, "pay_1", ev.GatewayPaymentID)
	assert.Contains(t, ev.Detail, "connection refused")
	assert.Equal(t, model.BookingPending, f.store.booking(o.BookingID).Status)
}

func TestVerifyPaymentBookingLookupFailsWithBadSignature(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.svc.bookings = downBookings{memStore: f.store, err: errors.New("dial tcp: connection refused")}

	in := f.verifyInput("user-1", o, "pay_1")
	in.Signature = f.signer.Sign(o.OrderID, "pay_other")
	_, err := f.svc.VerifyPayment(context.Background(), in)
	assert.ErrorIs(t, err, ErrTransientStore)
	assert.Empty(t, f.events.kinds())
}

func TestVerifyPaymentPaymentLookupFailsAfterValidSignature(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.svc.payments = downPayments{paymentView: paymentView{f.store}, err: errors.New("i/o timeout")}

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ReasonSettlementPending, res.Reason)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, []queue.ReconciliationKind{queue.KindSettlementStoreError}, f.events.kinds())
	assert.Equal(t, "show-1", f.events.reconcile[0].ShowID)
	assert.Equal(t, model.BookingPending, f.store.booking(o.BookingID).Status)
}

func TestVerifyPaymentRejectsForeignOrderWhenPaymentRowMissing(t *testing.T) {
	f := newFixture()
	// a one-seat order whose booking was never stored
	f.store.failCreateBooking = errors.New("connection reset")
	orphan := f.order("user-1", "show-1", "ev-1", "E1")
	f.store.failCreateBooking = nil
	require.True(t, orphan.Degraded)

	// a four-seat booking whose payment row was never stored
	f.store.failCreatePayment = errors.New("connection reset")
	big := f.order("user-1", "show-1", "ev-1", "F1", "F2", "F3", "F4")
	f.store.failCreatePayment = nil
	require.Nil(t, f.store.payment(big.BookingID))

	in := f.verifyInput("user-1", orphan, "pay_cheap")
	in.BookingID = big.BookingID
	res, err := f.svc.VerifyPayment(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonOrderMismatch, res.Reason)
	assert.ErrorIs(t, res.Err(), ErrVerificationFailed)

	assert.Equal(t, model.BookingPending, f.store.booking(big.BookingID).Status)
	assert.Nil(t, f.store.payment(big.BookingID))
	occupied, _ := f.store.OccupiedSeatIDs(context.Background(), "show-1")
	assert.Empty(t, occupied)
	assert.Zero(t, f.events.confirmedCount())

	kinds := f.events.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, queue.KindOrderMismatch, kinds[len(kinds)-1])
	assert.Equal(t, "pay_cheap", f.events.reconcile[len(kinds)-1].GatewayPaymentID)

	// the booking's own order still settles it
	res, err = f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", big, "pay_full"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(84000), f.store.payment(big.BookingID).Amount)
}

func TestVerifyPaymentOrderLookupFailsWhenPaymentRowMissing(t *testing.T) {
	f := newFixture()
	f.store.failCreatePayment = errors.New("connection reset")
	o := f.order("user-1", "show-1", "ev-1", "A1")
	f.store.failCreatePayment = nil
	f.gw.fetchErr = errors.New("gateway timeout")

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ReasonSettlementPending, res.Reason)
	assert.Equal(t, model.BookingPending, f.store.booking(o.BookingID).Status)

	kinds := f.events.kinds()
	assert.Equal(t, queue.KindUnboundOrder, kinds[len(kinds)-1])
}

func TestVerifyPaymentWithPaymentRowSkipsOrderLookup(t *testing.T) {
	f := newFixture()
	o := f.order("user-1", "show-1", "ev-1", "A1")

	res, err := f.svc.VerifyPayment(context.Background(), f.verifyInput("user-1", o, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, f.gw.fetches)
}
