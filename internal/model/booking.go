package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
    BookingPending   BookingStatus = "pending"
    BookingConfirmed BookingStatus = "confirmed"
    BookingFailed    BookingStatus = "failed"
    BookingCancelled BookingStatus = "cancelled"
)

// IsTerminal reports whether no payment outcome may move the booking any further.
func (s BookingStatus) IsTerminal() bool {
    return s == BookingFailed || s == BookingCancelled
}

// CanBeCancelled reports whether the booking may transition to cancelled.
func (s BookingStatus) CanBeCancelled() bool {
    return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) String() string { return string(s) }

// Booking records one purchase attempt for one or more seats of a show.
// Amounts are whole major currency units computed server side.  A
// booking is created pending and receives exactly one of confirmed or
// failed; cancelled is reachable from pending and confirmed.
//
// Fields:
//  ID             – primary key identifier (UUID).
//  UserID         – subject claim of the identity token that created it.
//  EventID        – event reference.
//  ShowID         – show reference.
//  SeatIDs        – requested seat identifiers (booking_seats rows).
//  TicketCount    – number of seats requested, kept even if seat rows are lost.
//  Subtotal       – unit price × ticket count.
//  ConvenienceFee – surcharge on the subtotal.
//  TotalAmount    – subtotal + fee.
//  Currency       – ISO currency code.
//  Status         – pending, confirmed, failed or cancelled.
//  NeedsRefund    – set when money was captured but seats could not be kept.
type Booking struct {
    ID             string        // bookings.id
    UserID         string        // bookings.user_id
    EventID        string        // bookings.event_id
    ShowID         string        // bookings.show_id
    SeatIDs        []string      // booking_seats.seat_id
    TicketCount    int           // bookings.ticket_count
    Subtotal       int64         // bookings.subtotal
    ConvenienceFee int64         // bookings.convenience_fee
    TotalAmount    int64         // bookings.total_amount
    Currency       string        // bookings.currency
    Status         BookingStatus // bookings.status
    NeedsRefund    bool          // bookings.needs_refund
    CreatedAt      time.Time     // bookings.created_at
    UpdatedAt      time.Time     // bookings.updated_at
}
