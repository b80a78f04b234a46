package model

import "time"

// Event is the catalogue entry a show belongs to: a movie, concert or
// any other bookable happening.  Events carry the display metadata that
// booking history needs (title, poster, venue and city).
//
// Fields:
//  ID       – primary key identifier (UUID).
//  Title    – display title.
//  ImageURL – poster or banner location (may be empty).
//  Venue    – venue name.
//  City     – city of the venue.
//  Category – free-form category (movie, concert, ...).
//  IsPublic – whether the event is open for booking.
type Event struct {
    ID       string // events.id
    Title    string // events.title
    ImageURL string // events.image_url
    Venue    string // events.venue
    City     string // events.city
    Category string // events.category
    IsPublic bool   // events.is_public
}

// Show statuses.  Only SCHEDULED shows accept new orders.
const (
    ShowScheduled = "SCHEDULED"
    ShowCancelled = "CANCELLED"
    ShowFinished  = "FINISHED"
)

// Show represents a scheduled screening or performance of an event.  Its
// ticket price is the only trusted price for pricing an order.  Seat
// occupancy is not a column: it lives in show_seat_occupancy keyed by
// (show_id, seat_id).
//
// Fields:
//  ID          – primary key identifier (UUID).
//  EventID     – parent event.
//  StartsAt    – scheduled start (UTC).
//  TicketPrice – unit price in whole major currency units.
//  TotalSeats  – capacity of the show.
//  Status      – SCHEDULED, CANCELLED or FINISHED.
type Show struct {
    ID          string    // shows.id
    EventID     string    // shows.event_id
    StartsAt    time.Time // shows.starts_at
    TicketPrice int64     // shows.ticket_price
    TotalSeats  int       // shows.total_seats
    Status      string    // shows.status
    CreatedAt   time.Time // shows.created_at
    UpdatedAt   time.Time // shows.updated_at
}

// Bookable reports whether new orders may be placed for the show at now.
func (s Show) Bookable(now time.Time) bool {
    return s.Status == ShowScheduled && s.StartsAt.After(now)
}
