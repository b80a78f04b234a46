// Package repository contains data access logic for the booking flow.
// This file covers events, shows and seat occupancy.  Occupancy is kept
// in show_seat_occupancy whose primary key (show_id, seat_id) guarantees
// that a seat is held by at most one confirmed booking.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
)

// ShowRepo manages read access to shows, their events and occupancy.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *ShowRepo) DB() *sql.DB {
	return r.db
}

// GetByID retrieves a show by its ID.  It returns ErrNotFound if there
// is no matching row.
func (r *ShowRepo) GetByID(ctx context.Context, id string) (*model.Show, error) {
	const q = `SELECT id, event_id, starts_at, ticket_price, total_seats, status, created_at, updated_at
               FROM shows WHERE id = ?`
	var s model.Show
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.StartsAt, &s.TicketPrice, &s.TotalSeats, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.StartsAt = s.StartsAt.UTC()
	return &s, nil
}

// GetEvent retrieves an event by its ID.  It returns ErrNotFound if there
// is no matching row.
func (r *ShowRepo) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	const q = `SELECT id, title, image_url, venue, city, category, is_public FROM events WHERE id = ?`
	var e model.Event
	var imageURL, category sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(&e.ID, &e.Title, &imageURL, &e.Venue, &e.City, &category, &e.IsPublic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.ImageURL = imageURL.String
	e.Category = category.String
	return &e, nil
}

// OccupiedSeatIDs returns the seat identifiers of confirmed bookings for
// the show, sorted for deterministic output.  An unknown show yields an
// empty slice; callers check existence with GetByID first.
func (r *ShowRepo) OccupiedSeatIDs(ctx context.Context, showID string) ([]string, error) {
	const q = `SELECT seat_id FROM show_seat_occupancy WHERE show_id = ? ORDER BY seat_id`
	return r.scanSeatIDs(ctx, q, showID)
}

// HeldSeatIDs returns seats requested by pending bookings created after
// since.  Holds are advisory: they never block a confirmation.
func (r *ShowRepo) HeldSeatIDs(ctx context.Context, showID string, since time.Time) ([]string, error) {
	const q = `SELECT DISTINCT bs.seat_id
               FROM booking_seats bs
               JOIN bookings b ON b.id = bs.booking_id
               WHERE bs.show_id = ? AND b.status = 'pending' AND b.created_at > ?
               ORDER BY bs.seat_id`
	return r.scanSeatIDs(ctx, q, showID, since.UTC())
}

func (r *ShowRepo) scanSeatIDs(ctx context.Context, q string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]string, 0)
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		seats = append(seats, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}
