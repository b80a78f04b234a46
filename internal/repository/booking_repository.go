package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
)

// BookingRepo provides operations for bookings and their seats.  Requested
// seats live in booking_seats; seats of confirmed bookings are copied to
// show_seat_occupancy at settlement.  All timestamps are stored in UTC.
type BookingRepo struct {
	db       *sql.DB
	payments *PaymentRepo
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
// The payment repository is used for writes that must share a
// transaction with the booking row.
func NewBookingRepo(db *sql.DB, payments *PaymentRepo) *BookingRepo {
	return &BookingRepo{db: db, payments: payments}
}

// Create inserts a pending booking together with its booking_seats rows
// in a single transaction.  CreatedAt/UpdatedAt are read back from the DB.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const q = `INSERT INTO bookings (id, user_id, event_id, show_id, ticket_count, subtotal, convenience_fee,
                                     total_amount, currency, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		b.ID, b.UserID, b.EventID, b.ShowID, b.TicketCount, b.Subtotal, b.ConvenienceFee,
		b.TotalAmount, b.Currency, string(b.Status),
	); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if len(b.SeatIDs) > 0 {
		query := `INSERT INTO booking_seats (booking_id, show_id, seat_id) VALUES `
		args := make([]interface{}, 0, len(b.SeatIDs)*3)
		for i, sid := range b.SeatIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, b.ID, b.ShowID, sid)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

const bookingColumns = `id, user_id, event_id, show_id, ticket_count, subtotal, convenience_fee,
                        total_amount, currency, status, needs_refund, created_at, updated_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// getBooking loads a booking owned by userID, optionally locking it.
func getBooking(ctx context.Context, q queryer, bookingID, userID string, forUpdate bool) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND user_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b model.Booking
	var status string
	if err := q.QueryRowContext(ctx, query, bookingID, userID).Scan(
		&b.ID, &b.UserID, &b.EventID, &b.ShowID, &b.TicketCount, &b.Subtotal, &b.ConvenienceFee,
		&b.TotalAmount, &b.Currency, &status, &b.NeedsRefund, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	rows, err := q.QueryContext(ctx, `SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	b.SeatIDs = make([]string, 0, b.TicketCount)
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		b.SeatIDs = append(b.SeatIDs, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByIDForUser returns a booking with its seat ids.  A booking owned by
// someone else is reported as ErrNotFound.
func (r *BookingRepo) GetByIDForUser(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	return getBooking(ctx, r.db, bookingID, userID, false)
}

// SettleOutcome describes what a settlement attempt did.
type SettleOutcome string

const (
	// SettleConfirmed: the booking moved pending -> confirmed.
	SettleConfirmed SettleOutcome = "confirmed"
	// SettleAlreadyConfirmed: nothing changed, the booking was confirmed before.
	SettleAlreadyConfirmed SettleOutcome = "already_confirmed"
	// SettleNotPending: the booking is failed or cancelled; nothing changed.
	SettleNotPending SettleOutcome = "not_pending"
	// SettleSeatConflict: a seat was taken or the show is full; the booking
	// moved pending -> failed with needs_refund set.
	SettleSeatConflict SettleOutcome = "seat_conflict"
)

// SettleRequest carries a verified gateway confirmation.  Amount and
// Currency are only used when the payment row is missing and has to be
// created during settlement.
type SettleRequest struct {
	BookingID        string
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	PaidAt           time.Time
	PaymentID        string
	Amount           int64
	Currency         string
}

// SettleResult reports the booking state after a settlement attempt.
type SettleResult struct {
	Outcome          SettleOutcome
	Status           model.BookingStatus
	ShowID           string
	SeatIDs          []string
	ConflictingSeats []string
}

// Settle confirms a pending booking whose payment signature has already
// been verified.  Everything happens in one transaction: the booking row
// and the show row are locked (the show lock serialises confirmations per
// show), seat availability and capacity are re-checked, occupancy rows are
// inserted and the booking/payment rows are updated.  When a seat is
// already occupied the booking is failed with needs_refund instead.
func (r *BookingRepo) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	b, err := getBooking(ctx, tx, req.BookingID, req.UserID, true)
	if err != nil {
		return nil, err
	}
	res := &SettleResult{Status: b.Status, ShowID: b.ShowID, SeatIDs: b.SeatIDs}
	switch b.Status {
	case model.BookingConfirmed:
		res.Outcome = SettleAlreadyConfirmed
		return res, nil
	case model.BookingPending:
	default:
		res.Outcome = SettleNotPending
		return res, nil
	}
	if len(b.SeatIDs) == 0 {
		return nil, fmt.Errorf("booking %s has no seats", b.ID)
	}

	var totalSeats int
	if err := tx.QueryRowContext(ctx, `SELECT total_seats FROM shows WHERE id = ? FOR UPDATE`, b.ShowID).Scan(&totalSeats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	conflicts, occupied, err := occupancyTx(ctx, tx, b.ShowID, b.SeatIDs)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 && occupied+len(b.SeatIDs) > totalSeats {
		conflicts = append(conflicts, b.SeatIDs...)
	}
	if len(conflicts) == 0 {
		err = insertOccupancyTx(ctx, tx, b.ShowID, b.ID, b.SeatIDs)
		if errors.Is(err, ErrDuplicate) {
			conflicts = append(conflicts, b.SeatIDs...)
		} else if err != nil {
			return nil, err
		}
	}
	if len(conflicts) > 0 {
		if err := failPendingBookingTx(ctx, tx, b.ID, true); err != nil {
			return nil, err
		}
		if err := r.payments.failPendingTx(ctx, tx, b.ID, req.GatewayPaymentID, req.Signature); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		res.Outcome = SettleSeatConflict
		res.Status = model.BookingFailed
		res.ConflictingSeats = conflicts
		return res, nil
	}

	const upd = `UPDATE bookings SET status = 'confirmed', updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = 'pending'`
	if _, err := tx.ExecContext(ctx, upd, b.ID); err != nil {
		return nil, err
	}
	p, err := r.payments.getForUpdateTx(ctx, tx, b.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		paidAt := req.PaidAt.UTC()
		err = r.payments.insert(ctx, tx, &model.Payment{
			ID:               req.PaymentID,
			BookingID:        b.ID,
			UserID:           b.UserID,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: &req.GatewayPaymentID,
			Signature:        &req.Signature,
			Amount:           req.Amount,
			Currency:         req.Currency,
			Status:           model.PaymentCompleted,
			PaidAt:           &paidAt,
		})
	case err == nil:
		err = r.payments.completeTx(ctx, tx, p.ID, req.GatewayPaymentID, req.Signature, req.PaidAt)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	res.Outcome = SettleConfirmed
	res.Status = model.BookingConfirmed
	return res, nil
}

// occupancyTx returns the requested seats that are already occupied and
// the number of occupied seats of the show.
func occupancyTx(ctx context.Context, tx *sql.Tx, showID string, seatIDs []string) ([]string, int, error) {
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showID)
	for _, sid := range seatIDs {
		args = append(args, sid)
	}
	q := `SELECT seat_id FROM show_seat_occupancy WHERE show_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var taken []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, 0, err
		}
		taken = append(taken, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM show_seat_occupancy WHERE show_id = ?`, showID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return taken, count, nil
}

func insertOccupancyTx(ctx context.Context, tx *sql.Tx, showID, bookingID string, seatIDs []string) error {
	query := `INSERT INTO show_seat_occupancy (show_id, seat_id, booking_id) VALUES `
	args := make([]interface{}, 0, len(seatIDs)*3)
	for i, sid := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, showID, sid, bookingID)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func failPendingBookingTx(ctx context.Context, ex execer, bookingID string, needsRefund bool) error {
	const q = `UPDATE bookings SET status = 'failed', needs_refund = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND status = 'pending'`
	_, err := ex.ExecContext(ctx, q, needsRefund, bookingID)
	return err
}

// FailPending marks a pending booking and its payment failed, e.g. after
// a signature mismatch.  Bookings that already reached a final state are
// left untouched; the returned status is the one stored after the call.
func (r *BookingRepo) FailPending(ctx context.Context, bookingID, userID string) (model.BookingStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	b, err := getBooking(ctx, tx, bookingID, userID, true)
	if err != nil {
		return "", err
	}
	if b.Status != model.BookingPending {
		return b.Status, nil
	}
	if err := failPendingBookingTx(ctx, tx, bookingID, false); err != nil {
		return "", err
	}
	if err := r.payments.failPendingTx(ctx, tx, bookingID, "", ""); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	committed = true
	return model.BookingFailed, nil
}

// CancelResult describes a completed cancellation.
type CancelResult struct {
	PreviousStatus model.BookingStatus
	ShowID         string
	ReleasedSeats  []string
}

// Cancel moves a pending or confirmed booking to cancelled and releases
// its occupancy rows.  It returns ErrNotFound for unknown or foreign
// bookings and ErrConflict when the booking is already final or the show
// has started.  Cancelling a confirmed booking sets needs_refund.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID, userID string, now time.Time) (*CancelResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	b, err := getBooking(ctx, tx, bookingID, userID, true)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanBeCancelled() {
		return nil, fmt.Errorf("%w: booking is %s", ErrConflict, b.Status)
	}
	var startsAt time.Time
	if err := tx.QueryRowContext(ctx, `SELECT starts_at FROM shows WHERE id = ?`, b.ShowID).Scan(&startsAt); err != nil {
		return nil, err
	}
	if !startsAt.After(now.UTC()) {
		return nil, fmt.Errorf("%w: show already started", ErrConflict)
	}
	rows, err := tx.QueryContext(ctx, `SELECT seat_id FROM show_seat_occupancy WHERE booking_id = ? ORDER BY seat_id`, b.ID)
	if err != nil {
		return nil, err
	}
	released := make([]string, 0)
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, err
		}
		released = append(released, sid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM show_seat_occupancy WHERE booking_id = ?`, b.ID); err != nil {
		return nil, err
	}
	const upd = `UPDATE bookings SET status = 'cancelled', needs_refund = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, b.Status == model.BookingConfirmed, b.ID); err != nil {
		return nil, err
	}
	if err := r.payments.failPendingTx(ctx, tx, b.ID, "", ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &CancelResult{PreviousStatus: b.Status, ShowID: b.ShowID, ReleasedSeats: released}, nil
}

// BookingDetail is a booking joined with its show, event, seats and
// payment, shaped for display in booking history.
type BookingDetail struct {
	ID             string   `json:"id"`
	EventID        string   `json:"event_id"`
	ShowID         string   `json:"show_id"`
	EventTitle     string   `json:"event_title"`
	EventImage     string   `json:"event_image"`
	Venue          string   `json:"venue"`
	City           string   `json:"city"`
	ShowStartsAt   string   `json:"show_starts_at"`
	Seats          []string `json:"seats"`
	TicketCount    int      `json:"ticket_count"`
	Subtotal       int64    `json:"subtotal"`
	ConvenienceFee int64    `json:"convenience_fee"`
	TotalAmount    int64    `json:"total_amount"`
	Currency       string   `json:"currency"`
	Status         string   `json:"status"`
	NeedsRefund    bool     `json:"needs_refund"`
	PaymentStatus  string   `json:"payment_status"`
	PaymentID      *string  `json:"payment_id"`
	BookingDate    string   `json:"booking_date"`
}

// ListByUser returns all bookings of the user, newest first.  Seats for
// all bookings are loaded with a single IN query.  When no bookings exist
// an empty slice is returned.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]BookingDetail, error) {
	return r.listDetails(ctx, `b.user_id = ?`, userID)
}

// GetDetailForUser returns one booking detail or ErrNotFound.
func (r *BookingRepo) GetDetailForUser(ctx context.Context, bookingID, userID string) (*BookingDetail, error) {
	details, err := r.listDetails(ctx, `b.id = ? AND b.user_id = ?`, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrNotFound
	}
	return &details[0], nil
}

func (r *BookingRepo) listDetails(ctx context.Context, where string, args ...interface{}) ([]BookingDetail, error) {
	q := `SELECT b.id, b.event_id, b.show_id, b.ticket_count, b.subtotal, b.convenience_fee, b.total_amount,
                 b.currency, b.status, b.needs_refund, b.created_at,
                 s.starts_at, e.title, e.image_url, e.venue, e.city,
                 p.status, p.gateway_payment_id
          FROM bookings b
          JOIN shows s ON s.id = b.show_id
          LEFT JOIN events e ON e.id = b.event_id
          LEFT JOIN payments p ON p.booking_id = b.id
          WHERE ` + where + `
          ORDER BY b.created_at DESC, b.id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]BookingDetail, 0)
	index := make(map[string]int)
	for rows.Next() {
		var d BookingDetail
		var createdAt, startsAt time.Time
		var title, image, venue, city, payStatus, payID sql.NullString
		if err := rows.Scan(
			&d.ID, &d.EventID, &d.ShowID, &d.TicketCount, &d.Subtotal, &d.ConvenienceFee, &d.TotalAmount,
			&d.Currency, &d.Status, &d.NeedsRefund, &createdAt,
			&startsAt, &title, &image, &venue, &city,
			&payStatus, &payID,
		); err != nil {
			return nil, err
		}
		d.BookingDate = createdAt.UTC().Format(time.RFC3339)
		d.ShowStartsAt = startsAt.UTC().Format(time.RFC3339)
		d.EventTitle = title.String
		d.EventImage = image.String
		d.Venue = venue.String
		d.City = city.String
		d.PaymentStatus = payStatus.String
		if payID.Valid {
			id := payID.String
			d.PaymentID = &id
		}
		d.Seats = []string{}
		index[d.ID] = len(details)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}
	ids := make([]interface{}, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ID)
	}
	seatQuery := `SELECT booking_id, seat_id FROM booking_seats
                  WHERE booking_id IN (` + placeholders(len(ids)) + `)
                  ORDER BY booking_id, seat_id`
	srows, err := r.db.QueryContext(ctx, seatQuery, ids...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var bid, sid string
		if err := srows.Scan(&bid, &sid); err != nil {
			return nil, err
		}
		idx, ok := index[bid]
		if !ok {
			continue
		}
		details[idx].Seats = append(details[idx].Seats, sid)
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
