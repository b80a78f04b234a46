package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticket-checkout/internal/model"
)

// PaymentRepo provides access to the payments table.  A payment row is
// one-to-one with a booking (unique booking_id) and is also unique on the
// gateway order id.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, booking_id, user_id, gateway_order_id, gateway_payment_id, signature,
                        amount, currency, status, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var paymentID, signature sql.NullString
	var paidAt sql.NullTime
	var status string
	if err := row.Scan(
		&p.ID, &p.BookingID, &p.UserID, &p.GatewayOrderID, &paymentID, &signature,
		&p.Amount, &p.Currency, &status, &paidAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	if paymentID.Valid {
		v := paymentID.String
		p.GatewayPaymentID = &v
	}
	if signature.Valid {
		v := signature.String
		p.Signature = &v
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	return &p, nil
}

// Create inserts a pending payment row.  A duplicate booking or order id
// yields ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	return r.insert(ctx, r.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *PaymentRepo) insert(ctx context.Context, ex execer, p *model.Payment) error {
	const q = `INSERT INTO payments (id, booking_id, user_id, gateway_order_id, gateway_payment_id, signature,
                                     amount, currency, status, paid_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var paidAt interface{}
	if p.PaidAt != nil {
		paidAt = p.PaidAt.UTC()
	}
	_, err := ex.ExecContext(ctx, q,
		p.ID, p.BookingID, p.UserID, p.GatewayOrderID, p.GatewayPaymentID, p.Signature,
		p.Amount, p.Currency, string(p.Status), paidAt,
	)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByBookingID returns the payment attached to a booking or ErrNotFound.
func (r *PaymentRepo) GetByBookingID(ctx context.Context, bookingID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ?`
	return scanPayment(r.db.QueryRowContext(ctx, q, bookingID))
}

// getForUpdateTx locks the payment row of a booking inside tx.
func (r *PaymentRepo) getForUpdateTx(ctx context.Context, tx *sql.Tx, bookingID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? FOR UPDATE`
	return scanPayment(tx.QueryRowContext(ctx, q, bookingID))
}

// completeTx records the gateway confirmation on a payment row.
func (r *PaymentRepo) completeTx(ctx context.Context, tx *sql.Tx, id, gatewayPaymentID, signature string, paidAt time.Time) error {
	const q = `UPDATE payments
               SET gateway_payment_id = ?, signature = ?, status = 'completed', paid_at = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, gatewayPaymentID, signature, paidAt.UTC(), id)
	return err
}

// failPendingTx marks the booking's payment failed when it is still
// pending.  Non-empty gateway ids are kept for refund follow-up.
func (r *PaymentRepo) failPendingTx(ctx context.Context, ex execer, bookingID, gatewayPaymentID, signature string) error {
	const q = `UPDATE payments
               SET status = 'failed',
                   gateway_payment_id = COALESCE(NULLIF(?, ''), gateway_payment_id),
                   signature = COALESCE(NULLIF(?, ''), signature),
                   updated_at = UTC_TIMESTAMP()
               WHERE booking_id = ? AND status = 'pending'`
	_, err := ex.ExecContext(ctx, q, gatewayPaymentID, signature, bookingID)
	return err
}
