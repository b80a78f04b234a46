package model

import "time"

// PaymentStatus mirrors the booking outcome from the gateway's point of view.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentCompleted PaymentStatus = "completed"
    PaymentFailed    PaymentStatus = "failed"
)

// Payment is the gateway transaction tied one-to-one to a booking.  The
// gateway payment id and signature stay empty until a confirmation has
// been received.  Amount is in minor units, exactly what was sent to the
// gateway.
type Payment struct {
    ID               string        // payments.id
    BookingID        string        // payments.booking_id
    UserID           string        // payments.user_id
    GatewayOrderID   string        // payments.gateway_order_id
    GatewayPaymentID *string       // payments.gateway_payment_id (nullable)
    Signature        *string       // payments.signature (nullable)
    Amount           int64         // payments.amount
    Currency         string        // payments.currency
    Status           PaymentStatus // payments.status
    PaidAt           *time.Time    // payments.paid_at (nullable)
    CreatedAt        time.Time     // payments.created_at
    UpdatedAt        time.Time     // payments.updated_at
}
