// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both queues are durable.
const (
    BookingConfirmedQueue = "booking.confirmed"
    ReconciliationQueue   = "booking.reconciliation"
)

// BookingConfirmedEvent is published when a booking is settled.  It
// carries enough information for downstream consumers to log or notify
// without querying the primary database.
type BookingConfirmedEvent struct {
    BookingID        string   `json:"booking_id"`
    UserID           string   `json:"user_id"`
    EventID          string   `json:"event_id"`
    ShowID           string   `json:"show_id"`
    Seats            []string `json:"seats"`
    GatewayOrderID   string   `json:"gateway_order_id"`
    GatewayPaymentID string   `json:"gateway_payment_id"`
    TotalAmountMinor int64    `json:"total_amount_minor"`
    Currency         string   `json:"currency"`
    ConfirmedAt      string   `json:"confirmed_at"`
}

// ReconciliationKind classifies an inconsistency between the gateway and
// the datastore.
type ReconciliationKind string

const (
    // KindOrphanedGatewayOrder: a gateway order exists but no booking row.
    KindOrphanedGatewayOrder ReconciliationKind = "orphaned_gateway_order"
    // KindPaymentRowMissing: the booking exists but its payment row was not written.
    KindPaymentRowMissing ReconciliationKind = "payment_row_missing"
    // KindRefundRequired: money was captured for a booking that did not
    // (or no longer does) hold its seats.
    KindRefundRequired ReconciliationKind = "refund_required"
    // KindSettlementStoreError: a valid payment could not be recorded.
    KindSettlementStoreError ReconciliationKind = "settlement_store_error"
    // KindOrderMismatch: a validly signed payment whose gateway order
    // belongs to a different purchase than the booking it was sent for.
    KindOrderMismatch ReconciliationKind = "order_mismatch"
    // KindUnboundOrder: the gateway order of a booking without a payment
    // row could not be looked up, so the payment was left unsettled.
    KindUnboundOrder ReconciliationKind = "unbound_gateway_order"
)

// ReconciliationEvent asks an operator (or a refund job) to look at a
// booking whose gateway and database state disagree.
type ReconciliationEvent struct {
    Kind             ReconciliationKind `json:"kind"`
    BookingID        string             `json:"booking_id,omitempty"`
    UserID           string             `json:"user_id"`
    ShowID           string             `json:"show_id,omitempty"`
    GatewayOrderID   string             `json:"gateway_order_id,omitempty"`
    GatewayPaymentID string             `json:"gateway_payment_id,omitempty"`
    Seats            []string           `json:"seats,omitempty"`
    Detail           string             `json:"detail,omitempty"`
    OccurredAt       string             `json:"occurred_at"`
}
