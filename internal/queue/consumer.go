package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-ticket-checkout/internal/logger"
)

// Consumer drains the booking queues and appends one line per message to
// <dir>/booking.log and <dir>/reconciliation.log.
type Consumer struct {
    url string
    dir string
    log *logger.Logger
}

// NewConsumer returns a Consumer writing its files below dir.
func NewConsumer(url, dir string, log *logger.Logger) *Consumer {
    return &Consumer{url: url, dir: dir, log: log}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Broker
// failures are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.WithError(err).Warn("booking-consumer: failed to dial broker", "retry_in", backoff.String())
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.WithError(err).Warn("booking-consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.WithError(err).Warn("booking-consumer: set QoS failed")
    }
    for _, q := range []string{BookingConfirmedQueue, ReconciliationQueue} {
        if err := declare(ch, q); err != nil {
            return fmt.Errorf("queue declare %s: %w", q, err)
        }
    }
    confirmed, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    reconcile, err := ch.Consume(ReconciliationQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        var d amqp.Delivery
        var ok bool
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-confirmed:
        case d, ok = <-reconcile:
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.Handle(d.RoutingKey, d.Body); err != nil {
            c.log.WithError(err).Error("booking-consumer: handle message failed", "queue", d.RoutingKey)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
}

// Handle formats one message from queue and appends it to its log file.
func (c *Consumer) Handle(queue string, body []byte) error {
    var line, file string
    switch queue {
    case BookingConfirmedQueue:
        var ev BookingConfirmedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        line, file = FormatBookingConfirmed(ev), "booking.log"
    case ReconciliationQueue:
        var ev ReconciliationEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        line, file = FormatReconciliation(ev), "reconciliation.log"
    default:
        return fmt.Errorf("unknown queue %q", queue)
    }
    return appendLine(filepath.Join(c.dir, file), line)
}

func appendLine(path, line string) error {
    if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func seatList(seats []string) string {
    return "[" + strings.Join(seats, ",") + "]"
}

// FormatBookingConfirmed renders a confirmation as a single log line.
func FormatBookingConfirmed(ev BookingConfirmedEvent) string {
    return fmt.Sprintf("[%s] Booking confirmed | booking_id=%s | user_id=%s | event_id=%s | show_id=%s | order_id=%s | payment_id=%s | total=%d %s(minor) | seats=%s\n",
        ev.ConfirmedAt, ev.BookingID, ev.UserID, ev.EventID, ev.ShowID, ev.GatewayOrderID, ev.GatewayPaymentID,
        ev.TotalAmountMinor, ev.Currency, seatList(ev.Seats))
}

// FormatReconciliation renders a reconciliation request as a single log line.
func FormatReconciliation(ev ReconciliationEvent) string {
    return fmt.Sprintf("[%s] Reconcile %s | booking_id=%s | user_id=%s | show_id=%s | order_id=%s | payment_id=%s | seats=%s | detail=%q\n",
        ev.OccurredAt, ev.Kind, ev.BookingID, ev.UserID, ev.ShowID, ev.GatewayOrderID, ev.GatewayPaymentID,
        seatList(ev.Seats), ev.Detail)
}
