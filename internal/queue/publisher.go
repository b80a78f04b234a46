package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-ticket-checkout/internal/logger"
)

// Publisher sends domain events to RabbitMQ.  A connection is opened per
// message; publishing happens after the request's transaction has
// committed and failures are logged and returned so callers can ignore
// them without interrupting the request.
type Publisher struct {
    url string
    log *logger.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *logger.Logger) *Publisher {
    return &Publisher{url: url, log: log}
}

// PublishBookingConfirmed publishes to the booking.confirmed queue.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
    return p.publish(ctx, BookingConfirmedQueue, ev)
}

// PublishReconciliation publishes to the booking.reconciliation queue.
func (p *Publisher) PublishReconciliation(ctx context.Context, ev ReconciliationEvent) error {
    return p.publish(ctx, ReconciliationQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event interface{}) error {
    body, err := json.Marshal(event)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.WithError(err).Warn("rabbitmq: dial failed", "queue", queue)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.WithError(err).Warn("rabbitmq: channel open failed", "queue", queue)
        return err
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch, queue); err != nil {
        p.log.WithError(err).Warn("rabbitmq: queue declare failed", "queue", queue)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    // default exchange, routing key = queue name
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        p.log.WithError(err).Warn("rabbitmq: publish failed", "queue", queue)
        return err
    }
    return nil
}

func declare(ch *amqp.Channel, queue string) error {
    _, err := ch.QueueDeclare(
        queue,
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,
    )
    return err
}
