package queue

import (
    "context"
    "encoding/json"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events to RabbitMQ.  It dials per publish so a
// broker restart never leaves it holding a dead connection.  Errors are
// logged and returned so callers can decide whether a failed notification
// should fail the request (it never does for bookings).
type Publisher struct {
    url string
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// PublishBookingCommitted publishes to the booking.committed queue.
func (p *Publisher) PublishBookingCommitted(ctx context.Context, ev BookingCommittedEvent) error {
    return p.publish(ctx, BookingCommittedQueue, ev)
}

// PublishBookingCancelled publishes to the booking.cancelled queue.
func (p *Publisher) PublishBookingCancelled(ctx context.Context, ev BookingCancelledEvent) error {
    return p.publish(ctx, BookingCancelledQueue, ev)
}

// PublishPasswordReset publishes to the auth.password_reset queue.
func (p *Publisher) PublishPasswordReset(ctx context.Context, ev PasswordResetRequestedEvent) error {
    return p.publish(ctx, PasswordResetQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        log.Errorf("rabbitmq: marshal %s failed: %v", queue, err)
        return err
    }

    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Errorf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Errorf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        log.Errorf("rabbitmq: queue declare %s failed: %v", queue, err)
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
        log.Errorf("rabbitmq: publish %s failed: %v", queue, err)
        return err
    }
    return nil
}
