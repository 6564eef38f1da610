package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer drains the notification queues into append-only files under
// Dir: bookings go to booking.log and reset tokens to mail.log, which
// stands in for the mail transport.
type Consumer struct {
    URL string
    Dir string
}

// Run connects to RabbitMQ and consumes all notification queues until ctx
// is cancelled, reconnecting with exponential backoff.  A message that
// cannot be handled is rejected without requeue so one bad payload never
// blocks the queue.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Warnf("notify-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warnf("notify-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warnf("notify-consumer: set QoS failed: %v", err)
    }

    type tagged struct {
        queue string
        d     amqp.Delivery
    }
    merged := make(chan tagged)
    queues := []string{BookingCommittedQueue, BookingCancelledQueue, PasswordResetQueue}
    done := make(chan struct{}, len(queues))
    for _, q := range queues {
        if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", q, err)
        }
        msgs, err := ch.Consume(q, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", q, err)
        }
        go func(q string, msgs <-chan amqp.Delivery) {
            defer func() { done <- struct{}{} }()
            for d := range msgs {
                select {
                case merged <- tagged{q, d}:
                case <-ctx.Done():
                    return
                }
            }
        }(q, msgs)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-done:
            return errors.New("deliveries channel closed")
        case m := <-merged:
            if err := c.handleMessage(m.queue, m.d.Body, time.Now().UTC()); err != nil {
                log.Errorf("notify-consumer: handle %s message failed: %v", m.queue, err)
                _ = m.d.Nack(false, false)
                continue
            }
            _ = m.d.Ack(false)
        }
    }
}

// handleMessage formats one delivery and appends it to its log file.
func (c *Consumer) handleMessage(queue string, body []byte, now time.Time) error {
    var (
        file string
        line string
    )
    switch queue {
    case BookingCommittedQueue:
        var ev BookingCommittedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        file = "booking.log"
        line = fmt.Sprintf("[%s] Booking committed | booking_id=%s | user_id=%s | event_id=%s | event=%q | tickets=%d | paid=%s\n",
            ev.CommittedAt, ev.BookingID, ev.UserID, ev.EventID, ev.EventName, ev.Tickets, ev.PricePaid)
    case BookingCancelledQueue:
        var ev BookingCancelledEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        file = "booking.log"
        line = fmt.Sprintf("[%s] Booking cancelled | booking_id=%s | user_id=%s | event_id=%s | event=%q | tickets=%d | event_date=%s\n",
            ev.CancelledAt, ev.BookingID, ev.UserID, ev.EventID, ev.EventName, ev.Tickets, ev.EventDate)
    case PasswordResetQueue:
        var ev PasswordResetRequestedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        if ev.Email == "" || ev.Token == "" {
            return errors.New("reset message without email or token")
        }
        file = "mail.log"
        line = fmt.Sprintf("[%s] To: %s | Subject: Reset your password | code=%s | expires_at=%s\n",
            now.Format(time.RFC3339), ev.Email, ev.Token, ev.ExpiresAt)
    default:
        return fmt.Errorf("unknown queue %q", queue)
    }

    dir := c.Dir
    if dir == "" {
        dir = "logs"
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
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
