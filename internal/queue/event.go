// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer.
package queue

// Queue names.  Each queue carries exactly one payload type.
const (
    BookingCommittedQueue = "booking.committed"
    BookingCancelledQueue = "booking.cancelled"
    PasswordResetQueue    = "auth.password_reset"
)

// BookingCommittedEvent is published after the commit procedure records a
// completed checkout.
type BookingCommittedEvent struct {
    BookingID   string `json:"booking_id"`
    UserID      string `json:"user_id"`
    EventID     string `json:"event_id"`
    EventName   string `json:"event_name"`
    Tickets     int    `json:"tickets"`
    PricePaid   string `json:"price_paid"`
    CommittedAt string `json:"committed_at"`
}

// BookingCancelledEvent is published after a booking has been deleted and
// its tickets returned to the event.
type BookingCancelledEvent struct {
    BookingID   string `json:"booking_id"`
    UserID      string `json:"user_id"`
    EventID     string `json:"event_id"`
    EventName   string `json:"event_name"`
    Tickets     int    `json:"tickets"`
    EventDate   string `json:"event_date"`
    CancelledAt string `json:"cancelled_at"`
}

// PasswordResetRequestedEvent carries a single-use reset token to the
// delivery side.  The raw token only ever travels on this queue.
type PasswordResetRequestedEvent struct {
    Email       string `json:"email"`
    Token       string `json:"token"`
    ExpiresAt   string `json:"expires_at"`
    RequestedAt string `json:"requested_at"`
}
