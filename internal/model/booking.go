package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Booking mirrors an `event_attendees` row joined with the event it refers
// to.  Bookings are created only by the commit procedure at checkout
// completion and removed only by the cancel procedure.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – owning user.
//  EventID       – booked event.
//  TicketsBooked – quantity of tickets.
//  PricePaid     – amount charged for the whole booking.
//  BookedAt      – booking timestamp; lists are ordered by it, newest first.
//  Event         – joined event columns used for display and windowing.
type Booking struct {
    ID            string          `json:"id"`
    UserID        string          `json:"user_id"`
    EventID       string          `json:"event_id"`
    TicketsBooked int             `json:"tickets_booked"`
    PricePaid     decimal.Decimal `json:"price_paid"`
    BookedAt      time.Time       `json:"booked_at"`
    Event         EventSummary    `json:"event"`
}

// EventSummary is the subset of event columns joined onto a booking.
type EventSummary struct {
    Name        string    `json:"name"`
    ImageURL    string    `json:"image_url"`
    Description string    `json:"description"`
    EventDate   time.Time `json:"event_date"`
    Address     string    `json:"address"`
}

// BookingIntent is a not-yet-committed purchase parked while the user logs
// in.  It is scoped to one browser tab and holds a single pending booking.
type BookingIntent struct {
    EventID     string          `json:"eventId"`
    EventName   string          `json:"eventName"`
    TicketCount int             `json:"ticketCount"`
    TotalPrice  decimal.Decimal `json:"totalPrice"`
}
