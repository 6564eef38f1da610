package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Event represents a row in the `event` table.  The client never writes
// events; TicketsAvailable only changes through the booking commit and
// cancel procedures.
type Event struct {
    ID               string          `json:"id"`
    Name             string          `json:"name"`
    Description      string          `json:"description"`
    ImageURL         string          `json:"image_url"`
    Price            decimal.Decimal `json:"price"`
    TicketsAvailable int             `json:"tickets_available"`
    Address          string          `json:"address"`
    EventDate        time.Time       `json:"event_date"`
    CreatedAt        time.Time       `json:"created_at"`
}

// SoldOut reports whether no tickets remain.
func (e *Event) SoldOut() bool { return e.TicketsAvailable <= 0 }
