package service

import (
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Partition splits bookings into those whose event is still ahead of now
// and those whose event has started or passed.  Input order is kept in
// both halves.
func Partition(bookings []model.Booking, now time.Time) (upcoming, past []model.Booking) {
	upcoming = []model.Booking{}
	past = []model.Booking{}
	for _, b := range bookings {
		if b.Event.EventDate.After(now) {
			upcoming = append(upcoming, b)
		} else {
			past = append(past, b)
		}
	}
	return upcoming, past
}
