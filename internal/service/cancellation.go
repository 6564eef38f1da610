package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// DefaultCancellationWindow is the minimum time between now and the event
// start for a booking to be cancellable.
const DefaultCancellationWindow = 48 * time.Hour

var (
	ErrCancellationWindow = errors.New("bookings can only be cancelled at least 48 hours before the event")
	ErrBookingNotFound    = errors.New("booking not found")
)

// CanCancel reports whether eventAt is at least 48 hours after now.
func CanCancel(eventAt, now time.Time) bool {
	return canCancelWithin(eventAt, now, DefaultCancellationWindow)
}

func canCancelWithin(eventAt, now time.Time, window time.Duration) bool {
	return eventAt.Sub(now) >= window
}

type BookingStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	GetForUser(ctx context.Context, bookingID, userID string) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID, eventID string, tickets int) error
}

// BookingView is a booking as listed to its owner.
type BookingView struct {
	model.Booking
	CanCancel bool `json:"can_cancel"`
}

// BookingList is the partitioned booking list of one user.
type BookingList struct {
	Upcoming []BookingView `json:"upcoming"`
	Past     []BookingView `json:"past"`
}

// CancellationService lists a user's bookings and cancels them.  A cancel
// never edits the list in place: the list returned after a cancel is read
// back from the store.
type CancellationService struct {
	bookings  BookingStore
	avail     AvailabilityCache
	publisher BookingPublisher
	monitor   *monitoring.Monitor
	window    time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewCancellationService(bookings BookingStore, avail AvailabilityCache, publisher BookingPublisher,
	monitor *monitoring.Monitor, window, timeout time.Duration) *CancellationService {
	if window <= 0 {
		window = DefaultCancellationWindow
	}
	return &CancellationService{
		bookings:  bookings,
		avail:     avail,
		publisher: publisher,
		monitor:   monitor,
		window:    window,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns the user's bookings partitioned around now.
func (s *CancellationService) List(ctx context.Context, userID string) (*BookingList, error) {
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	all, err := s.bookings.ListByUser(cctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	now := s.now()
	upcoming, past := Partition(all, now)
	return &BookingList{
		Upcoming: s.views(upcoming, now),
		Past:     s.views(past, now),
	}, nil
}

func (s *CancellationService) views(bs []model.Booking, now time.Time) []BookingView {
	out := make([]BookingView, 0, len(bs))
	for _, b := range bs {
		out = append(out, BookingView{Booking: b, CanCancel: canCancelWithin(b.Event.EventDate, now, s.window)})
	}
	return out
}

// Cancel releases a booking of userID and returns the refreshed list.
// When any step fails nothing is changed and the error is returned.
func (s *CancellationService) Cancel(ctx context.Context, userID, bookingID string) (*BookingList, error) {
	cctx, cancel := withTimeout(ctx, s.timeout)
	b, err := s.bookings.GetForUser(cctx, bookingID, userID)
	cancel()
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForbidden):
		return nil, ErrBookingNotFound
	case err != nil:
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if !canCancelWithin(b.Event.EventDate, s.now(), s.window) {
		s.monitor.TrackBooking("cancel", "outside_window")
		return nil, ErrCancellationWindow
	}

	cctx, cancel = withTimeout(ctx, s.timeout)
	err = s.bookings.CancelBooking(cctx, b.ID, b.EventID, b.TicketsBooked)
	cancel()
	if err != nil {
		s.monitor.TrackBooking("cancel", "failed")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	s.monitor.TrackBooking("cancel", "ok")

	if s.avail != nil {
		if err := s.avail.Invalidate(ctx, b.EventID); err != nil {
			log.Warnf("availability cache invalidate %s: %v", b.EventID, err)
		}
	}
	s.notifyCancelled(queue.BookingCancelledEvent{
		BookingID:   b.ID,
		UserID:      userID,
		EventID:     b.EventID,
		EventName:   b.Event.Name,
		Tickets:     b.TicketsBooked,
		EventDate:   b.Event.EventDate.UTC().Format(time.RFC3339),
		CancelledAt: s.now().Format(time.RFC3339),
	})
	return s.List(ctx, userID)
}

func (s *CancellationService) notifyCancelled(ev queue.BookingCancelledEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := withTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.publisher.PublishBookingCancelled(ctx, ev); err != nil {
			log.Warnf("publish booking.cancelled %s: %v", ev.BookingID, err)
		}
	}()
}
