package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

var (
	// ErrAuthRequired matches *AuthRequiredError.
	ErrAuthRequired  = errors.New("authentication required")
	ErrEventNotFound = errors.New("event not found")
	ErrSoldOut       = errors.New("not enough tickets available")
)

// AuthRequiredError is returned by Proceed for an anonymous caller.  The
// booking intent has been parked when IntentSaved is true.
type AuthRequiredError struct {
	Redirect    string
	IntentSaved bool
}

func (e *AuthRequiredError) Error() string        { return ErrAuthRequired.Error() }
func (e *AuthRequiredError) Is(target error) bool { return target == ErrAuthRequired }

type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
	AvailableTickets(ctx context.Context, id string) (int, error)
}

type BookingCommitter interface {
	Commit(ctx context.Context, userID, eventID string, tickets int, pricePaid decimal.Decimal) (*model.Booking, error)
}

type SessionReader interface {
	GetSession(ctx context.Context, accessToken string) (*identity.Session, error)
}

type IntentStore interface {
	Save(ctx context.Context, tabID string, in model.BookingIntent) error
	Load(ctx context.Context, tabID string) (*model.BookingIntent, error)
	Delete(ctx context.Context, tabID string) error
}

type AvailabilityCache interface {
	Get(ctx context.Context, eventID string) (int, bool, error)
	Set(ctx context.Context, eventID string, n int) error
	Invalidate(ctx context.Context, eventID string) error
}

type BookingPublisher interface {
	PublishBookingCommitted(ctx context.Context, ev queue.BookingCommittedEvent) error
	PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error
}

// CheckoutOptions configures the handoff targets and the bound on each
// remote call.
type CheckoutOptions struct {
	CheckoutPath string
	LoginPath    string
	Timeout      time.Duration
}

// CheckoutService runs the booking page: the advisory quantity check, the
// handoff to the external checkout surface, restoring a parked intent
// after login and recording the completed purchase.
type CheckoutService struct {
	events    EventReader
	bookings  BookingCommitter
	sessions  SessionReader
	intents   IntentStore
	avail     AvailabilityCache
	publisher BookingPublisher
	monitor   *monitoring.Monitor
	opts      CheckoutOptions
}

func NewCheckoutService(events EventReader, bookings BookingCommitter, sessions SessionReader,
	intents IntentStore, avail AvailabilityCache, publisher BookingPublisher,
	monitor *monitoring.Monitor, opts CheckoutOptions) *CheckoutService {
	if opts.CheckoutPath == "" {
		opts.CheckoutPath = "/checkout"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	return &CheckoutService{
		events:    events,
		bookings:  bookings,
		sessions:  sessions,
		intents:   intents,
		avail:     avail,
		publisher: publisher,
		monitor:   monitor,
		opts:      opts,
	}
}

// QuantityCheck is the outcome of a Book press on the event page.
type QuantityCheck struct {
	Form    BookingForm     `json:"form"`
	Total   decimal.Decimal `json:"total"`
	Message string          `json:"message,omitempty"`
}

// CheckQuantity validates raw against the cached availability of the
// event.  A *QuantityError is reported inside the result, not as err.
func (s *CheckoutService) CheckQuantity(ctx context.Context, eventID, raw string) (*QuantityCheck, error) {
	ev, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ceiling, err := s.Ceiling(ctx, ev)
	if err != nil {
		return nil, err
	}
	form := BookingForm{TicketCount: raw}
	out := &QuantityCheck{}
	if err := form.Book(ceiling); err != nil {
		var qe *QuantityError
		if !errors.As(err, &qe) {
			return nil, err
		}
		out.Message = qe.Error()
		s.monitor.TrackQuantity("rejected")
	} else {
		s.monitor.TrackQuantity("accepted")
	}
	out.Form = form
	out.Total = form.Total(ev.Price)
	return out, nil
}

// Ceiling returns the advisory availability of ev: the cached figure when
// present, else the count loaded with the event.
func (s *CheckoutService) Ceiling(ctx context.Context, ev *model.Event) (int, error) {
	if s.avail == nil {
		return ev.TicketsAvailable, nil
	}
	n, ok, err := s.avail.Get(ctx, ev.ID)
	if err != nil {
		log.Warnf("availability cache get %s: %v", ev.ID, err)
	}
	if ok {
		return n, nil
	}
	if err := s.avail.Set(ctx, ev.ID, ev.TicketsAvailable); err != nil {
		log.Warnf("availability cache set %s: %v", ev.ID, err)
	}
	return ev.TicketsAvailable, nil
}

// CheckoutRequest is a Proceed-to-Payment press.
type CheckoutRequest struct {
	EventID     string
	TicketCount string
	AccessToken string
	TabID       string
}

// Handoff is the redirect to the external checkout surface.
type Handoff struct {
	URL        string          `json:"redirect"`
	EventID    string          `json:"event_id"`
	EventName  string          `json:"event_name"`
	Tickets    int             `json:"tickets"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Proceed re-validates the quantity, re-reads the session and the live
// availability, and builds the checkout URL.  It never writes a booking.
func (s *CheckoutService) Proceed(ctx context.Context, req CheckoutRequest) (*Handoff, error) {
	qty, err := ValidateQuantity(req.TicketCount, math.MaxInt)
	if err != nil {
		s.monitor.TrackCheckout("invalid")
		return nil, err
	}
	ev, err := s.event(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	total := TotalPrice(ev.Price, qty)

	if _, err := s.session(ctx, req.AccessToken); err != nil {
		if !errors.Is(err, identity.ErrNoSession) {
			return nil, err
		}
		ae := &AuthRequiredError{Redirect: s.opts.LoginPath}
		if req.TabID != "" {
			in := model.BookingIntent{EventID: ev.ID, EventName: ev.Name, TicketCount: qty, TotalPrice: total}
			cctx, cancel := s.bound(ctx)
			err := s.intents.Save(cctx, req.TabID, in)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("save booking intent: %w", err)
			}
			ae.IntentSaved = true
		}
		s.monitor.TrackCheckout("login_required")
		return nil, ae
	}

	cctx, cancel := s.bound(ctx)
	start := time.Now()
	live, err := s.events.AvailableTickets(cctx, ev.ID)
	cancel()
	s.monitor.ObserveCall("events.available", start)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if s.avail != nil {
		if err := s.avail.Set(ctx, ev.ID, live); err != nil {
			log.Warnf("availability cache set %s: %v", ev.ID, err)
		}
	}
	if live < qty {
		s.monitor.TrackCheckout("stale")
		return nil, &QuantityError{Reason: ReasonNowUnavailable, Clamp: max(live, 0), Available: max(live, 0)}
	}

	v := url.Values{}
	v.Set("eventId", ev.ID)
	v.Set("eventName", ev.Name)
	v.Set("tickets", strconv.Itoa(qty))
	v.Set("totalPrice", total.StringFixed(2))
	s.monitor.TrackCheckout("handoff")
	return &Handoff{
		URL:        s.opts.CheckoutPath + "?" + v.Encode(),
		EventID:    ev.ID,
		EventName:  ev.Name,
		Tickets:    qty,
		TotalPrice: total,
	}, nil
}

// Restore returns the booking form for eventID in tab tabID.  When the
// caller is authenticated and the tab parked an intent for this event,
// the form is pre-filled with the parked quantity, the pay button shown
// and the intent discarded.  An intent for another event is left alone.
func (s *CheckoutService) Restore(ctx context.Context, tabID, eventID string, authenticated bool) (BookingForm, error) {
	form := NewBookingForm()
	if !authenticated || tabID == "" {
		return form, nil
	}
	cctx, cancel := s.bound(ctx)
	defer cancel()
	in, err := s.intents.Load(cctx, tabID)
	if err != nil {
		return form, fmt.Errorf("load booking intent: %w", err)
	}
	if in == nil || in.EventID != eventID {
		return form, nil
	}
	form.TicketCount = strconv.Itoa(in.TicketCount)
	form.ShowPayButton = true
	if err := s.intents.Delete(cctx, tabID); err != nil {
		return form, fmt.Errorf("discard booking intent: %w", err)
	}
	return form, nil
}

// Complete records a finished checkout for userID.  The decrement and the
// attendee row are written together or not at all.
func (s *CheckoutService) Complete(ctx context.Context, userID, eventID string, tickets int) (*model.Booking, error) {
	if tickets < 1 {
		return nil, &QuantityError{Reason: ReasonInvalid, Clamp: 1}
	}
	ev, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := s.bound(ctx)
	b, err := s.bookings.Commit(cctx, userID, ev.ID, tickets, TotalPrice(ev.Price, tickets))
	cancel()
	if err != nil {
		s.monitor.TrackBooking("commit", "failed")
		if errors.Is(err, repository.ErrSoldOut) {
			return nil, ErrSoldOut
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	s.monitor.TrackBooking("commit", "ok")
	if s.avail != nil {
		if err := s.avail.Invalidate(ctx, ev.ID); err != nil {
			log.Warnf("availability cache invalidate %s: %v", ev.ID, err)
		}
	}
	s.notifyCommitted(queue.BookingCommittedEvent{
		BookingID:   b.ID,
		UserID:      userID,
		EventID:     ev.ID,
		EventName:   ev.Name,
		Tickets:     b.TicketsBooked,
		PricePaid:   b.PricePaid.StringFixed(2),
		CommittedAt: b.BookedAt.UTC().Format(time.RFC3339),
	})
	return b, nil
}

func (s *CheckoutService) event(ctx context.Context, id string) (*model.Event, error) {
	cctx, cancel := s.bound(ctx)
	defer cancel()
	ev, err := s.events.GetByID(cctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return ev, nil
}

func (s *CheckoutService) session(ctx context.Context, token string) (*identity.Session, error) {
	if token == "" {
		return nil, identity.ErrNoSession
	}
	cctx, cancel := s.bound(ctx)
	defer cancel()
	return s.sessions.GetSession(cctx, token)
}

func (s *CheckoutService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, s.opts.Timeout)
}

func (s *CheckoutService) notifyCommitted(ev queue.BookingCommittedEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := withTimeout(context.Background(), s.opts.Timeout)
		defer cancel()
		if err := s.publisher.PublishBookingCommitted(ctx, ev); err != nil {
			log.Warnf("publish booking.committed %s: %v", ev.BookingID, err)
		}
	}()
}

// withTimeout bounds ctx by d; a non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
