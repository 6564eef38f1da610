package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type checkoutFixture struct {
	svc       *CheckoutService
	events    *fakeEvents
	intents   *memIntents
	committer *mockCommitter
	publisher *mockPublisher
}

func newCheckoutFixture(available int) *checkoutFixture {
	f := &checkoutFixture{
		events: &fakeEvents{
			events: map[string]*model.Event{
				"e1": {ID: "e1", Name: "Jazz Night", Price: decimal.RequireFromString("12.50"), TicketsAvailable: available},
				"e2": {ID: "e2", Name: "Opera", Price: decimal.NewFromInt(40), TicketsAvailable: 10},
			},
			live: map[string]int{},
		},
		intents:   newMemIntents(),
		committer: &mockCommitter{},
		publisher: &mockPublisher{},
	}
	sessions := &fakeSessions{tokens: map[string]string{"good-token": "u1"}}
	f.svc = NewCheckoutService(f.events, f.committer, sessions, f.intents, nil, f.publisher, nil,
		CheckoutOptions{CheckoutPath: "/checkout", LoginPath: "/login", Timeout: time.Second})
	return f
}

func TestCheckQuantityOverAvailability(t *testing.T) {
	f := newCheckoutFixture(3)
	res, err := f.svc.CheckQuantity(context.Background(), "e1", "5")
	require.NoError(t, err)
	assert.Equal(t, "Only 3 tickets available", res.Message)
	assert.Equal(t, "3", res.Form.TicketCount)
	assert.False(t, res.Form.ShowPayButton)
}

func TestCheckQuantityAccepted(t *testing.T) {
	f := newCheckoutFixture(10)
	res, err := f.svc.CheckQuantity(context.Background(), "e1", "2")
	require.NoError(t, err)
	assert.Empty(t, res.Message)
	assert.True(t, res.Form.ShowPayButton)
	assert.Equal(t, "25.00", res.Total.StringFixed(2))
}

func TestCheckQuantityUnknownEvent(t *testing.T) {
	f := newCheckoutFixture(10)
	_, err := f.svc.CheckQuantity(context.Background(), "nope", "2")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestProceedBuildsHandoffURL(t *testing.T) {
	f := newCheckoutFixture(10)
	h, err := f.svc.Proceed(context.Background(), CheckoutRequest{
		EventID: "e1", TicketCount: "2", AccessToken: "good-token", TabID: "tab-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/checkout?eventId=e1&eventName=Jazz+Night&tickets=2&totalPrice=25.00", h.URL)
	assert.Equal(t, 2, h.Tickets)
	assert.Empty(t, f.intents.data, "authenticated checkout parks nothing")
}

func TestProceedRevalidatesQuantity(t *testing.T) {
	f := newCheckoutFixture(10)
	_, err := f.svc.Proceed(context.Background(), CheckoutRequest{EventID: "e1", TicketCount: "", AccessToken: "good-token"})
	assert.ErrorIs(t, err, ErrMissingQuantity)
	_, err = f.svc.Proceed(context.Background(), CheckoutRequest{EventID: "e1", TicketCount: "0", AccessToken: "good-token"})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestProceedWithStaleAvailability(t *testing.T) {
	f := newCheckoutFixture(10)
	f.events.live["e1"] = 1
	_, err := f.svc.Proceed(context.Background(), CheckoutRequest{EventID: "e1", TicketCount: "2", AccessToken: "good-token"})
	var qe *QuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, ReasonNowUnavailable, qe.Reason)
	assert.Equal(t, 1, qe.Clamp)
	assert.Equal(t, "Only 1 tickets are now available", qe.Error())
}

func TestProceedAnonymousParksIntentAndRestoresAfterLogin(t *testing.T) {
	f := newCheckoutFixture(10)
	ctx := context.Background()

	_, err := f.svc.Proceed(ctx, CheckoutRequest{EventID: "e1", TicketCount: "2", TabID: "tab-1"})
	require.ErrorIs(t, err, ErrAuthRequired)
	var ae *AuthRequiredError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "/login", ae.Redirect)
	assert.True(t, ae.IntentSaved)

	parked := f.intents.data["tab-1"]
	assert.Equal(t, "e1", parked.EventID)
	assert.Equal(t, "Jazz Night", parked.EventName)
	assert.Equal(t, 2, parked.TicketCount)
	assert.Equal(t, "25.00", parked.TotalPrice.StringFixed(2))

	// anonymous visits never consume the intent
	form, err := f.svc.Restore(ctx, "tab-1", "e1", false)
	require.NoError(t, err)
	assert.Equal(t, NewBookingForm(), form)

	// another event's page leaves it alone
	form, err = f.svc.Restore(ctx, "tab-1", "e2", true)
	require.NoError(t, err)
	assert.False(t, form.ShowPayButton)
	assert.Contains(t, f.intents.data, "tab-1")

	form, err = f.svc.Restore(ctx, "tab-1", "e1", true)
	require.NoError(t, err)
	assert.Equal(t, BookingForm{TicketCount: "2", ShowPayButton: true}, form)
	assert.NotContains(t, f.intents.data, "tab-1")

	// a second restore finds nothing
	form, err = f.svc.Restore(ctx, "tab-1", "e1", true)
	require.NoError(t, err)
	assert.Equal(t, NewBookingForm(), form)
}

func TestProceedInvalidTokenCountsAsAnonymous(t *testing.T) {
	f := newCheckoutFixture(10)
	_, err := f.svc.Proceed(context.Background(), CheckoutRequest{EventID: "e1", TicketCount: "1", AccessToken: "expired"})
	var ae *AuthRequiredError
	require.True(t, errors.As(err, &ae))
	assert.False(t, ae.IntentSaved, "no tab id, nothing to park under")
}

func TestProceedRemoteFailure(t *testing.T) {
	f := newCheckoutFixture(10)
	f.events.err = errors.New("connection reset")
	_, err := f.svc.Proceed(context.Background(), CheckoutRequest{EventID: "e1", TicketCount: "1", AccessToken: "good-token"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEventNotFound)
}

func TestCompleteCommitsAndPublishes(t *testing.T) {
	f := newCheckoutFixture(10)
	booked := &model.Booking{ID: "b1", UserID: "u1", EventID: "e1", TicketsBooked: 2,
		PricePaid: decimal.RequireFromString("25.00"), BookedAt: time.Now()}
	f.committer.On("Commit", mock.Anything, "u1", "e1", 2, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("25"))
	})).Return(booked, nil)
	published := make(chan queue.BookingCommittedEvent, 1)
	f.publisher.On("PublishBookingCommitted", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published <- args.Get(1).(queue.BookingCommittedEvent) }).
		Return(nil)

	b, err := f.svc.Complete(context.Background(), "u1", "e1", 2)
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)

	select {
	case ev := <-published:
		assert.Equal(t, "b1", ev.BookingID)
		assert.Equal(t, "25.00", ev.PricePaid)
	case <-time.After(time.Second):
		t.Fatal("booking.committed not published")
	}
	f.committer.AssertExpectations(t)
}

func TestCompleteSoldOut(t *testing.T) {
	f := newCheckoutFixture(1)
	f.committer.On("Commit", mock.Anything, "u1", "e1", 2, mock.Anything).Return(nil, repository.ErrSoldOut)

	_, err := f.svc.Complete(context.Background(), "u1", "e1", 2)
	assert.ErrorIs(t, err, ErrSoldOut)
	f.publisher.AssertNotCalled(t, "PublishBookingCommitted", mock.Anything, mock.Anything)
}
