package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type fakeEvents struct {
	events map[string]*model.Event
	live   map[string]int
	err    error
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeEvents) AvailableTickets(_ context.Context, id string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if n, ok := f.live[id]; ok {
		return n, nil
	}
	ev, ok := f.events[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return ev.TicketsAvailable, nil
}

type fakeSessions struct{ tokens map[string]string }

func (f *fakeSessions) GetSession(_ context.Context, token string) (*identity.Session, error) {
	uid, ok := f.tokens[token]
	if !ok {
		return nil, identity.ErrNoSession
	}
	return &identity.Session{UserID: uid, AccessToken: token}, nil
}

type memIntents struct {
	mu   sync.Mutex
	data map[string]model.BookingIntent
}

func newMemIntents() *memIntents { return &memIntents{data: map[string]model.BookingIntent{}} }

func (m *memIntents) Save(_ context.Context, id string, in model.BookingIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = in
	return nil
}

func (m *memIntents) Load(_ context.Context, id string) (*model.BookingIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

func (m *memIntents) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

type memFlows struct{ data map[string]ResetFlow }

func (m *memFlows) Save(_ context.Context, id string, f ResetFlow) error {
	m.data[id] = f
	return nil
}

func (m *memFlows) Load(_ context.Context, id string) (*ResetFlow, error) {
	f, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *memFlows) Delete(_ context.Context, id string) error {
	delete(m.data, id)
	return nil
}

type mockCommitter struct{ mock.Mock }

func (m *mockCommitter) Commit(ctx context.Context, userID, eventID string, tickets int, price decimal.Decimal) (*model.Booking, error) {
	args := m.Called(ctx, userID, eventID, tickets, price)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishBookingCommitted(ctx context.Context, ev queue.BookingCommittedEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequestedEvent) error {
	return m.Called(ctx, ev).Error(0)
}
