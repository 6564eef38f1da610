package identity

import (
	"sync"
	"time"
)

// Event names an authentication state change.
type Event string

const (
	SignedIn         Event = "SIGNED_IN"
	SignedOut        Event = "SIGNED_OUT"
	TokenRefreshed   Event = "TOKEN_REFRESHED"
	PasswordRecovery Event = "PASSWORD_RECOVERY"
	UserUpdated      Event = "USER_UPDATED"
)

// Change is delivered to subscribers of an account.
type Change struct {
	Event  Event     `json:"event"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Subscription receives the changes of one account until Unsubscribe is
// called.  C is closed on unsubscribe.
type Subscription struct {
	C <-chan Change

	hub  *hub
	id   uint64
	once sync.Once
}

// Unsubscribe detaches the subscription.  It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

type subscriber struct {
	userID string
	ch     chan Change
}

// hub fans changes out to subscribers.  Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the change.
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]subscriber
}

const subscriberBuffer = 8

func newHub() *hub { return &hub{subs: make(map[uint64]subscriber)} }

func (h *hub) subscribe(userID string) *Subscription {
	ch := make(chan Change, subscriberBuffer)
	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = subscriber{userID: userID, ch: ch}
	h.mu.Unlock()
	return &Subscription{C: ch, hub: h, id: id}
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (h *hub) publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.userID != c.UserID {
			continue
		}
		select {
		case s.ch <- c:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
