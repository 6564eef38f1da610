// Package session tracks the authentication state of one client
// connection.  A Context reads the session once, holds a single
// subscription to the identity provider for as long as it lives, and
// applies incoming changes to its own state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type Provider interface {
	GetSession(ctx context.Context, accessToken string) (*identity.Session, error)
	Subscribe(userID string) *identity.Subscription
}

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// State is what a page needs to render its header.
type State struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Initial       string `json:"initial,omitempty"`
}

// Context is created per connection and must be closed by its owner.
type Context struct {
	provider Provider
	profiles ProfileReader
	token    string

	mu     sync.Mutex
	state  State
	sub    *identity.Subscription
	closed bool
}

func New(provider Provider, profiles ProfileReader, accessToken string) *Context {
	return &Context{provider: provider, profiles: profiles, token: accessToken}
}

// Init resolves the session and, when authenticated, subscribes to its
// changes.  Calling Init twice keeps the first subscription.
func (c *Context) Init(ctx context.Context) (State, error) {
	sess, err := c.provider.GetSession(ctx, c.token)
	if err != nil && !errors.Is(err, identity.ErrNoSession) {
		return State{}, fmt.Errorf("get session: %w", err)
	}

	st := State{}
	if sess != nil {
		st = State{Authenticated: true, UserID: sess.UserID, Email: sess.Email}
		st.Initial, err = c.initial(ctx, sess)
		if err != nil {
			return State{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return State{}, errors.New("session context closed")
	}
	c.state = st
	if st.Authenticated && c.sub == nil {
		c.sub = c.provider.Subscribe(st.UserID)
	}
	return st, nil
}

// initial prefers the profile name and falls back to the session email.
func (c *Context) initial(ctx context.Context, sess *identity.Session) (string, error) {
	u, err := c.profiles.GetByID(ctx, sess.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = &model.User{}, nil
	}
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if u.Email == "" {
		u.Email = sess.Email
	}
	return u.Initial(), nil
}

// Changes returns the subscription channel, or nil for an anonymous
// context.  The channel is closed by Close.
func (c *Context) Changes() <-chan identity.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	return c.sub.C
}

// Apply folds a change into the state and returns the new state.
func (c *Context) Apply(ch identity.Change) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.Event == identity.SignedOut && ch.UserID == c.state.UserID {
		c.state = State{}
	}
	return c.state
}

func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the subscription.  It is safe to call more than once.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}
