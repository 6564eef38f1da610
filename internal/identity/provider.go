// Package identity is the account authority of the service.  It owns the
// credential table, issues and verifies sessions and reset tokens, and
// notifies subscribers when an account's authentication state changes.
// No other package reads or writes a password hash.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/store"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// Provider error messages.  Callers match on them the way they would on
// a hosted auth service's error text.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgUserExists         = "User already registered"
	MsgWeakPassword       = "Password should be at least 6 characters."
	MsgInvalidEmail       = "Unable to validate email address: invalid format"
	MsgAccountDisabled    = "Account is disabled"
	MsgInvalidResetToken  = "Token has expired or is invalid"
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

// ErrNoSession is returned by GetSession and Refresh when the caller holds
// no valid session.
var ErrNoSession = errors.New("no active session")

// ErrUnknownAccount is returned by RequestPasswordReset for an email with
// no credential.
var ErrUnknownAccount = errors.New("unknown account")

// AuthError is a provider-reported failure with a user-facing message.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func authError(status int, msg string) *AuthError { return &AuthError{Status: status, Message: msg} }

// Session is an authenticated session.  RefreshToken is only set when the
// session was just issued.
type Session struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	AccessToken      string    `json:"access_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// ResetTicket is a freshly issued reset token.  Token must only be handed
// to the delivery channel.
type ResetTicket struct {
	Token     string
	ExpiresAt time.Time
}

type CredentialStore interface {
	Create(ctx context.Context, id, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (repository.Credential, error)
	GetByID(ctx context.Context, id string) (repository.Credential, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

type RefreshStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type ResetTokenStore interface {
	Put(ctx context.Context, email, tokenHash string, ttl time.Duration) error
	Get(ctx context.Context, email string) (string, error)
	Delete(ctx context.Context, email string) error
}

// Options configures token lifetimes and hashing cost.
type Options struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	ResetTTL       time.Duration
}

type Provider struct {
	opts    Options
	creds   CredentialStore
	refresh RefreshStore
	resets  ResetTokenStore
	hub     *hub
	now     func() time.Time
}

func NewProvider(opts Options, creds CredentialStore, refresh RefreshStore, resets ResetTokenStore) *Provider {
	return &Provider{
		opts:    opts,
		creds:   creds,
		refresh: refresh,
		resets:  resets,
		hub:     newHub(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, authError(http.StatusBadRequest, MsgInvalidEmail)
	}
	if len(password) < MinPasswordLength {
		return nil, authError(http.StatusUnprocessableEntity, MsgWeakPassword)
	}
	hash, err := utils.HashPassword(password, p.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	if err := p.creds.Create(ctx, id, email, hash); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, authError(http.StatusUnprocessableEntity, MsgUserExists)
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}
	s, err := p.issue(ctx, id, email)
	if err != nil {
		return nil, err
	}
	p.notify(SignedIn, id)
	return s, nil
}

// SignIn verifies a password and issues a session.  Unknown email and
// wrong password are indistinguishable to the caller.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := p.creds.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, authError(http.StatusBadRequest, MsgInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !utils.VerifyPassword(cred.PasswordHash, password) {
		return nil, authError(http.StatusBadRequest, MsgInvalidCredentials)
	}
	if !cred.IsActive {
		return nil, authError(http.StatusForbidden, MsgAccountDisabled)
	}
	s, err := p.issue(ctx, cred.ID, cred.Email)
	if err != nil {
		return nil, err
	}
	p.notify(SignedIn, cred.ID)
	return s, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// session is issued.
func (p *Provider) Refresh(ctx context.Context, refreshRaw string) (*Session, error) {
	if refreshRaw == "" {
		return nil, ErrNoSession
	}
	h := utils.HashToken(refreshRaw)
	userID, err := p.refresh.ValidateRefresh(ctx, h)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("validate refresh: %w", err)
	}
	if err := p.refresh.RevokeByHash(ctx, h); err != nil {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	cred, err := p.creds.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !cred.IsActive {
		return nil, authError(http.StatusForbidden, MsgAccountDisabled)
	}
	s, err := p.issue(ctx, cred.ID, cred.Email)
	if err != nil {
		return nil, err
	}
	p.notify(TokenRefreshed, cred.ID)
	return s, nil
}

// SignOut revokes the given refresh token, or every token of userID when
// refreshRaw is empty.
func (p *Provider) SignOut(ctx context.Context, userID, refreshRaw string) error {
	var err error
	if refreshRaw != "" {
		err = p.refresh.RevokeByHash(ctx, utils.HashToken(refreshRaw))
	} else {
		err = p.refresh.RevokeAllForUser(ctx, userID)
	}
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	p.notify(SignedOut, userID)
	return nil
}

// GetSession resolves an access token to its session.
func (p *Provider) GetSession(_ context.Context, accessToken string) (*Session, error) {
	claims, err := utils.ParseAccessToken(p.opts.JWTSecret, accessToken)
	if err != nil {
		return nil, ErrNoSession
	}
	return &Session{
		UserID:      claims.UserID,
		Email:       claims.Email,
		AccessToken: accessToken,
		ExpiresAt:   claims.Exp,
	}, nil
}

// Subscribe delivers the authentication changes of userID.
func (p *Provider) Subscribe(userID string) *Subscription { return p.hub.subscribe(userID) }

// RequestPasswordReset issues a new reset token for email, replacing any
// earlier one.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (ResetTicket, error) {
	email = normalizeEmail(email)
	cred, err := p.creds.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ResetTicket{}, ErrUnknownAccount
	}
	if err != nil {
		return ResetTicket{}, fmt.Errorf("load credential: %w", err)
	}
	raw, err := utils.NewResetToken()
	if err != nil {
		return ResetTicket{}, fmt.Errorf("generate reset token: %w", err)
	}
	if err := p.resets.Put(ctx, email, utils.HashToken(raw), p.opts.ResetTTL); err != nil {
		return ResetTicket{}, fmt.Errorf("store reset token: %w", err)
	}
	p.notify(PasswordRecovery, cred.ID)
	return ResetTicket{Token: raw, ExpiresAt: p.now().Add(p.opts.ResetTTL)}, nil
}

// VerifyResetToken checks token against the live reset token of email
// without consuming it.
func (p *Provider) VerifyResetToken(ctx context.Context, email, token string) error {
	stored, err := p.resets.Get(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNoResetToken) {
		return authError(http.StatusUnauthorized, MsgInvalidResetToken)
	}
	if err != nil {
		return fmt.Errorf("load reset token: %w", err)
	}
	if token == "" || !utils.EqualHash(stored, utils.HashToken(strings.TrimSpace(token))) {
		return authError(http.StatusUnauthorized, MsgInvalidResetToken)
	}
	return nil
}

// ResetPassword consumes the reset token and sets a new password.  All
// refresh tokens of the account are revoked.
func (p *Provider) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	email = normalizeEmail(email)
	if err := p.VerifyResetToken(ctx, email, token); err != nil {
		return err
	}
	if len(newPassword) < MinPasswordLength {
		return authError(http.StatusUnprocessableEntity, MsgWeakPassword)
	}
	cred, err := p.creds.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	hash, err := utils.HashPassword(newPassword, p.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.creds.UpdatePassword(ctx, email, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := p.resets.Delete(ctx, email); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if err := p.refresh.RevokeAllForUser(ctx, cred.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	p.notify(UserUpdated, cred.ID)
	return nil
}

func (p *Provider) issue(ctx context.Context, userID, email string) (*Session, error) {
	at, err := utils.NewAccessToken(p.opts.JWTSecret, userID, email, p.opts.AccessTTLMin)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	rt, err := utils.NewRefreshToken(p.opts.RefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := p.refresh.StoreRefresh(ctx, userID, utils.HashToken(rt.Raw), rt.Exp); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Session{
		UserID:           userID,
		Email:            email,
		AccessToken:      at.Token,
		ExpiresAt:        at.Exp,
		RefreshToken:     rt.Raw,
		RefreshExpiresAt: rt.Exp,
	}, nil
}

func (p *Provider) notify(ev Event, userID string) {
	p.hub.publish(Change{Event: ev, UserID: userID, At: p.now()})
}
