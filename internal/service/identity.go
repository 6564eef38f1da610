package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Account workflow errors.  Handlers map each to the message shown on the
// form.
var (
	ErrNoAccount          = errors.New("no account for email")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDOBRequired        = errors.New("date of birth required")
	ErrDOBInvalid         = errors.New("date of birth is not a valid date")
	ErrUnderage           = errors.New("below minimum registration age")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrNameRequired       = errors.New("name required")
	ErrProfileCreate      = errors.New("profile creation failed")
)

// ProviderError carries a provider message the user should see verbatim.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

type ProfileStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, userID, refreshRaw string) error
	Refresh(ctx context.Context, refreshRaw string) (*identity.Session, error)
	RequestPasswordReset(ctx context.Context, email string) (identity.ResetTicket, error)
	VerifyResetToken(ctx context.Context, email, token string) error
	ResetPassword(ctx context.Context, email, token, newPassword string) error
}

type ResetNotifier interface {
	PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequestedEvent) error
}

type ResetFlowStore interface {
	Save(ctx context.Context, id string, f ResetFlow) error
	Load(ctx context.Context, id string) (*ResetFlow, error)
	Delete(ctx context.Context, id string) error
}

// IdentityOptions configures the account workflows.
type IdentityOptions struct {
	MinAge  int
	Timeout time.Duration
}

// IdentityService runs login, registration and the password reset wizard
// on top of the identity provider and the profile table.
type IdentityService struct {
	profiles ProfileStore
	provider IdentityProvider
	flows    ResetFlowStore
	notifier ResetNotifier
	monitor  *monitoring.Monitor
	opts     IdentityOptions
	now      func() time.Time
	newID    func() string
}

func NewIdentityService(profiles ProfileStore, provider IdentityProvider, flows ResetFlowStore,
	notifier ResetNotifier, monitor *monitoring.Monitor, opts IdentityOptions) *IdentityService {
	if opts.MinAge <= 0 {
		opts.MinAge = 13
	}
	return &IdentityService{
		profiles: profiles,
		provider: provider,
		flows:    flows,
		notifier: notifier,
		monitor:  monitor,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newFlowID,
	}
}

// Login signs in an existing account.  An email without a profile is
// reported as ErrNoAccount before the provider is asked.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.profile(ctx, email); err != nil {
		s.monitor.TrackAuth("login", "no_account")
		return nil, err
	}
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	sess, err := s.provider.SignIn(cctx, email, password)
	if err != nil {
		s.monitor.TrackAuth("login", "rejected")
		return nil, providerFailure(err)
	}
	s.monitor.TrackAuth("login", "ok")
	return sess, nil
}

// RegisterInput is the registration form.  DOB is YYYY-MM-DD.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	DOB      string
}

// Register creates the account at the provider and then the profile row.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*identity.Session, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if strings.TrimSpace(in.DOB) == "" {
		return nil, ErrDOBRequired
	}
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(in.DOB))
	if err != nil {
		return nil, ErrDOBInvalid
	}
	today := s.now()
	if dob.After(today) {
		return nil, ErrDOBInvalid
	}
	if AgeOn(dob, today) < s.opts.MinAge {
		s.monitor.TrackAuth("register", "underage")
		return nil, ErrUnderage
	}
	if name == "" {
		return nil, ErrNameRequired
	}

	_, err = s.profile(ctx, email)
	switch {
	case err == nil:
		s.monitor.TrackAuth("register", "exists")
		return nil, ErrEmailRegistered
	case !errors.Is(err, ErrNoAccount):
		return nil, err
	}

	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	sess, err := s.provider.SignUp(cctx, email, in.Password)
	cancel()
	if err != nil {
		s.monitor.TrackAuth("register", "rejected")
		return nil, providerFailure(err)
	}

	cctx, cancel = withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	u := &model.User{ID: sess.UserID, Name: name, Email: email, DOB: dob}
	if err := s.profiles.Create(cctx, u); err != nil {
		log.Errorf("create profile for %s: %v", sess.UserID, err)
		s.monitor.TrackAuth("register", "profile_failed")
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailRegistered
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}
	s.monitor.TrackAuth("register", "ok")
	return sess, nil
}

// AgeOn returns the age in whole years on today of someone born on dob.
func AgeOn(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// Refresh rotates a refresh token.
func (s *IdentityService) Refresh(ctx context.Context, refreshRaw string) (*identity.Session, error) {
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	sess, err := s.provider.Refresh(cctx, refreshRaw)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return nil, err
		}
		return nil, providerFailure(err)
	}
	return sess, nil
}

// Logout revokes the given refresh token, or all of userID's tokens.
func (s *IdentityService) Logout(ctx context.Context, userID, refreshRaw string) error {
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.provider.SignOut(cctx, userID, refreshRaw)
}

// Profile returns the profile of userID.
func (s *IdentityService) Profile(ctx context.Context, userID string) (*model.User, error) {
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	u, err := s.profiles.GetByID(cctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return u, nil
}

func (s *IdentityService) profile(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	u, err := s.profiles.GetByEmail(cctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return u, nil
}

// providerFailure maps a provider error onto the workflow errors.  Bad
// credentials collapse into ErrInvalidCredentials; other provider messages
// pass through unchanged.
func providerFailure(err error) error {
	var ae *identity.AuthError
	if !errors.As(err, &ae) {
		return fmt.Errorf("identity provider: %w", err)
	}
	if strings.Contains(ae.Message, "Invalid login") {
		return ErrInvalidCredentials
	}
	return &ProviderError{Message: ae.Message}
}
