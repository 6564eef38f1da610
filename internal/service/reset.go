package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/event-ticketing/internal/identity"
	"github.com/iliyamo/event-ticketing/internal/queue"
)

// ResetStep is the position of a password reset wizard.
type ResetStep int

const (
	StepEmail ResetStep = iota
	StepVerify
	StepNewPassword
	StepDone
)

func (s ResetStep) String() string {
	switch s {
	case StepEmail:
		return "email"
	case StepVerify:
		return "verify"
	case StepNewPassword:
		return "new_password"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("ResetStep(%d)", int(s))
}

func (s ResetStep) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ResetStep) UnmarshalText(b []byte) error {
	for _, st := range []ResetStep{StepEmail, StepVerify, StepNewPassword, StepDone} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown reset step %q", b)
}

var (
	ErrInvalidTransition = errors.New("reset step out of order")
	ErrResetFlowNotFound = errors.New("reset flow expired or unknown")
	ErrNoResetAccount    = errors.New("no account for reset email")
	ErrIncorrectCode     = errors.New("incorrect reset code")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrPasswordTooShort  = errors.New("password too short")
	ErrResetFailed       = errors.New("password update failed")
)

// ResetFlow is the persisted state of one reset wizard.  Token is only
// set once the emailed code has been verified.
type ResetFlow struct {
	ID    string    `json:"id"`
	Step  ResetStep `json:"step"`
	Email string    `json:"email"`
	Token string    `json:"token,omitempty"`
}

// advance moves the flow from step from to the next step.
func (f *ResetFlow) advance(from ResetStep) error {
	if f.Step != from || f.Step == StepDone {
		return ErrInvalidTransition
	}
	f.Step++
	return nil
}

func newFlowID() string { return uuid.NewString() }

// StartReset runs step one: the email must belong to a profile.  A reset
// code is issued and queued for delivery, and the flow moves to StepVerify.
func (s *IdentityService) StartReset(ctx context.Context, email string) (*ResetFlow, error) {
	u, err := s.profile(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoAccount) {
			s.monitor.TrackAuth("reset", "no_account")
			return nil, ErrNoResetAccount
		}
		return nil, err
	}
	f := &ResetFlow{ID: s.newID(), Step: StepEmail, Email: u.Email}

	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	ticket, err := s.provider.RequestPasswordReset(cctx, f.Email)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrUnknownAccount) {
			return nil, ErrNoResetAccount
		}
		return nil, fmt.Errorf("request reset: %w", err)
	}
	if s.notifier != nil {
		cctx, cancel := withTimeout(ctx, s.opts.Timeout)
		err := s.notifier.PublishPasswordReset(cctx, queue.PasswordResetRequestedEvent{
			Email:       f.Email,
			Token:       ticket.Token,
			ExpiresAt:   ticket.ExpiresAt.Format(time.RFC3339),
			RequestedAt: s.now().Format(time.RFC3339),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("queue reset code: %w", err)
		}
	} else {
		log.Warnf("reset code for %s issued with no delivery channel", f.Email)
	}

	if err := f.advance(StepEmail); err != nil {
		return nil, err
	}
	if err := s.saveFlow(ctx, f); err != nil {
		return nil, err
	}
	s.monitor.TrackAuth("reset", "started")
	return f, nil
}

// VerifyReset runs step two: the code from the reset message must match
// the live token.  The flow moves to StepNewPassword.
func (s *IdentityService) VerifyReset(ctx context.Context, flowID, code string) (*ResetFlow, error) {
	f, err := s.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.Step != StepVerify {
		return nil, ErrInvalidTransition
	}
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	err = s.provider.VerifyResetToken(cctx, f.Email, code)
	cancel()
	if err != nil {
		var ae *identity.AuthError
		if errors.As(err, &ae) {
			s.monitor.TrackAuth("reset", "bad_code")
			return nil, ErrIncorrectCode
		}
		return nil, fmt.Errorf("verify reset code: %w", err)
	}
	f.Token = code
	if err := f.advance(StepVerify); err != nil {
		return nil, err
	}
	if err := s.saveFlow(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// CompleteReset runs step three.  Both passwords must match and be at
// least identity.MinPasswordLength long; validation failures leave the
// flow on StepNewPassword.
func (s *IdentityService) CompleteReset(ctx context.Context, flowID, password, confirm string) (*ResetFlow, error) {
	f, err := s.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.Step != StepNewPassword {
		return nil, ErrInvalidTransition
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < identity.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	err = s.provider.ResetPassword(cctx, f.Email, f.Token, password)
	cancel()
	if err != nil {
		log.Errorf("reset password for %s: %v", f.Email, err)
		s.monitor.TrackAuth("reset", "failed")
		return nil, ErrResetFailed
	}
	if err := f.advance(StepNewPassword); err != nil {
		return nil, err
	}
	f.Token = ""
	cctx, cancel = withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.flows.Delete(cctx, f.ID); err != nil {
		log.Warnf("delete reset flow %s: %v", f.ID, err)
	}
	s.monitor.TrackAuth("reset", "ok")
	return f, nil
}

func (s *IdentityService) loadFlow(ctx context.Context, id string) (*ResetFlow, error) {
	if id == "" {
		return nil, ErrResetFlowNotFound
	}
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	f, err := s.flows.Load(cctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reset flow: %w", err)
	}
	if f == nil {
		return nil, ErrResetFlowNotFound
	}
	return f, nil
}

func (s *IdentityService) saveFlow(ctx context.Context, f *ResetFlow) error {
	cctx, cancel := withTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.flows.Save(cctx, f.ID, *f); err != nil {
		return fmt.Errorf("save reset flow: %w", err)
	}
	return nil
}
