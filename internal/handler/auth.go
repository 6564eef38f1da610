package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/identity"
    "github.com/iliyamo/event-ticketing/internal/middleware"
    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// Accounts is the part of service.IdentityService the auth endpoints use.
type Accounts interface {
    Login(ctx context.Context, email, password string) (*identity.Session, error)
    Register(ctx context.Context, in service.RegisterInput) (*identity.Session, error)
    Refresh(ctx context.Context, refreshRaw string) (*identity.Session, error)
    Logout(ctx context.Context, userID, refreshRaw string) error
    Profile(ctx context.Context, userID string) (*model.User, error)
    StartReset(ctx context.Context, email string) (*service.ResetFlow, error)
    VerifyReset(ctx context.Context, flowID, code string) (*service.ResetFlow, error)
    CompleteReset(ctx context.Context, flowID, password, confirm string) (*service.ResetFlow, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts Accounts
	Sessions service.SessionReader
}

func NewAuthHandler(a Accounts, s service.SessionReader) *AuthHandler {
	return &AuthHandler{Accounts: a, Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	DOB      string `json:"dob"` // YYYY-MM-DD
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type resetStartReq struct {
	Email string `json:"email"`
}
type resetVerifyReq struct {
	FlowID string `json:"flow_id"`
	Code   string `json:"code"`
}
type resetCompleteReq struct {
	FlowID          string `json:"flow_id"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type authResp struct {
	Session  *identity.Session `json:"session"`
	Redirect string            `json:"redirect"`
}

// Login: profile check, then the identity provider.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	sess, err := h.Accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusOK, authResp{Session: sess, Redirect: "/"})
}

// Register: create the account and its profile and return the session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	sess, err := h.Accounts.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		DOB:      req.DOB,
	})
	if err != nil {
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusCreated, authResp{Session: sess, Redirect: "/"})
}

// Refresh: rotate the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	sess, err := h.Accounts.Refresh(c.Request().Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusOK, authResp{Session: sess, Redirect: "/"})
}

// Logout accepts a bearer token, a refresh token or both.  A bearer alone
// signs the user out everywhere; a refresh token ends that one session.
func (h *AuthHandler) Logout(c echo.Context) error {
    ctx := c.Request().Context()
    var uid string
    if raw := middleware.BearerToken(c); raw != "" {
        if sess, err := h.Sessions.GetSession(ctx, raw); err == nil {
            uid = sess.UserID
        }
    }

    var req refreshReq
    _ = c.Bind(&req)
    refreshToken := strings.TrimSpace(req.RefreshToken)

    if uid == "" && refreshToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
    }
    if err := h.Accounts.Logout(ctx, uid, refreshToken); err != nil {
        return unexpected(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the signed-in user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	u, err := h.Accounts.Profile(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, service.ErrNoAccount) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
		}
		return unexpected(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":    u,
		"initial": u.Initial(),
	})
}

// StartReset: step one of the password reset wizard.
func (h *AuthHandler) StartReset(c echo.Context) error {
	var req resetStartReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	f, err := h.Accounts.StartReset(c.Request().Context(), req.Email)
	if err != nil {
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusAccepted, resetResp(f))
}

// VerifyReset: step two, the emailed code.
func (h *AuthHandler) VerifyReset(c echo.Context) error {
	var req resetVerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	f, err := h.Accounts.VerifyReset(c.Request().Context(), req.FlowID, strings.TrimSpace(req.Code))
	if err != nil {
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusOK, resetResp(f))
}

// CompleteReset: step three, the new password.
func (h *AuthHandler) CompleteReset(c echo.Context) error {
	var req resetCompleteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	f, err := h.Accounts.CompleteReset(c.Request().Context(), req.FlowID, req.Password, req.ConfirmPassword)
	if err != nil {
		return accountFailure(c, err)
	}
	return c.JSON(http.StatusOK, resetResp(f))
}

// resetResp never echoes the reset token.
func resetResp(f *service.ResetFlow) echo.Map {
	return echo.Map{"flow_id": f.ID, "step": f.Step, "email": f.Email}
}

// accountFailure maps an identity workflow error to its form message.
func accountFailure(c echo.Context, err error) error {
	var pe *service.ProviderError
	switch {
	case errors.Is(err, service.ErrNoAccount):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No account found with this email. Please register first."})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid email or password. Please try again."})
	case errors.Is(err, service.ErrDOBRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Date of birth is required for account recovery purposes"})
	case errors.Is(err, service.ErrDOBInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Please enter a valid date of birth"})
	case errors.Is(err, service.ErrUnderage):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "You must be at least 13 years old to register"})
	case errors.Is(err, service.ErrNameRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Name is required"})
	case errors.Is(err, service.ErrEmailRegistered):
		return c.JSON(http.StatusConflict, echo.Map{"error": "This email is already registered. Please use a different email or login."})
	case errors.Is(err, service.ErrProfileCreate):
		c.Logger().Errorf("register: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error creating user profile. Please try again."})
	case errors.Is(err, service.ErrNoResetAccount):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No account found with this email address."})
	case errors.Is(err, service.ErrIncorrectCode):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Incorrect reset code."})
	case errors.Is(err, service.ErrPasswordMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Passwords do not match."})
	case errors.Is(err, service.ErrPasswordTooShort):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Password must be at least 6 characters long."})
	case errors.Is(err, service.ErrResetFailed):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update password. Please try again."})
	case errors.Is(err, service.ErrResetFlowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Password reset session expired. Please start again."})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "Password reset steps must be completed in order."})
	case errors.As(err, &pe):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": pe.Message})
	}
	return unexpected(c, err)
}
