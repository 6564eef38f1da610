package handler

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/event-ticketing/internal/identity"
    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/repository"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// ----- fakes -----

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) Login(ctx context.Context, email, password string) (*identity.Session, error) {
    args := m.Called(email, password)
    s, _ := args.Get(0).(*identity.Session)
    return s, args.Error(1)
}
func (m *mockAccounts) Register(ctx context.Context, in service.RegisterInput) (*identity.Session, error) {
    args := m.Called(in)
    s, _ := args.Get(0).(*identity.Session)
    return s, args.Error(1)
}
func (m *mockAccounts) Refresh(ctx context.Context, raw string) (*identity.Session, error) {
    args := m.Called(raw)
    s, _ := args.Get(0).(*identity.Session)
    return s, args.Error(1)
}
func (m *mockAccounts) Logout(ctx context.Context, userID, raw string) error {
    return m.Called(userID, raw).Error(0)
}
func (m *mockAccounts) Profile(ctx context.Context, userID string) (*model.User, error) {
    args := m.Called(userID)
    u, _ := args.Get(0).(*model.User)
    return u, args.Error(1)
}
func (m *mockAccounts) StartReset(ctx context.Context, email string) (*service.ResetFlow, error) {
    args := m.Called(email)
    f, _ := args.Get(0).(*service.ResetFlow)
    return f, args.Error(1)
}
func (m *mockAccounts) VerifyReset(ctx context.Context, flowID, code string) (*service.ResetFlow, error) {
    args := m.Called(flowID, code)
    f, _ := args.Get(0).(*service.ResetFlow)
    return f, args.Error(1)
}
func (m *mockAccounts) CompleteReset(ctx context.Context, flowID, pwd, confirm string) (*service.ResetFlow, error) {
    args := m.Called(flowID, pwd, confirm)
    f, _ := args.Get(0).(*service.ResetFlow)
    return f, args.Error(1)
}

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) CheckQuantity(ctx context.Context, eventID, raw string) (*service.QuantityCheck, error) {
    args := m.Called(eventID, raw)
    q, _ := args.Get(0).(*service.QuantityCheck)
    return q, args.Error(1)
}
func (m *mockCheckout) Proceed(ctx context.Context, req service.CheckoutRequest) (*service.Handoff, error) {
    args := m.Called(req)
    h, _ := args.Get(0).(*service.Handoff)
    return h, args.Error(1)
}
func (m *mockCheckout) Restore(ctx context.Context, tabID, eventID string, authenticated bool) (service.BookingForm, error) {
    args := m.Called(tabID, eventID, authenticated)
    return args.Get(0).(service.BookingForm), args.Error(1)
}
func (m *mockCheckout) Complete(ctx context.Context, userID, eventID string, tickets int) (*model.Booking, error) {
    args := m.Called(userID, eventID, tickets)
    b, _ := args.Get(0).(*model.Booking)
    return b, args.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) List(ctx context.Context, userID string) (*service.BookingList, error) {
    args := m.Called(userID)
    l, _ := args.Get(0).(*service.BookingList)
    return l, args.Error(1)
}
func (m *mockBookings) Cancel(ctx context.Context, userID, bookingID string) (*service.BookingList, error) {
    args := m.Called(userID, bookingID)
    l, _ := args.Get(0).(*service.BookingList)
    return l, args.Error(1)
}

// tokenSessions treats "good" as the only valid access token.
type tokenSessions struct{}

func (tokenSessions) GetSession(_ context.Context, token string) (*identity.Session, error) {
    if token != "good" {
        return nil, identity.ErrNoSession
    }
    return &identity.Session{UserID: "u-1", Email: "ada@example.com", AccessToken: token}, nil
}

type stubCatalog struct {
    gotQuery repository.EventSearchQuery
    events   map[string]*model.Event
}

func (s *stubCatalog) Search(_ context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error) {
    s.gotQuery = q
    return []model.Event{}, 0, nil
}
func (s *stubCatalog) GetByID(_ context.Context, id string) (*model.Event, error) {
    if ev, ok := s.events[id]; ok {
        return ev, nil
    }
    return nil, repository.ErrNotFound
}

// ----- helpers -----

func do(t *testing.T, method, target, body string, h echo.HandlerFunc, setup func(c echo.Context)) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(method, target, strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    if setup != nil {
        setup(c)
    }
    require.NoError(t, h(c))
    return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    s, _ := out["error"].(string)
    return s
}

// ----- auth -----

func TestLoginMessages(t *testing.T) {
    cases := []struct {
        name   string
        err    error
        status int
        msg    string
    }{
        {"no profile", service.ErrNoAccount, http.StatusNotFound, "No account found with this email. Please register first."},
        {"bad password", service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password. Please try again."},
        {"provider text", &service.ProviderError{Message: "Account is disabled"}, http.StatusBadRequest, "Account is disabled"},
        {"remote failure", errors.New("dial tcp: refused"), http.StatusInternalServerError, msgUnexpected},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            acc := &mockAccounts{}
            acc.On("Login", "ada@example.com", "secret1").Return(nil, tc.err)
            h := NewAuthHandler(acc, tokenSessions{})

            rec := do(t, http.MethodPost, "/v1/auth/login", `{"email":"ada@example.com","password":"secret1"}`, h.Login, nil)
            assert.Equal(t, tc.status, rec.Code)
            assert.Equal(t, tc.msg, errorOf(t, rec))
        })
    }
}

func TestLoginSuccessRedirectsHome(t *testing.T) {
    acc := &mockAccounts{}
    acc.On("Login", "ada@example.com", "secret1").Return(&identity.Session{UserID: "u-1", AccessToken: "tok"}, nil)
    h := NewAuthHandler(acc, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/auth/login", `{"email":"ada@example.com","password":"secret1"}`, h.Login, nil)
    require.Equal(t, http.StatusOK, rec.Code)
    var out authResp
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    assert.Equal(t, "/", out.Redirect)
    assert.Equal(t, "tok", out.Session.AccessToken)
}

func TestRegisterMessages(t *testing.T) {
    cases := []struct {
        err    error
        status int
        msg    string
    }{
        {service.ErrDOBRequired, http.StatusBadRequest, "Date of birth is required for account recovery purposes"},
        {service.ErrUnderage, http.StatusBadRequest, "You must be at least 13 years old to register"},
        {service.ErrEmailRegistered, http.StatusConflict, "This email is already registered. Please use a different email or login."},
        {service.ErrProfileCreate, http.StatusInternalServerError, "Error creating user profile. Please try again."},
    }
    for _, tc := range cases {
        acc := &mockAccounts{}
        acc.On("Register", mock.AnythingOfType("service.RegisterInput")).Return(nil, tc.err)
        h := NewAuthHandler(acc, tokenSessions{})

        rec := do(t, http.MethodPost, "/v1/auth/register", `{"name":"Ada","email":"a@b.c","password":"secret1"}`, h.Register, nil)
        assert.Equal(t, tc.status, rec.Code)
        assert.Equal(t, tc.msg, errorOf(t, rec))
    }
}

func TestResetMessages(t *testing.T) {
    cases := []struct {
        err    error
        status int
        msg    string
    }{
        {service.ErrPasswordMismatch, http.StatusBadRequest, "Passwords do not match."},
        {service.ErrPasswordTooShort, http.StatusBadRequest, "Password must be at least 6 characters long."},
        {service.ErrResetFailed, http.StatusInternalServerError, "Failed to update password. Please try again."},
        {service.ErrInvalidTransition, http.StatusConflict, "Password reset steps must be completed in order."},
    }
    for _, tc := range cases {
        acc := &mockAccounts{}
        acc.On("CompleteReset", "f-1", "abc", "abd").Return(nil, tc.err)
        h := NewAuthHandler(acc, tokenSessions{})

        rec := do(t, http.MethodPost, "/v1/auth/reset/complete",
            `{"flow_id":"f-1","password":"abc","confirm_password":"abd"}`, h.CompleteReset, nil)
        assert.Equal(t, tc.status, rec.Code)
        assert.Equal(t, tc.msg, errorOf(t, rec))
    }

    acc := &mockAccounts{}
    acc.On("StartReset", "nobody@example.com").Return(nil, service.ErrNoResetAccount)
    h := NewAuthHandler(acc, tokenSessions{})
    rec := do(t, http.MethodPost, "/v1/auth/reset", `{"email":"nobody@example.com"}`, h.StartReset, nil)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.Equal(t, "No account found with this email address.", errorOf(t, rec))
}

func TestStartResetDoesNotLeakToken(t *testing.T) {
    acc := &mockAccounts{}
    acc.On("StartReset", "ada@example.com").Return(&service.ResetFlow{ID: "f-1", Step: service.StepVerify, Email: "ada@example.com", Token: "secret"}, nil)
    h := NewAuthHandler(acc, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/auth/reset", `{"email":"ada@example.com"}`, h.StartReset, nil)
    assert.Equal(t, http.StatusAccepted, rec.Code)
    assert.NotContains(t, rec.Body.String(), "secret")
    assert.Contains(t, rec.Body.String(), `"step":"verify"`)
}

func TestLogout(t *testing.T) {
    t.Run("bearer signs out everywhere", func(t *testing.T) {
        acc := &mockAccounts{}
        acc.On("Logout", "u-1", "").Return(nil)
        h := NewAuthHandler(acc, tokenSessions{})
        rec := do(t, http.MethodPost, "/v1/auth/logout", "", h.Logout, func(c echo.Context) {
            c.Request().Header.Set("Authorization", "Bearer good")
        })
        assert.Equal(t, http.StatusNoContent, rec.Code)
        acc.AssertExpectations(t)
    })

    t.Run("nothing to revoke", func(t *testing.T) {
        h := NewAuthHandler(&mockAccounts{}, tokenSessions{})
        rec := do(t, http.MethodPost, "/v1/auth/logout", "", h.Logout, nil)
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })
}

// ----- catalog -----

func TestSearchEventsClampsPaging(t *testing.T) {
    cat := &stubCatalog{}
    h := NewPublicHandler(cat)

    rec := do(t, http.MethodGet, "/v1/events?q=%20Jazz%20&page=0&page_size=500", "", h.SearchEvents, nil)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, repository.EventSearchQuery{Name: "Jazz", Page: 1, PageSize: 100}, cat.gotQuery)
}

func TestGetEvent(t *testing.T) {
    cat := &stubCatalog{events: map[string]*model.Event{
        "e-1": {ID: "e-1", Name: "Jazz Night", Price: decimal.RequireFromString("25.00"), TicketsAvailable: 0},
    }}
    h := NewPublicHandler(cat)

    rec := do(t, http.MethodGet, "/v1/events/e-1", "", h.GetEvent, func(c echo.Context) {
        c.SetParamNames("id")
        c.SetParamValues("e-1")
    })
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"sold_out":true`)

    rec = do(t, http.MethodGet, "/v1/events/nope", "", h.GetEvent, func(c echo.Context) {
        c.SetParamNames("id")
        c.SetParamValues("nope")
    })
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ----- booking -----

func withEvent(id string) func(c echo.Context) {
    return func(c echo.Context) {
        c.SetParamNames("id")
        c.SetParamValues(id)
    }
}

func TestCheckQuantityAcceptsNumberOrString(t *testing.T) {
    co := &mockCheckout{}
    co.On("CheckQuantity", "e-1", "3").Return(&service.QuantityCheck{Form: service.BookingForm{TicketCount: "3", ShowPayButton: true}}, nil).Twice()
    h := NewBookingHandler(co, tokenSessions{})

    for _, body := range []string{`{"ticket_count":3}`, `{"ticket_count":"3"}`} {
        rec := do(t, http.MethodPost, "/v1/events/e-1/quantity", body, h.CheckQuantity, withEvent("e-1"))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Contains(t, rec.Body.String(), `"show_pay_button":true`)
    }
    co.AssertExpectations(t)
}

func TestCheckoutAnonymousGetsLoginRedirect(t *testing.T) {
    co := &mockCheckout{}
    co.On("Proceed", service.CheckoutRequest{EventID: "e-1", TicketCount: "2", TabID: "tab-9"}).
        Return(nil, &service.AuthRequiredError{Redirect: "/login", IntentSaved: true})
    h := NewBookingHandler(co, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/events/e-1/checkout", `{"ticket_count":"2"}`, h.Checkout, func(c echo.Context) {
        withEvent("e-1")(c)
        c.Request().Header.Set("X-Tab-ID", "tab-9")
    })
    require.Equal(t, http.StatusUnauthorized, rec.Code)
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    assert.Equal(t, "/login", out["redirect"])
    assert.Equal(t, true, out["intent_saved"])
}

func TestCheckoutStaleAvailability(t *testing.T) {
    co := &mockCheckout{}
    co.On("Proceed", mock.Anything).Return(nil, &service.QuantityError{Reason: service.ReasonNowUnavailable, Clamp: 2, Available: 2})
    h := NewBookingHandler(co, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/events/e-1/checkout", `{"ticket_count":"5"}`, h.Checkout, withEvent("e-1"))
    require.Equal(t, http.StatusConflict, rec.Code)
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    assert.Equal(t, "Only 2 tickets are now available", out["error"])
    assert.EqualValues(t, 2, out["ticket_count"])
}

func TestCheckoutHandoff(t *testing.T) {
    co := &mockCheckout{}
    co.On("Proceed", service.CheckoutRequest{EventID: "e-1", TicketCount: "2", AccessToken: "good"}).Return(&service.Handoff{
        URL: "/checkout?eventId=e-1&eventName=Jazz&tickets=2&totalPrice=50.00",
    }, nil)
    h := NewBookingHandler(co, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/events/e-1/checkout", `{"ticket_count":"2"}`, h.Checkout, func(c echo.Context) {
        withEvent("e-1")(c)
        c.Request().Header.Set("Authorization", "Bearer good")
    })
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), "totalPrice=50.00")
}

func TestBookingFormRestoresOnlyWhenAuthenticated(t *testing.T) {
    co := &mockCheckout{}
    co.On("Restore", "tab-1", "e-1", true).Return(service.BookingForm{TicketCount: "4", ShowPayButton: true}, nil)
    co.On("Restore", "tab-1", "e-1", false).Return(service.NewBookingForm(), nil)
    h := NewBookingHandler(co, tokenSessions{})

    rec := do(t, http.MethodGet, "/v1/events/e-1/booking-form", "", h.BookingForm, func(c echo.Context) {
        withEvent("e-1")(c)
        c.Request().Header.Set("X-Tab-ID", "tab-1")
        c.Request().Header.Set("Authorization", "Bearer good")
    })
    assert.JSONEq(t, `{"ticket_count":"4","show_pay_button":true}`, rec.Body.String())

    rec = do(t, http.MethodGet, "/v1/events/e-1/booking-form", "", h.BookingForm, func(c echo.Context) {
        withEvent("e-1")(c)
        c.Request().Header.Set("X-Tab-ID", "tab-1")
        c.Request().Header.Set("Authorization", "Bearer expired")
    })
    assert.JSONEq(t, `{"ticket_count":"1","show_pay_button":false}`, rec.Body.String())
}

func TestCommit(t *testing.T) {
    co := &mockCheckout{}
    co.On("Complete", "u-1", "e-1", 2).Return(nil, service.ErrSoldOut)
    h := NewBookingHandler(co, tokenSessions{})

    rec := do(t, http.MethodPost, "/v1/events/e-1/bookings", `{"tickets":2}`, h.Commit, func(c echo.Context) {
        withEvent("e-1")(c)
        c.Set("user_id", "u-1")
    })
    assert.Equal(t, http.StatusConflict, rec.Code)

    rec = do(t, http.MethodPost, "/v1/events/e-1/bookings", `{"tickets":2}`, h.Commit, withEvent("e-1"))
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ----- my bookings -----

func TestCancelBooking(t *testing.T) {
    setup := func(c echo.Context) {
        c.SetParamNames("id")
        c.SetParamValues("b-1")
        c.Set("user_id", "u-1")
    }

    t.Run("inside window", func(t *testing.T) {
        bk := &mockBookings{}
        bk.On("Cancel", "u-1", "b-1").Return(nil, service.ErrCancellationWindow)
        rec := do(t, http.MethodDelete, "/v1/bookings/b-1", "", NewMyBookingsHandler(bk).Cancel, setup)
        assert.Equal(t, http.StatusConflict, rec.Code)
    })

    t.Run("procedure failure", func(t *testing.T) {
        bk := &mockBookings{}
        bk.On("Cancel", "u-1", "b-1").Return(nil, errors.New("deadlock"))
        rec := do(t, http.MethodDelete, "/v1/bookings/b-1", "", NewMyBookingsHandler(bk).Cancel, setup)
        assert.Equal(t, http.StatusInternalServerError, rec.Code)
        assert.Equal(t, msgUnexpected, errorOf(t, rec))
    })

    t.Run("returns refreshed list", func(t *testing.T) {
        past := service.BookingView{Booking: model.Booking{ID: "b-0", Event: model.EventSummary{EventDate: time.Now().Add(-time.Hour)}}}
        bk := &mockBookings{}
        bk.On("Cancel", "u-1", "b-1").Return(&service.BookingList{Upcoming: []service.BookingView{}, Past: []service.BookingView{past}}, nil)
        rec := do(t, http.MethodDelete, "/v1/bookings/b-1", "", NewMyBookingsHandler(bk).Cancel, setup)
        require.Equal(t, http.StatusOK, rec.Code)
        var out service.BookingList
        require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
        assert.Empty(t, out.Upcoming)
        require.Len(t, out.Past, 1)
        assert.Equal(t, "b-0", out.Past[0].ID)
    })
}

func TestCountField(t *testing.T) {
    var req quantityReq
    require.NoError(t, json.Unmarshal([]byte(`{"ticket_count":null}`), &req))
    assert.Equal(t, countField(""), req.TicketCount)
    require.NoError(t, json.Unmarshal([]byte(`{"ticket_count":"1.5"}`), &req))
    assert.Equal(t, countField("1.5"), req.TicketCount)
    require.NoError(t, json.Unmarshal([]byte(`{"ticket_count":2.5}`), &req))
    assert.Equal(t, countField("2.5"), req.TicketCount)
    assert.Error(t, json.Unmarshal([]byte(`{"ticket_count":[1]}`), &req))
}
