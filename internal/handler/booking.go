package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/middleware"
    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// Checkout is the part of service.CheckoutService the booking endpoints use.
type Checkout interface {
    CheckQuantity(ctx context.Context, eventID, raw string) (*service.QuantityCheck, error)
    Proceed(ctx context.Context, req service.CheckoutRequest) (*service.Handoff, error)
    Restore(ctx context.Context, tabID, eventID string, authenticated bool) (service.BookingForm, error)
    Complete(ctx context.Context, userID, eventID string, tickets int) (*model.Booking, error)
}

// BookingHandler serves the event page's booking form and the checkout
// handoff.  The pay step itself happens on the external checkout surface,
// which reports back through Commit.
type BookingHandler struct {
    Flow     Checkout
    Sessions service.SessionReader
}

func NewBookingHandler(co Checkout, s service.SessionReader) *BookingHandler {
    return &BookingHandler{Flow: co, Sessions: s}
}

type quantityReq struct {
    TicketCount countField `json:"ticket_count"`
}

type commitReq struct {
    Tickets int `json:"tickets"`
}

// CheckQuantity handles POST /v1/events/:id/quantity, the Book press.  A
// rejected quantity is still a 200: the form state carries the clamp and
// the message.
func (h *BookingHandler) CheckQuantity(c echo.Context) error {
    var req quantityReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    res, err := h.Flow.CheckQuantity(c.Request().Context(), c.Param("id"), string(req.TicketCount))
    if err != nil {
        return bookingFailure(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// Checkout handles POST /v1/events/:id/checkout, the Proceed to Payment
// press.  Anonymous callers get 401 with the login redirect; the intent is
// parked under the X-Tab-ID header when one is sent.
func (h *BookingHandler) Checkout(c echo.Context) error {
    var req quantityReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    out, err := h.Flow.Proceed(c.Request().Context(), service.CheckoutRequest{
        EventID:     c.Param("id"),
        TicketCount: string(req.TicketCount),
        AccessToken: middleware.BearerToken(c),
        TabID:       tabID(c),
    })
    if err != nil {
        return bookingFailure(c, err)
    }
    return c.JSON(http.StatusOK, out)
}

// BookingForm handles GET /v1/events/:id/booking-form.  After a login
// redirect it returns the parked quantity with the pay button shown.
func (h *BookingHandler) BookingForm(c echo.Context) error {
    ctx := c.Request().Context()
    authenticated := false
    if raw := middleware.BearerToken(c); raw != "" {
        if _, err := h.Sessions.GetSession(ctx, raw); err == nil {
            authenticated = true
        }
    }
    form, err := h.Flow.Restore(ctx, tabID(c), c.Param("id"), authenticated)
    if err != nil {
        c.Logger().Warnf("restore booking form: %v", err)
    }
    return c.JSON(http.StatusOK, form)
}

// Commit handles POST /v1/events/:id/bookings, called once checkout has
// completed for the authenticated user.
func (h *BookingHandler) Commit(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req commitReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    b, err := h.Flow.Complete(c.Request().Context(), uid, strings.TrimSpace(c.Param("id")), req.Tickets)
    if err != nil {
        return bookingFailure(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

func bookingFailure(c echo.Context, err error) error {
    var qe *service.QuantityError
    var ae *service.AuthRequiredError
    switch {
    case errors.As(err, &qe):
        return quantityFailure(c, qe)
    case errors.As(err, &ae):
        return c.JSON(http.StatusUnauthorized, echo.Map{
            "error":        "Please log in to continue",
            "redirect":     ae.Redirect,
            "intent_saved": ae.IntentSaved,
        })
    case errors.Is(err, service.ErrEventNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
    case errors.Is(err, service.ErrSoldOut):
        return c.JSON(http.StatusConflict, echo.Map{"error": "Not enough tickets available"})
    }
    return unexpected(c, err)
}
