package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/service"
)

// Bookings is the part of service.CancellationService the my-bookings
// endpoints use.
type Bookings interface {
    List(ctx context.Context, userID string) (*service.BookingList, error)
    Cancel(ctx context.Context, userID, bookingID string) (*service.BookingList, error)
}

// MyBookingsHandler lists and cancels the caller's bookings.  Both routes
// sit behind JWTAuth.
type MyBookingsHandler struct {
	Bookings Bookings
}

func NewMyBookingsHandler(b Bookings) *MyBookingsHandler {
	return &MyBookingsHandler{Bookings: b}
}

// List handles GET /v1/my-bookings.
func (h *MyBookingsHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Bookings.List(c.Request().Context(), uid)
	if err != nil {
		return unexpected(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Cancel handles DELETE /v1/bookings/:id.  The response carries the list
// as re-read after the cancellation; on failure nothing changed.
func (h *MyBookingsHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	list, err := h.Bookings.Cancel(c.Request().Context(), uid, id)
	switch {
	case errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, service.ErrCancellationWindow):
		return c.JSON(http.StatusConflict, echo.Map{"error": "Bookings can only be cancelled at least 48 hours before the event"})
	case err != nil:
		return unexpected(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
