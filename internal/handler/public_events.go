// This file defines the public catalog API.  Guests can search events by
// name and read one event without authenticating.

package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/repository"
)

// EventCatalog reads events for the public pages.
type EventCatalog interface {
    Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
    GetByID(ctx context.Context, id string) (*model.Event, error)
}

// PublicHandler serves unauthenticated browsing.
type PublicHandler struct {
    Events EventCatalog
}

func NewPublicHandler(events EventCatalog) *PublicHandler {
    return &PublicHandler{Events: events}
}

// SearchEvents handles GET /v1/events?q=&page=&page_size=.  The name match
// is case-insensitive and results are ordered by event date.
func (h *PublicHandler) SearchEvents(c echo.Context) error {
    page, ps := pageParams(c)
    q := repository.EventSearchQuery{
        Name:     strings.TrimSpace(c.QueryParam("q")),
        Page:     page,
        PageSize: ps,
    }
    items, total, err := h.Events.Search(c.Request().Context(), q)
    if err != nil {
        return unexpected(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "data":      items,
        "total":     total,
        "page":      page,
        "page_size": ps,
    })
}

// GetEvent handles GET /v1/events/:id.
func (h *PublicHandler) GetEvent(c echo.Context) error {
    id := strings.TrimSpace(c.Param("id"))
    if id == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ev, err := h.Events.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return unexpected(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "event":    ev,
        "sold_out": ev.SoldOut(),
    })
}
