package handler // handler defines http handlers

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/service"
)

// msgUnexpected is shown for every failure the user cannot act on.
const msgUnexpected = "An unexpected error occurred. Please try again."

// errUnauthenticated is returned by getUserID when JWTAuth did not run.
var errUnauthenticated = errors.New("no authenticated user")

// getUserID extracts the user_id set by the JWT middleware.
func getUserID(c echo.Context) (string, error) {
    s, ok := c.Get("user_id").(string)
    if !ok || s == "" {
        return "", errUnauthenticated
    }
    return s, nil
}

// tabID identifies the browser tab a booking intent belongs to.
func tabID(c echo.Context) string {
    return strings.TrimSpace(c.Request().Header.Get("X-Tab-ID"))
}

// unexpected logs err and answers with the generic message.
func unexpected(c echo.Context, err error) error {
    c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": msgUnexpected})
}

// quantityFailure answers a rejected ticket quantity together with the
// value the field resets to.
func quantityFailure(c echo.Context, qe *service.QuantityError) error {
    status := http.StatusBadRequest
    body := echo.Map{"error": qe.Error(), "ticket_count": qe.Clamp}
    switch qe.Reason {
    case service.ReasonExceeds:
        status = http.StatusUnprocessableEntity
        body["available"] = qe.Available
    case service.ReasonNowUnavailable:
        status = http.StatusConflict
        body["available"] = qe.Available
    }
    return c.JSON(status, body)
}

// countField accepts a ticket count sent either as a JSON string (the raw
// form text) or as a number.
type countField string

func (f *countField) UnmarshalJSON(b []byte) error {
    if string(b) == "null" {
        *f = ""
        return nil
    }
    var s string
    if err := json.Unmarshal(b, &s); err == nil {
        *f = countField(s)
        return nil
    }
    var n json.Number
    if err := json.Unmarshal(b, &n); err != nil {
        return err
    }
    *f = countField(n.String())
    return nil
}

// pageParams reads page and page_size, clamping page_size to 1..100.
func pageParams(c echo.Context) (page, size int) {
    page, _ = strconv.Atoi(c.QueryParam("page"))
    if page < 1 { page = 1 }
    size, _ = strconv.Atoi(c.QueryParam("page_size"))
    if size < 1 { size = 20 }
    if size > 100 { size = 100 }
    return page, size
}
