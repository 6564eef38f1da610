package middleware

// identity.go holds the request identity helpers shared by the middleware
// and the handlers: the raw bearer token and the authenticated user id.

import (
    "strings"

    "github.com/labstack/echo/v4"
)

// BearerToken returns the token of an "Authorization: Bearer ..." header,
// or "" when there is none.
func BearerToken(c echo.Context) string {
    auth := c.Request().Header.Get("Authorization")
    if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
        return ""
    }
    return strings.TrimSpace(auth[7:])
}

// currentUserID returns the id set by JWTAuth, or "anon".
func currentUserID(c echo.Context) string {
    if s, ok := c.Get("user_id").(string); ok && s != "" {
        return s
    }
    return "anon"
}
