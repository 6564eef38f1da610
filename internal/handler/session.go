package handler

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/middleware"
    "github.com/iliyamo/event-ticketing/internal/session"
)

// SessionHandler exposes the header state of the caller's session and a
// stream of its changes.
type SessionHandler struct {
    Provider  session.Provider
    Profiles  session.ProfileReader
    Heartbeat time.Duration
}

func NewSessionHandler(p session.Provider, profiles session.ProfileReader) *SessionHandler {
    return &SessionHandler{Provider: p, Profiles: profiles, Heartbeat: 25 * time.Second}
}

// Get handles GET /v1/session: {authenticated, initial}.
func (h *SessionHandler) Get(c echo.Context) error {
    sc := session.New(h.Provider, h.Profiles, middleware.BearerToken(c))
    defer sc.Close()
    st, err := sc.Init(c.Request().Context())
    if err != nil {
        return unexpected(c, err)
    }
    return c.JSON(http.StatusOK, st)
}

// Stream handles GET /v1/session/events.  It writes the initial state and
// then one server-sent event per auth change until the client goes away,
// at which point the subscription is released.
func (h *SessionHandler) Stream(c echo.Context) error {
    ctx := c.Request().Context()
    sc := session.New(h.Provider, h.Profiles, middleware.BearerToken(c))
    defer sc.Close()

    st, err := sc.Init(ctx)
    if err != nil {
        return unexpected(c, err)
    }

    res := c.Response()
    res.Header().Set(echo.HeaderContentType, "text/event-stream")
    res.Header().Set(echo.HeaderCacheControl, "no-cache")
    res.Header().Set(echo.HeaderConnection, "keep-alive")
    res.WriteHeader(http.StatusOK)
    if err := writeSSE(res, "session", st); err != nil {
        return nil
    }

    hb := h.Heartbeat
    if hb <= 0 {
        hb = 25 * time.Second
    }
    ticker := time.NewTicker(hb)
    defer ticker.Stop()

    changes := sc.Changes()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-ticker.C:
            if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
                return nil
            }
            res.Flush()
        case ch, ok := <-changes:
            if !ok {
                return nil
            }
            st := sc.Apply(ch)
            if err := writeSSE(res, string(ch.Event), st); err != nil {
                return nil
            }
            if !st.Authenticated {
                // Signed out: nothing further will arrive for this token.
                return nil
            }
        }
    }
}

func writeSSE(res *echo.Response, event string, v any) error {
    data, err := json.Marshal(v)
    if err != nil {
        return err
    }
    if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
        return err
    }
    res.Flush()
    return nil
}
