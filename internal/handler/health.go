package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB; wrap other clients with PingFunc.
type Pinger interface {
    PingContext(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready reports 503 until every dependency answers a ping.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        status := http.StatusOK
        out := echo.Map{}
        for name, p := range deps {
            if err := p.PingContext(ctx); err != nil {
                c.Logger().Warnf("readiness %s: %v", name, err)
                out[name] = "down"
                status = http.StatusServiceUnavailable
                continue
            }
            out[name] = "up"
        }
        return c.JSON(status, out)
    }
}
