package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/event-ticketing/internal/handler"    // import the handlers that implement the workflows
	"github.com/iliyamo/event-ticketing/internal/middleware" // import middleware for JWT authentication, caching and rate limiting
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Auth       *handler.AuthHandler
	Public     *handler.PublicHandler
	Booking    *handler.BookingHandler
	MyBookings *handler.MyBookingsHandler
	Session    *handler.SessionHandler
	Ready      echo.HandlerFunc
}

// Middlewares are the cross-cutting wrappers applied to selected groups.
// A nil entry is skipped.
type Middlewares struct {
	Cache     echo.MiddlewareFunc // public catalog GETs
	RateLimit echo.MiddlewareFunc // auth and booking writes
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health and readiness checks.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
	if h.Ready != nil {
		e.GET("/readyz", h.Ready)
	}
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, mw Middlewares) {
	// Operations that do not require an existing session.  Each of these
	// handlers issues, exchanges or recovers credentials, so they share the
	// rate limiter.
	g := e.Group("/v1/auth", use(mw.RateLimit)...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts a bearer token, a refresh token or both and therefore
	// does not sit behind JWTAuth.
	g.POST("/logout", a.Logout)
	// The three steps of the password reset wizard.
	g.POST("/reset", a.StartReset)
	g.POST("/reset/verify", a.VerifyReset)
	g.POST("/reset/complete", a.CompleteReset)

	// Protected endpoints live under /v1.
	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated catalog and session endpoints.
// Catalog reads go through the response cache; the session endpoints are
// per-caller and never cached.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, s *handler.SessionHandler, mw Middlewares) {
	catalog := e.Group("/v1/events", use(mw.Cache)...)
	catalog.GET("", p.SearchEvents)
	catalog.GET("/:id", p.GetEvent)

	e.GET("/v1/session", s.Get)
	e.GET("/v1/session/events", s.Stream)
}

// RegisterBooking registers the booking form, checkout handoff and the
// caller's booking list.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, m *handler.MyBookingsHandler, jwtSecret string, mw Middlewares) {
	// The form endpoints read the bearer token themselves: an anonymous
	// caller gets the login redirect, not a 401 from middleware.
	ev := e.Group("/v1/events/:id", use(mw.RateLimit)...)
	ev.POST("/quantity", b.CheckQuantity)
	ev.POST("/checkout", b.Checkout)
	ev.GET("/booking-form", b.BookingForm)
	ev.POST("/bookings", b.Commit, middleware.JWTAuth(jwtSecret))

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/my-bookings", m.List)
	auth.DELETE("/bookings/:id", m.Cancel, use(mw.RateLimit)...)
}

func use(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
