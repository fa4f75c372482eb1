package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/matiasvr/matchday-reservation/internal/config"     // rate limit configuration
	"github.com/matiasvr/matchday-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/matiasvr/matchday-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterPatron registers patron-scoped endpoints under /v1.  All routes
// require a valid JWT; both PATRON and OPERATOR roles may call them so
// venue staff can act on a patron's behalf at the bar.  The availability
// and hold endpoints additionally run through the Redis token-bucket
// rate limiter since those are the ones hammered during popular
// fixtures.
func RegisterPatron(e *echo.Echo, h *handler.PatronHandler, jwtSecret string, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PATRON", "OPERATOR"),
	)

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// ---- Availability + holds ----
	g.GET("/pools/:id/availability", h.CheckAvailability, limit)
	g.POST("/pools/:id/holds", h.CreateHold, limit)
	g.DELETE("/holds/:id", h.ReleaseHold)
	g.POST("/holds/:id/confirm", h.ConfirmHold)

	// ---- Reservations ----
	g.POST("/pools/:id/requests", h.RequestReservation)
	g.GET("/my-reservations", h.ListReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.DELETE("/reservations/:id", h.CancelReservation)

	// ---- Waitlist ----
	g.POST("/pools/:id/waitlist", h.JoinWaitlist)
	g.GET("/waitlist/:id/position", h.WaitlistPosition)
	g.DELETE("/waitlist/:id", h.LeaveWaitlist)
}

// RegisterOperator registers OPERATOR-scoped endpoints under /v1.
// All routes require a valid JWT and the OPERATOR role.
func RegisterOperator(e *echo.Echo, o *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("OPERATOR"),
	)

	// ---- Provisioning ----
	g.POST("/pools", o.CreatePool)
	g.POST("/venues/:id/tables", o.CreateTables)
	g.GET("/venues/:id/tables", o.ListTables)

	// ---- Request-to-book review ----
	g.POST("/reservations/:id/approve", o.ApproveReservation)
	g.POST("/reservations/:id/decline", o.DeclineReservation)

	// ---- Door flow ----
	g.POST("/tickets/verify", o.VerifyTicket)
	g.POST("/reservations/:id/check-in", o.CheckIn)
	g.POST("/reservations/:id/complete", o.CompleteReservation)
}
