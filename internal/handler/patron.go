package handler

import (
	"net/http" // HTTP status codes
	"strconv"  // parsing query parameters
	"time"     // formatting timestamps in responses

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/matiasvr/matchday-reservation/internal/engine" // reservation engine
	"github.com/matiasvr/matchday-reservation/internal/model"  // response shapes
)

// PatronHandler exposes the engine's patron-facing operations:
// availability checks, holds, reservations and the waitlist.  All
// methods assume JWT authentication and role validation has already
// been performed by middleware and may return 401 Unauthorized when the
// user ID cannot be extracted from the context.
type PatronHandler struct {
	Engine *engine.Engine
}

// NewPatronHandler constructs a PatronHandler.  The engine must be
// non-nil.
func NewPatronHandler(eng *engine.Engine) *PatronHandler {
	if eng == nil {
		panic("nil engine passed to NewPatronHandler")
	}
	return &PatronHandler{Engine: eng}
}

// CheckAvailability handles GET /v1/pools/:id/availability?party_size=N.
// It always answers 200 with an availability verdict; capacity
// shortfalls are reported in the body, not as an HTTP error, because
// they are an expected outcome rather than a failed request.
func (h *PatronHandler) CheckAvailability(c echo.Context) error {
	poolID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pool id"})
	}
	partySize, err := strconv.ParseUint(c.QueryParam("party_size"), 10, 32)
	if err != nil || partySize == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size is required"})
	}
	av, err := h.Engine.CheckAvailability(c.Request().Context(), poolID, uint32(partySize))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// CreateHold handles POST /v1/pools/:id/holds.  The body carries the
// party size and an optional accessibility requirement.  On success it
// returns 201 with the hold id, token and expiry; capacity shortfalls
// return 409 insufficient_capacity so the client can offer the
// waitlist.
func (h *PatronHandler) CreateHold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	poolID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pool id"})
	}
	var body struct {
		PartySize  uint32 `json:"party_size"`
		Accessible bool   `json:"accessible"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PartySize == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size is required"})
	}
	hold, err := h.Engine.CreateHold(c.Request().Context(), poolID, userID, body.PartySize, body.Accessible)
	if err != nil {
		return engineError(c, err)
	}
	resp := echo.Map{
		"hold_id":    hold.ID,
		"hold_token": hold.HoldToken,
		"party_size": hold.PartySize,
		"expires_at": hold.ExpiresAt.Format(time.RFC3339),
	}
	if hold.TableID != nil {
		resp["table_id"] = *hold.TableID
	}
	return c.JSON(http.StatusCreated, resp)
}

// ReleaseHold handles DELETE /v1/holds/:id.  Abandoning a hold releases
// its capacity synchronously; afterwards the hold no longer exists.
func (h *PatronHandler) ReleaseHold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	if err := h.Engine.ReleaseHold(c.Request().Context(), holdID, userID); err != nil {
		return engineError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmHold handles POST /v1/holds/:id/confirm.  It converts a live
// hold into a confirmed reservation and returns the signed check-in
// ticket.  A hold that expired behaves exactly like one that never
// existed.
func (h *PatronHandler) ConfirmHold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	var body struct {
		SpecialRequests string `json:"special_requests"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, payload, err := h.Engine.ConfirmHold(c.Request().Context(), holdID, userID, body.SpecialRequests)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation": reservationView(res),
		"ticket":      payload,
	})
}

// RequestReservation handles POST /v1/pools/:id/requests, the
// request-to-book path.  The reservation is created pending and claims
// no capacity until an operator approves it.
func (h *PatronHandler) RequestReservation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	poolID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pool id"})
	}
	var body struct {
		PartySize       uint32 `json:"party_size"`
		SpecialRequests string `json:"special_requests"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PartySize == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size is required"})
	}
	res, err := h.Engine.RequestReservation(c.Request().Context(), poolID, userID, body.PartySize, body.SpecialRequests)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation": reservationView(res)})
}

// ListReservations handles GET /v1/my-reservations.  When no
// reservations exist it returns an empty array.
func (h *PatronHandler) ListReservations(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Engine.ListReservations(c.Request().Context(), userID)
	if err != nil {
		return engineError(c, err)
	}
	views := make([]echo.Map, 0, len(items))
	for i := range items {
		views = append(views, reservationView(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// GetReservation handles GET /v1/reservations/:id for the owning
// patron.
func (h *PatronHandler) GetReservation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Engine.GetReservation(c.Request().Context(), resID, userID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": reservationView(res)})
}

// CancelReservation handles DELETE /v1/reservations/:id.  The optional
// body carries a cancellation reason.  Cancelling a confirmed
// reservation returns its capacity to the pool and wakes the waitlist.
func (h *PatronHandler) CancelReservation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body) // body is optional
	res, err := h.Engine.CancelReservation(c.Request().Context(), resID, userID, body.Reason)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": reservationView(res)})
}

// JoinWaitlist handles POST /v1/pools/:id/waitlist.  Joining twice
// returns the existing entry and its unchanged position instead of
// re-queueing the party.
func (h *PatronHandler) JoinWaitlist(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	poolID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pool id"})
	}
	var body struct {
		PartySize  uint32 `json:"party_size"`
		Accessible bool   `json:"accessible"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PartySize == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size is required"})
	}
	ctx := c.Request().Context()
	entry, already, err := h.Engine.JoinWaitlist(ctx, poolID, userID, body.PartySize, body.Accessible)
	if err != nil {
		return engineError(c, err)
	}
	position, err := h.Engine.WaitlistPosition(ctx, entry.ID, userID)
	if err != nil {
		return engineError(c, err)
	}
	status := http.StatusCreated
	if already {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{
		"entry_id":       entry.ID,
		"position":       position,
		"already_queued": already,
		"party_size":     entry.PartySize,
		"created_at":     entry.CreatedAt.Format(time.RFC3339),
	})
}

// WaitlistPosition handles GET /v1/waitlist/:id/position.
func (h *PatronHandler) WaitlistPosition(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entry id"})
	}
	position, err := h.Engine.WaitlistPosition(c.Request().Context(), entryID, userID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"position": position})
}

// LeaveWaitlist handles DELETE /v1/waitlist/:id.
func (h *PatronHandler) LeaveWaitlist(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entry id"})
	}
	removed, err := h.Engine.LeaveWaitlist(c.Request().Context(), entryID, userID)
	if err != nil {
		return engineError(c, err)
	}
	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// reservationView shapes a reservation for JSON responses, omitting
// null columns instead of rendering them.
func reservationView(res *model.Reservation) echo.Map {
	v := echo.Map{
		"id":         res.ID,
		"pool_id":    res.PoolID,
		"party_size": res.PartySize,
		"status":     res.Status,
		"created_at": res.CreatedAt.Format(time.RFC3339),
	}
	if res.TableID != nil {
		v["table_id"] = *res.TableID
	}
	if res.SpecialRequests != nil {
		v["special_requests"] = *res.SpecialRequests
	}
	if res.QRTicket != nil {
		v["qr_ticket"] = *res.QRTicket
	}
	if res.CheckedInAt != nil {
		v["checked_in_at"] = res.CheckedInAt.Format(time.RFC3339)
	}
	if res.CanceledAt != nil {
		v["canceled_at"] = res.CanceledAt.Format(time.RFC3339)
	}
	if res.CanceledReason != nil {
		v["canceled_reason"] = *res.CanceledReason
	}
	return v
}
