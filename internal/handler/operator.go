package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/repository"
)

// OperatorHandler exposes the venue-side operations: provisioning
// pools and tables, approving request-to-book reservations, and the
// door flow of verifying tickets and checking parties in.  Routes using
// it are guarded by the OPERATOR role.
type OperatorHandler struct {
	Engine *engine.Engine
	Tables *repository.TableRepo
}

// NewOperatorHandler constructs an OperatorHandler.  Dependencies must
// be non-nil.
func NewOperatorHandler(eng *engine.Engine, tables *repository.TableRepo) *OperatorHandler {
	if eng == nil || tables == nil {
		panic("nil dependency passed to NewOperatorHandler")
	}
	return &OperatorHandler{Engine: eng, Tables: tables}
}

// CreatePool handles POST /v1/pools.  It provisions the capacity
// ledger for one venue broadcast of one event.
func (h *OperatorHandler) CreatePool(c echo.Context) error {
	var body struct {
		VenueID            uint64 `json:"venue_id"`
		EventID            uint64 `json:"event_id"`
		EventStartsAt      string `json:"event_starts_at"`
		TotalCapacity      uint32 `json:"total_capacity"`
		BlockedCapacity    uint32 `json:"blocked_capacity"`
		MaxGroupSize       uint32 `json:"max_group_size"`
		AllowsReservations bool   `json:"allows_reservations"`
		RequiresApproval   bool   `json:"requires_approval"`
		TableScoped        bool   `json:"table_scoped"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.VenueID == 0 || body.EventID == 0 || body.TotalCapacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "venue_id, event_id and total_capacity are required"})
	}
	startsAt, err := time.Parse(time.RFC3339, body.EventStartsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_starts_at must be RFC3339"})
	}
	pool, err := h.Engine.CreatePool(c.Request().Context(), engine.PoolParams{
		VenueID:            body.VenueID,
		EventID:            body.EventID,
		EventStartsAt:      startsAt,
		TotalCapacity:      body.TotalCapacity,
		BlockedCapacity:    body.BlockedCapacity,
		MaxGroupSize:       body.MaxGroupSize,
		AllowsReservations: body.AllowsReservations,
		RequiresApproval:   body.RequiresApproval,
		TableScoped:        body.TableScoped,
	})
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"pool_id":            pool.ID,
		"available_capacity": pool.AvailableCapacity,
		"max_group_size":     pool.MaxGroupSize,
	})
}

// CreateTables handles POST /v1/venues/:id/tables.  It registers the
// physical tables a table-scoped pool's matcher will select from.
func (h *OperatorHandler) CreateTables(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid venue id"})
	}
	var body struct {
		Tables []struct {
			Capacity     uint32 `json:"capacity"`
			IsAccessible bool   `json:"is_accessible"`
		} `json:"tables"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Tables) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tables is required"})
	}
	tables := make([]model.Table, 0, len(body.Tables))
	for _, t := range body.Tables {
		if t.Capacity == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "table capacity must be positive"})
		}
		tables = append(tables, model.Table{
			VenueID:      venueID,
			Capacity:     t.Capacity,
			IsAccessible: t.IsAccessible,
			IsActive:     true,
		})
	}
	if err := h.Tables.CreateBulk(c.Request().Context(), tables); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": len(tables)})
}

// ListTables handles GET /v1/venues/:id/tables, returning the active
// tables in the order the matcher considers them.
func (h *OperatorHandler) ListTables(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid venue id"})
	}
	tables, err := h.Tables.ListByVenue(c.Request().Context(), venueID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	items := make([]echo.Map, 0, len(tables))
	for _, t := range tables {
		items = append(items, echo.Map{
			"id":            t.ID,
			"capacity":      t.Capacity,
			"is_accessible": t.IsAccessible,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ApproveReservation handles POST /v1/reservations/:id/approve.  The
// approval claims capacity; when the pool can no longer seat the party
// the request stays pending and 409 insufficient_capacity is returned.
func (h *OperatorHandler) ApproveReservation(c echo.Context) error {
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, payload, err := h.Engine.ApproveReservation(c.Request().Context(), resID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation": reservationView(res),
		"ticket":      payload,
	})
}

// DeclineReservation handles POST /v1/reservations/:id/decline.
func (h *OperatorHandler) DeclineReservation(c echo.Context) error {
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body) // body is optional
	res, err := h.Engine.DeclineReservation(c.Request().Context(), resID, body.Reason)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": reservationView(res)})
}

// VerifyTicket handles POST /v1/tickets/verify.  The body carries the
// raw scanned content.  All verification outcomes are 200 responses;
// the verdict lives in the body so door tablets can branch on it
// without parsing error statuses.
func (h *OperatorHandler) VerifyTicket(c echo.Context) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "content is required"})
	}
	result, err := h.Engine.VerifyTicket(c.Request().Context(), body.Content)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// CheckIn handles POST /v1/reservations/:id/check-in.  Re-scanning an
// already checked-in reservation returns the original check-in record
// with 200 instead of an error.
func (h *OperatorHandler) CheckIn(c echo.Context) error {
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Engine.CheckIn(c.Request().Context(), resID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": reservationView(res)})
}

// CompleteReservation handles POST /v1/reservations/:id/complete,
// closing out a checked-in party after the event.
func (h *OperatorHandler) CompleteReservation(c echo.Context) error {
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Engine.CompleteReservation(c.Request().Context(), resID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": reservationView(res)})
}
