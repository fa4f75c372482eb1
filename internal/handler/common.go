package handler // handler defines http handlers

import (
	"errors"  // errors provides sentinel comparisons for engine failures
	"net/http" // HTTP status codes
	"strconv" // strconv converts strings to numeric types

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/matiasvr/matchday-reservation/internal/engine" // engine sentinel errors
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// The JWT middleware stores the token subject under "user_id"; depending on
// how the claim was encoded it may arrive as a float64 or a string.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric path parameter.  Zero is rejected along with
// garbage since no entity uses id 0.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// engineError translates engine sentinel errors into the JSON rejection
// bodies and status codes of the API.  Contention outcomes are expected
// and map to client-visible codes; anything unrecognized is a 500.
func engineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, engine.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, engine.ErrInsufficientCapacity):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient_capacity"})
	case errors.Is(err, engine.ErrPartySizeExceedsLimit):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size_exceeds_group_limit"})
	case errors.Is(err, engine.ErrReservationsClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservations_closed"})
	case errors.Is(err, engine.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_state"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
