// Package engine implements the capacity allocation and reservation
// core: ledger bookkeeping, time-boxed holds, best-fit table matching,
// waitlist ordering and the reservation lifecycle.  The HTTP layer is a
// thin adapter over this package.
package engine

import "errors"

// Sentinel errors shared between the engine, its storage
// implementations and the HTTP layer.  Handlers translate these into
// status codes; storage implementations return them so the engine can
// recover expected contention outcomes locally instead of treating them
// as fatal.
var (
	// ErrInsufficientCapacity means the pool or its table set cannot
	// currently seat the requested party.  Recoverable: retry later or
	// join the waitlist.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrNotFound covers absent rows and expired holds alike.  Expired
	// holds are deliberately indistinguishable from nonexistent ones so
	// probing cannot reveal whether an id ever existed.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the
	// referenced hold, reservation or waitlist entry.
	ErrForbidden = errors.New("forbidden")

	// ErrPartySizeExceedsLimit flags a request larger than the pool's
	// max_group_size.
	ErrPartySizeExceedsLimit = errors.New("party size exceeds group limit")

	// ErrReservationsClosed means the pool exists but the venue is not
	// taking reservations for this event.
	ErrReservationsClosed = errors.New("reservations closed for this event")

	// ErrInvalidTransition is returned when a lifecycle operation is
	// applied to a reservation in a state that does not permit it.
	ErrInvalidTransition = errors.New("invalid reservation state transition")

	// ErrInvalidTicket covers malformed or wrongly signed check-in
	// payloads, and payloads that do not match the reservation row they
	// claim to belong to.
	ErrInvalidTicket = errors.New("invalid ticket")

	// ErrTicketExpired means the signature checked out but the payload
	// is past its validity window.
	ErrTicketExpired = errors.New("ticket expired")
)
