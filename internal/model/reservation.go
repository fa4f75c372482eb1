package model

import "time"

// Reservation status values.  A reservation moves
// pending -> confirmed -> checked_in -> completed; canceled is reachable
// from pending or confirmed, and no_show from confirmed.  The terminal
// states (completed, canceled, no_show) accept no further transitions.
const (
	ReservationPending   = "pending"
	ReservationConfirmed = "confirmed"
	ReservationCheckedIn = "checked_in"
	ReservationCompleted = "completed"
	ReservationCanceled  = "canceled"
	ReservationNoShow    = "no_show"
)

// Reservation is the durable record a hold becomes once confirmed, or
// the pending request a patron files at a request-to-book venue.  A
// confirmed reservation owns reserved units in its pool's ledger until
// it is canceled; a pending one owns nothing until approval.
//
// Fields:
//  ID              – primary key identifier.
//  OwnerID         – patron the reservation belongs to.
//  PoolID          – pool the capacity was claimed from.
//  TableID         – pinned table for table-scoped pools (nullable).
//  PartySize       – number of seats committed.
//  Status          – lifecycle state, see constants above.
//  SpecialRequests – free-form note from the patron (nullable).
//  QRTicket        – serialized signed check-in payload (nullable; set
//                    when the reservation is confirmed).
//  CheckedInAt     – when the party was scanned in (nullable).
//  CanceledAt      – when the reservation was canceled (nullable).
//  CanceledReason  – recorded reason for cancellation (nullable).
type Reservation struct {
	ID              uint64     // reservations.id
	OwnerID         uint64     // reservations.owner_id
	PoolID          uint64     // reservations.pool_id
	TableID         *uint64    // reservations.table_id (nullable)
	PartySize       uint32     // reservations.party_size
	Status          string     // reservations.status
	SpecialRequests *string    // reservations.special_requests (nullable)
	QRTicket        *string    // reservations.qr_ticket (nullable)
	CheckedInAt     *time.Time // reservations.checked_in_at (nullable)
	CanceledAt      *time.Time // reservations.canceled_at (nullable)
	CanceledReason  *string    // reservations.canceled_reason (nullable)
	CreatedAt       time.Time  // reservations.created_at
	UpdatedAt       time.Time  // reservations.updated_at
}
