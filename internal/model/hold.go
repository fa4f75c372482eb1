package model

import "time"

// Hold is a temporary claim of capacity taken while a patron finishes
// booking.  A hold pins party-size units of a pool (and a specific
// table for table-scoped pools) for fifteen minutes.  Holds are never
// mutated after creation; they are either consumed into a reservation
// or deleted, releasing their units back to the pool.
//
// Fields:
//  ID        – primary key identifier.
//  OwnerID   – patron who owns the hold.
//  PoolID    – pool the capacity is claimed from.
//  TableID   – pinned table for table-scoped pools (nil otherwise).
//  PartySize – number of seats claimed.
//  HoldToken – opaque token returned to the client for correlation.
//  CreatedAt – when the hold was created.
//  ExpiresAt – when the hold lapses (created_at + 15 minutes).
type Hold struct {
	ID        uint64    // holds.id
	OwnerID   uint64    // holds.owner_id
	PoolID    uint64    // holds.pool_id
	TableID   *uint64   // holds.table_id (nullable)
	PartySize uint32    // holds.party_size
	HoldToken string    // holds.hold_token
	CreatedAt time.Time // holds.created_at
	ExpiresAt time.Time // holds.expires_at
}

// Expired reports whether the hold has lapsed at the given instant.
func (h *Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
