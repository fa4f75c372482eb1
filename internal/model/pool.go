package model

import "time"

// Pool is the aggregate capacity record for one venue's broadcast of one
// event.  It is the single source of truth for seating capacity: holds
// and reservations only ever claim against its counters, they never
// duplicate them.  The counters always satisfy
// available + held + reserved + blocked == total.
//
// Fields:
//  ID                 – primary key identifier.
//  VenueID            – venue broadcasting the event.
//  EventID            – external reference to the broadcast event.
//  EventStartsAt      – kick-off time; check-in tickets expire two
//                       hours after this.
//  TotalCapacity      – total seats the venue sells for this event.
//  AvailableCapacity  – seats currently claimable.
//  HeldCapacity       – seats under a live, unconfirmed hold.
//  ReservedCapacity   – seats committed to confirmed reservations.
//  BlockedCapacity    – seats withheld by the venue (staff tables etc).
//  MaxGroupSize       – largest party a single hold may request.
//  AllowsReservations – false when the venue runs walk-in only.
//  RequiresApproval   – true for request-to-book venues; reservations
//                       start as pending and claim no capacity until an
//                       operator approves them.
//  TableScoped        – true when the venue models physical tables and
//                       holds must pin a specific table.
type Pool struct {
	ID                 uint64    // capacity_pools.id
	VenueID            uint64    // capacity_pools.venue_id
	EventID            uint64    // capacity_pools.event_id
	EventStartsAt      time.Time // capacity_pools.event_starts_at
	TotalCapacity      uint32    // capacity_pools.total_capacity
	AvailableCapacity  uint32    // capacity_pools.available_capacity
	HeldCapacity       uint32    // capacity_pools.held_capacity
	ReservedCapacity   uint32    // capacity_pools.reserved_capacity
	BlockedCapacity    uint32    // capacity_pools.blocked_capacity
	MaxGroupSize       uint32    // capacity_pools.max_group_size
	AllowsReservations bool      // capacity_pools.allows_reservations
	RequiresApproval   bool      // capacity_pools.requires_approval
	TableScoped        bool      // capacity_pools.table_scoped
	CreatedAt          time.Time // capacity_pools.created_at
	UpdatedAt          time.Time // capacity_pools.updated_at
}
