package model

import "time"

// Table is a physical table in a venue.  Tables only matter for pools
// with TableScoped set; aggregate pools track bare counters instead.
type Table struct {
	ID           uint64    // venue_tables.id
	VenueID      uint64    // venue_tables.venue_id
	Capacity     uint32    // venue_tables.capacity
	IsAccessible bool      // venue_tables.is_accessible
	IsActive     bool      // venue_tables.is_active
	CreatedAt    time.Time // venue_tables.created_at
}
