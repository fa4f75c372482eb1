package model

import "time"

// Waitlist entry status values.  Entries are strictly FIFO by
// created_at; there are no priority tiers.
const (
	WaitlistWaiting   = "waiting"
	WaitlistNotified  = "notified"
	WaitlistExpired   = "expired"
	WaitlistConverted = "converted"
)

// WaitlistEntry records a party that wanted capacity which was not
// available at request time.  When capacity frees up, the earliest
// waiting entry whose party fits is marked notified and given a claim
// window; the notification is advisory and the party must still create
// a hold to claim the freed capacity.
//
// Fields:
//  ID                    – primary key identifier.
//  OwnerID               – patron who joined the waitlist.
//  PoolID                – pool the party is waiting on.
//  PartySize             – seats the party needs.
//  RequiresAccessibility – the party needs an accessible table.
//  Status                – waiting, notified, expired or converted.
//  CreatedAt             – defines FIFO order.
//  NotifiedAt            – when the slot-available intent was emitted.
//  NotificationExpiresAt – end of the advisory claim window.
type WaitlistEntry struct {
	ID                    uint64     // waitlist_entries.id
	OwnerID               uint64     // waitlist_entries.owner_id
	PoolID                uint64     // waitlist_entries.pool_id
	PartySize             uint32     // waitlist_entries.party_size
	RequiresAccessibility bool       // waitlist_entries.requires_accessibility
	Status                string     // waitlist_entries.status
	CreatedAt             time.Time  // waitlist_entries.created_at
	NotifiedAt            *time.Time // waitlist_entries.notified_at (nullable)
	NotificationExpiresAt *time.Time // waitlist_entries.notification_expires_at (nullable)
}
