// Package queue defines message payloads exchanged over the message
// broker.  The engine emits the need for a notification; composing and
// delivering push/SMS/email is the notification service's job.
package queue

// Queue names.  Both queues are declared durable by publisher and
// consumer alike so declaration order does not matter.
const (
	ReservationConfirmedQueue = "reservation.confirmed"
	WaitlistSlotQueue         = "waitlist.slot_available"
)

// ReservationConfirmedEvent is published when a hold is confirmed or a
// pending request is approved.  It carries enough for downstream
// consumers to notify the patron and log analytics without querying the
// primary database.
type ReservationConfirmedEvent struct {
	ReservationID uint64  `json:"reservation_id"`
	OwnerID       uint64  `json:"owner_id"`
	PoolID        uint64  `json:"pool_id"`
	VenueID       uint64  `json:"venue_id"`
	EventID       uint64  `json:"event_id"`
	TableID       *uint64 `json:"table_id,omitempty"`
	PartySize     uint32  `json:"party_size"`
	EventStartsAt string  `json:"event_starts_at"`
	ConfirmedAt   string  `json:"confirmed_at"`
}

// WaitlistSlotAvailableEvent is published when freed capacity fits a
// waiting party.  The claim window is advisory: the patron still has to
// create a hold, and the capacity may be gone by then.
type WaitlistSlotAvailableEvent struct {
	EntryID           uint64 `json:"entry_id"`
	OwnerID           uint64 `json:"owner_id"`
	PoolID            uint64 `json:"pool_id"`
	PartySize         uint32 `json:"party_size"`
	AvailableCapacity uint32 `json:"available_capacity"`
	WindowExpiresAt   string `json:"window_expires_at"`
}
