package engine

import (
	"context"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/model"

	"github.com/matiasvr/matchday-reservation/internal/queue"
)

// Storage contracts for the engine.  Every method that moves ledger
// counters is required to be atomic with respect to concurrent callers
// on the same pool: the MySQL implementations use conditional UPDATE
// guards and transactions, a single-process implementation may use a
// per-pool mutex.  Counter movements are always paired with the
// mutation of the hold or reservation row that justifies them inside
// the same atomic unit, which is what makes double releases impossible:
// the second caller finds no row to mutate and the counters stay put.

// PoolStore provides the capacity ledger rows.
type PoolStore interface {
	// GetPool loads one pool or returns ErrNotFound.
	GetPool(ctx context.Context, poolID uint64) (*model.Pool, error)

	// CreatePool inserts a new ledger row and fills in the assigned ID.
	CreatePool(ctx context.Context, p *model.Pool) error

	// ClaimReserved atomically moves partySize units from available to
	// reserved, failing with ErrInsufficientCapacity when fewer than
	// partySize units are available.  Used by the approval path, which
	// reserves and commits in one step since no hold ever existed.
	ClaimReserved(ctx context.Context, poolID uint64, partySize uint32) error

	// ReleaseReserved atomically moves partySize units from reserved
	// back to available.  Callers guarantee exactly-once invocation by
	// gating it on a conditional status transition of the owning
	// reservation.
	ReleaseReserved(ctx context.Context, poolID uint64, partySize uint32) error
}

// HoldStore provides hold rows.  Creation and consumption move ledger
// counters in the same atomic unit as the row change.
type HoldStore interface {
	// CreateHold claims hold.PartySize units (available -> held) and
	// inserts the hold, atomically.  Fails with
	// ErrInsufficientCapacity when the pool cannot cover the party or
	// is not accepting reservations.
	CreateHold(ctx context.Context, hold *model.Hold) error

	// CreateTableHold is CreateHold for table-scoped pools: it
	// additionally picks the best-fitting free table of the venue
	// (smallest capacity >= party size, accessible when required,
	// skipping tables locked by concurrent matchers) and pins it on the
	// hold.  Fails with ErrInsufficientCapacity when no table fits.
	CreateTableHold(ctx context.Context, venueID uint64, hold *model.Hold, requiresAccessible bool) error

	// ConsumeHold deletes a live hold and moves its units from held to
	// reserved, atomically, returning the consumed hold.  A hold that
	// is absent or expired yields ErrNotFound; a live hold owned by
	// someone else yields ErrForbidden.
	ConsumeHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error)

	// ReleaseHold deletes a live hold owned by the caller and moves its
	// units from held back to available, atomically.  Same error
	// contract as ConsumeHold.
	ReleaseHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error)

	// SweepExpired deletes every hold past its expiry and returns
	// capacity (held -> available) per hold, atomically per hold.  It
	// returns the released holds so the caller can run the waitlist
	// notification path for the affected pools.
	SweepExpired(ctx context.Context) ([]model.Hold, error)
}

// ReservationStore provides the durable reservation rows.  Status
// transitions are conditional on the expected prior status and report
// ErrInvalidTransition when the row was not in it, which callers use
// both for lifecycle enforcement and as the exactly-once gate for
// ledger releases.
type ReservationStore interface {
	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListReservationsByOwner(ctx context.Context, ownerID uint64) ([]model.Reservation, error)

	// AttachTicket stores the serialized signed payload on the row.
	AttachTicket(ctx context.Context, id uint64, blob string) error

	// MarkConfirmed transitions pending -> confirmed.
	MarkConfirmed(ctx context.Context, id uint64) error

	// MarkCanceled transitions fromStatus -> canceled, recording the
	// reason and cancellation time.
	MarkCanceled(ctx context.Context, id uint64, fromStatus, reason string, at time.Time) error

	// MarkCheckedIn transitions confirmed -> checked_in, stamping the
	// check-in time.
	MarkCheckedIn(ctx context.Context, id uint64, at time.Time) error

	// MarkCompleted transitions checked_in -> completed.
	MarkCompleted(ctx context.Context, id uint64) error
}

// WaitlistStore provides the FIFO waitlist rows.
type WaitlistStore interface {
	CreateEntry(ctx context.Context, e *model.WaitlistEntry) error
	GetEntry(ctx context.Context, id uint64) (*model.WaitlistEntry, error)

	// FindActiveEntry returns the waiting or notified entry for an
	// (owner, pool) pair, or ErrNotFound.  Used to dedupe joins.
	FindActiveEntry(ctx context.Context, ownerID, poolID uint64) (*model.WaitlistEntry, error)

	// CountWaitingAhead counts waiting entries for the pool created
	// strictly before the given entry.  Position is that count plus
	// one; creation time is the sole ordering contract.
	CountWaitingAhead(ctx context.Context, e *model.WaitlistEntry) (int, error)

	// DeleteEntry removes an active entry owned by the caller and
	// reports whether anything was removed.
	DeleteEntry(ctx context.Context, id, ownerID uint64) (bool, error)

	// FirstWaitingFit returns the earliest waiting entry for the pool
	// whose party fits in the given capacity, or ErrNotFound.
	FirstWaitingFit(ctx context.Context, poolID uint64, capacity uint32) (*model.WaitlistEntry, error)

	// MarkNotified transitions waiting -> notified and stamps the claim
	// window; a no-op (ErrNotFound) when the entry is no longer waiting.
	MarkNotified(ctx context.Context, id uint64, notifiedAt, windowEnd time.Time) error

	// ExpireNotifications moves notified entries whose claim window has
	// passed to expired, so later releases notify the next party.
	ExpireNotifications(ctx context.Context, now time.Time) error

	// MarkConverted closes out an active entry for the (owner, pool)
	// pair after the owner successfully claimed capacity.
	MarkConverted(ctx context.Context, ownerID, poolID uint64) error
}

// EventSink receives fire-and-forget notification intents.  The engine
// never waits on delivery; implementations log and swallow transport
// failures.
type EventSink interface {
	ReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
	WaitlistSlotAvailable(ctx context.Context, ev queue.WaitlistSlotAvailableEvent) error
}

// Locker serializes cross-instance critical sections with a short-lived
// lease.  The engine uses it only for the waitlist notification path,
// where two instances releasing capacity concurrently could otherwise
// notify the same entry twice.  A nil Locker degrades to no locking,
// which is fine for a single process.
type Locker interface {
	// Acquire takes the lease for key or reports ok=false when another
	// holder has it.  The returned release function is safe to call
	// once; the lease also lapses on its own after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool)
}
