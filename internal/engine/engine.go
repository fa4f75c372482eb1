package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/queue"
	"github.com/matiasvr/matchday-reservation/internal/ticket"
)

// HoldTTL is the lifetime of a hold.  There is no renewal: a caller who
// needs more time creates a fresh hold, which fails if the capacity is
// gone.
const HoldTTL = 15 * time.Minute

// NotifyWindow is the advisory claim window stamped on a waitlist entry
// when freed capacity fits its party.
const NotifyWindow = 15 * time.Minute

// Deps bundles everything an Engine needs.  Events and Locker may be
// nil: a nil sink drops intents, a nil locker skips cross-instance
// serialization of the waitlist notify path.
type Deps struct {
	Pools        PoolStore
	Holds        HoldStore
	Reservations ReservationStore
	Waitlist     WaitlistStore
	Events       EventSink
	Locker       Locker
	Signer       *ticket.Signer
}

// Engine coordinates the capacity ledger, hold manager, waitlist queue,
// ticket signer and reservation lifecycle.  It is safe for concurrent
// use; all per-pool atomicity lives in the stores.
type Engine struct {
	pools        PoolStore
	holds        HoldStore
	reservations ReservationStore
	waitlist     WaitlistStore
	events       EventSink
	locker       Locker
	signer       *ticket.Signer
	now          func() time.Time
}

// New constructs an Engine.  It panics on missing stores or signer, the
// same way handlers panic on nil repositories: a half-wired engine is a
// programming error, not a runtime condition.
func New(d Deps) *Engine {
	if d.Pools == nil || d.Holds == nil || d.Reservations == nil || d.Waitlist == nil || d.Signer == nil {
		panic("nil dependency passed to engine.New")
	}
	return &Engine{
		pools:        d.Pools,
		holds:        d.Holds,
		reservations: d.Reservations,
		waitlist:     d.Waitlist,
		events:       d.Events,
		locker:       d.Locker,
		signer:       d.Signer,
		now:          time.Now,
	}
}

// WithClock overrides the engine's time source.  Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Availability is the soft-fail answer to "can this party be seated".
// Reason is one of the rejection codes below when Available is false.
type Availability struct {
	Available         bool   `json:"available"`
	AvailableCapacity uint32 `json:"available_capacity"`
	MaxGroupSize      uint32 `json:"max_group_size"`
	Reason            string `json:"reason,omitempty"`
}

// Rejection reasons reported by CheckAvailability.
const (
	ReasonPartyTooLarge      = "party_size_exceeds_group_limit"
	ReasonReservationsClosed = "reservations_closed"
	ReasonInsufficient       = "insufficient_capacity"
)

// CheckAvailability reports whether a party of the given size could
// take a hold right now.  Capacity shortfalls are an answer, not an
// error; only a missing pool or storage failure returns a non-nil
// error.  Expired holds are swept first so the answer never reports
// phantom scarcity.
func (e *Engine) CheckAvailability(ctx context.Context, poolID uint64, partySize uint32) (Availability, error) {
	if err := e.ReleaseExpiredHolds(ctx); err != nil {
		return Availability{}, err
	}
	pool, err := e.pools.GetPool(ctx, poolID)
	if err != nil {
		return Availability{}, err
	}
	av := Availability{
		AvailableCapacity: pool.AvailableCapacity,
		MaxGroupSize:      pool.MaxGroupSize,
	}
	switch {
	case !pool.AllowsReservations:
		av.Reason = ReasonReservationsClosed
	case partySize == 0 || partySize > pool.MaxGroupSize:
		av.Reason = ReasonPartyTooLarge
	case pool.AvailableCapacity < partySize:
		av.Reason = ReasonInsufficient
	default:
		av.Available = true
	}
	return av, nil
}

// PoolParams describes a new ledger row.  BlockedCapacity is withheld
// up front; everything else starts available.
type PoolParams struct {
	VenueID            uint64
	EventID            uint64
	EventStartsAt      time.Time
	TotalCapacity      uint32
	BlockedCapacity    uint32
	MaxGroupSize       uint32
	AllowsReservations bool
	RequiresApproval   bool
	TableScoped        bool
}

// CreatePool provisions the ledger for one venue broadcast of one
// event.  The counters start at available = total - blocked so the
// ledger invariant holds from the first read.
func (e *Engine) CreatePool(ctx context.Context, p PoolParams) (*model.Pool, error) {
	if p.TotalCapacity == 0 || p.BlockedCapacity > p.TotalCapacity {
		return nil, ErrInsufficientCapacity
	}
	maxGroup := p.MaxGroupSize
	if maxGroup == 0 || maxGroup > p.TotalCapacity {
		maxGroup = p.TotalCapacity
	}
	pool := &model.Pool{
		VenueID:            p.VenueID,
		EventID:            p.EventID,
		EventStartsAt:      p.EventStartsAt.UTC(),
		TotalCapacity:      p.TotalCapacity,
		AvailableCapacity:  p.TotalCapacity - p.BlockedCapacity,
		BlockedCapacity:    p.BlockedCapacity,
		MaxGroupSize:       maxGroup,
		AllowsReservations: p.AllowsReservations,
		RequiresApproval:   p.RequiresApproval,
		TableScoped:        p.TableScoped,
	}
	if err := e.pools.CreatePool(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// ReleaseExpiredHolds sweeps holds past their expiry, returning their
// capacity to the pools, and runs the waitlist notification path for
// every pool that gained capacity.  It is invoked lazily before
// availability reads and hold confirmation, and periodically from a
// background ticker so idle traffic does not leave capacity pinned.
func (e *Engine) ReleaseExpiredHolds(ctx context.Context) error {
	released, err := e.holds.SweepExpired(ctx)
	if err != nil {
		return err
	}
	seen := make(map[uint64]struct{}, len(released))
	for _, h := range released {
		if _, ok := seen[h.PoolID]; ok {
			continue
		}
		seen[h.PoolID] = struct{}{}
		e.notifyNextWaiting(ctx, h.PoolID)
	}
	return nil
}

// notifyNextWaiting marks the earliest waiting entry that fits the
// pool's current free capacity as notified and emits the slot-available
// intent.  The notification is advisory, never a claim: the entry's
// party still has to create a hold.  Failures here are swallowed; the
// next release will try again.
func (e *Engine) notifyNextWaiting(ctx context.Context, poolID uint64) {
	if e.locker != nil {
		release, ok := e.locker.Acquire(ctx, waitlistLockKey(poolID), 5*time.Second)
		if !ok {
			// Another instance is already notifying for this pool.
			return
		}
		defer release()
	}
	now := e.now().UTC()
	_ = e.waitlist.ExpireNotifications(ctx, now)
	pool, err := e.pools.GetPool(ctx, poolID)
	if err != nil || pool.AvailableCapacity == 0 {
		return
	}
	entry, err := e.waitlist.FirstWaitingFit(ctx, poolID, pool.AvailableCapacity)
	if err != nil {
		return
	}
	windowEnd := now.Add(NotifyWindow)
	if err := e.waitlist.MarkNotified(ctx, entry.ID, now, windowEnd); err != nil {
		return
	}
	if e.events != nil {
		_ = e.events.WaitlistSlotAvailable(ctx, queue.WaitlistSlotAvailableEvent{
			EntryID:           entry.ID,
			OwnerID:           entry.OwnerID,
			PoolID:            poolID,
			PartySize:         entry.PartySize,
			AvailableCapacity: pool.AvailableCapacity,
			WindowExpiresAt:   windowEnd.Format(time.RFC3339),
		})
	}
}

func waitlistLockKey(poolID uint64) string {
	return "waitlist:notify:" + strconv.FormatUint(poolID, 10)
}

// randomToken returns n bytes of secure randomness as a hex string.
// Used for hold tokens.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
