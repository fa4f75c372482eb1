package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/ticket"
)

var kickoff = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

// fakeClock is a mutable time source shared by the engine, the signer
// and the store.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *captureSink, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: kickoff.Add(-6 * time.Hour)}
	store := newMemStore(clk.Now)
	sink := &captureSink{}
	eng := New(Deps{
		Pools:        store,
		Holds:        store,
		Reservations: store,
		Waitlist:     store,
		Events:       sink,
		Signer:       ticket.NewSigner("test-secret").WithClock(clk.Now),
	}).WithClock(clk.Now)
	return eng, store, sink, clk
}

func newPool(t *testing.T, eng *Engine, p PoolParams) *model.Pool {
	t.Helper()
	if p.EventStartsAt.IsZero() {
		p.EventStartsAt = kickoff
	}
	pool, err := eng.CreatePool(context.Background(), p)
	require.NoError(t, err)
	return pool
}

// requireLedger asserts the counter invariant
// available + held + reserved + blocked == total.
func requireLedger(t *testing.T, store *memStore, poolID uint64) *model.Pool {
	t.Helper()
	p, err := store.GetPool(context.Background(), poolID)
	require.NoError(t, err)
	sum := p.AvailableCapacity + p.HeldCapacity + p.ReservedCapacity + p.BlockedCapacity
	require.Equal(t, p.TotalCapacity, sum,
		"ledger out of balance: avail=%d held=%d reserved=%d blocked=%d total=%d",
		p.AvailableCapacity, p.HeldCapacity, p.ReservedCapacity, p.BlockedCapacity, p.TotalCapacity)
	return p
}

func TestCreatePool_Counters(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)

	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity:      50,
		BlockedCapacity:    10,
		MaxGroupSize:       8,
		AllowsReservations: true,
	})
	assert.Equal(t, uint32(40), pool.AvailableCapacity)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(10), p.BlockedCapacity)
}

func TestCreatePool_GroupSizeDefaultsToTotal(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity:      12,
		AllowsReservations: true,
	})
	assert.Equal(t, uint32(12), pool.MaxGroupSize)
}

func TestCheckAvailability_Reasons(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	open := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})
	closed := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 2,
		TotalCapacity: 10, AllowsReservations: false,
	})

	av, err := eng.CheckAvailability(ctx, open.ID, 4)
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, uint32(10), av.AvailableCapacity)

	av, err = eng.CheckAvailability(ctx, open.ID, 7)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, ReasonPartyTooLarge, av.Reason)

	av, err = eng.CheckAvailability(ctx, closed.ID, 2)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, ReasonReservationsClosed, av.Reason)

	_, err = eng.CheckAvailability(ctx, 999, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateHold_MovesAvailableToHeld(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)
	assert.NotEmpty(t, hold.HoldToken)
	assert.Equal(t, hold.CreatedAt.Add(HoldTTL), hold.ExpiresAt)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(6), p.AvailableCapacity)
	assert.Equal(t, uint32(4), p.HeldCapacity)
}

func TestCreateHold_Rejections(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})
	closed := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 2,
		TotalCapacity: 10, AllowsReservations: false,
	})

	_, err := eng.CreateHold(ctx, pool.ID, 100, 7, false)
	assert.ErrorIs(t, err, ErrPartySizeExceedsLimit)

	_, err = eng.CreateHold(ctx, pool.ID, 100, 0, false)
	assert.ErrorIs(t, err, ErrPartySizeExceedsLimit)

	_, err = eng.CreateHold(ctx, closed.ID, 100, 2, false)
	assert.ErrorIs(t, err, ErrReservationsClosed)

	// Drain the pool, then one more seat than remains.
	_, err = eng.CreateHold(ctx, pool.ID, 100, 6, false)
	require.NoError(t, err)
	_, err = eng.CreateHold(ctx, pool.ID, 101, 5, false)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestConcurrentHolds_NoOversell(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 1, AllowsReservations: true,
	})

	const callers = 25
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.CreateHold(ctx, pool.ID, uint64(1000+i), 1, false)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientCapacity)
		}
	}
	assert.Equal(t, 10, won)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(0), p.AvailableCapacity)
	assert.Equal(t, uint32(10), p.HeldCapacity)
}

func TestReleaseHold_ReturnsCapacity(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)

	require.NoError(t, eng.ReleaseHold(ctx, hold.ID, 100))
	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(10), p.AvailableCapacity)

	// Releasing again finds nothing.
	assert.ErrorIs(t, eng.ReleaseHold(ctx, hold.ID, 100), ErrNotFound)
}

func TestReleaseHold_WrongOwner(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)
	assert.ErrorIs(t, eng.ReleaseHold(ctx, hold.ID, 200), ErrForbidden)
}

func TestExpiredHold_BehavesLikeMissing(t *testing.T) {
	eng, store, _, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)

	clk.Advance(HoldTTL + time.Second)

	_, _, err = eng.ConfirmHold(ctx, hold.ID, 100, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// The failed confirm swept the hold; its capacity is back.
	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(10), p.AvailableCapacity)
	assert.Equal(t, uint32(0), p.HeldCapacity)
}

func TestConfirmHold_IssuesTicket(t *testing.T) {
	eng, store, sink, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 3, EventID: 9,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)

	res, payload, err := eng.ConfirmHold(ctx, hold.ID, 100, "window table please")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, res.Status)
	require.NotNil(t, res.QRTicket)
	require.NotNil(t, res.SpecialRequests)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(0), p.HeldCapacity)
	assert.Equal(t, uint32(4), p.ReservedCapacity)

	// The stored blob decodes back to the returned payload and verifies.
	decoded, err := ticket.Decode(*res.QRTicket)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
	assert.Equal(t, kickoff.Add(ticket.ExpiryBuffer).Unix(), payload.ExpiresAt)

	events := sink.confirmedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, res.ID, events[0].ReservationID)
	assert.Equal(t, pool.VenueID, events[0].VenueID)

	// The consumed hold is gone.
	_, _, err = eng.ConfirmHold(ctx, hold.ID, 100, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTableHold_BestFit(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 5, EventID: 1,
		TotalCapacity: 12, MaxGroupSize: 6,
		AllowsReservations: true, TableScoped: true,
	})
	store.addTable(model.Table{VenueID: 5, Capacity: 2, IsActive: true})
	fourTop := store.addTable(model.Table{VenueID: 5, Capacity: 4, IsActive: true, IsAccessible: true})
	sixTop := store.addTable(model.Table{VenueID: 5, Capacity: 6, IsActive: true})

	// A party of three gets the smallest table that fits.
	first, err := eng.CreateHold(ctx, pool.ID, 100, 3, false)
	require.NoError(t, err)
	require.NotNil(t, first.TableID)
	assert.Equal(t, fourTop, *first.TableID)

	// With the four-top pinned, the next party of three overflows to
	// the six-top.
	second, err := eng.CreateHold(ctx, pool.ID, 101, 3, false)
	require.NoError(t, err)
	require.NotNil(t, second.TableID)
	assert.Equal(t, sixTop, *second.TableID)

	// No remaining table seats three.
	_, err = eng.CreateHold(ctx, pool.ID, 102, 3, false)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	requireLedger(t, store, pool.ID)
}

func TestTableHold_AccessibleRequired(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 5, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6,
		AllowsReservations: true, TableScoped: true,
	})
	store.addTable(model.Table{VenueID: 5, Capacity: 2, IsActive: true})
	ramped := store.addTable(model.Table{VenueID: 5, Capacity: 6, IsActive: true, IsAccessible: true})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 2, true)
	require.NoError(t, err)
	require.NotNil(t, hold.TableID)
	assert.Equal(t, ramped, *hold.TableID)

	// The only accessible table is taken now.
	_, err = eng.CreateHold(ctx, pool.ID, 101, 2, true)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestCancelConfirmed_ReleasesExactlyOnce(t *testing.T) {
	eng, store, sink, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 6, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)

	// Someone queues for the sold-out pool.
	entry, already, err := eng.JoinWaitlist(ctx, pool.ID, 200, 4, false)
	require.NoError(t, err)
	assert.False(t, already)

	canceled, err := eng.CancelReservation(ctx, res.ID, 100, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledReason)
	assert.Equal(t, "plans changed", *canceled.CanceledReason)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(6), p.AvailableCapacity)
	assert.Equal(t, uint32(0), p.ReservedCapacity)

	// The freed capacity notified the waiting party.
	slots := sink.slotEvents()
	require.Len(t, slots, 1)
	assert.Equal(t, entry.ID, slots[0].EntryID)

	// A second cancel finds the row already canceled and must not
	// release again.
	_, err = eng.CancelReservation(ctx, res.ID, 100, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	p = requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(6), p.AvailableCapacity)
}

func TestCancel_WrongOwner(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})
	hold, err := eng.CreateHold(ctx, pool.ID, 100, 2, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)

	_, err = eng.CancelReservation(ctx, res.ID, 999, "not mine")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckIn_Idempotent(t *testing.T) {
	eng, _, _, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})
	hold, err := eng.CreateHold(ctx, pool.ID, 100, 2, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)

	first, err := eng.CheckIn(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCheckedIn, first.Status)
	require.NotNil(t, first.CheckedInAt)

	// A later double scan returns the original record unchanged.
	clk.Advance(5 * time.Minute)
	second, err := eng.CheckIn(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CheckedInAt, second.CheckedInAt)

	// Completed reservations cannot be scanned back in.
	_, err = eng.CompleteReservation(ctx, res.ID)
	require.NoError(t, err)
	_, err = eng.CheckIn(ctx, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckIn_RequiresConfirmed(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, AllowsReservations: true, RequiresApproval: true,
	})
	res, err := eng.RequestReservation(ctx, pool.ID, 100, 2, "")
	require.NoError(t, err)

	_, err = eng.CheckIn(ctx, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApprovalFlow(t *testing.T) {
	eng, store, sink, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6,
		AllowsReservations: true, RequiresApproval: true,
	})

	res, err := eng.RequestReservation(ctx, pool.ID, 100, 4, "birthday")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)

	// Filing the request claims nothing.
	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(6), p.AvailableCapacity)

	approved, payload, err := eng.ApproveReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, approved.Status)
	assert.NotNil(t, approved.QRTicket)
	assert.Equal(t, res.ID, payload.ReservationID)

	p = requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(2), p.AvailableCapacity)
	assert.Equal(t, uint32(4), p.ReservedCapacity)
	assert.Len(t, sink.confirmedEvents(), 1)

	// Approving twice is rejected.
	_, _, err = eng.ApproveReservation(ctx, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApprove_InsufficientCapacityKeepsRequestPending(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6,
		AllowsReservations: true, RequiresApproval: true,
	})

	res, err := eng.RequestReservation(ctx, pool.ID, 100, 5, "")
	require.NoError(t, err)

	// Walk-up holds ate the capacity between request and review.
	_, err = eng.CreateHold(ctx, pool.ID, 200, 4, false)
	require.NoError(t, err)

	_, _, err = eng.ApproveReservation(ctx, res.ID)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	got, err := store.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, got.Status)
	requireLedger(t, store, pool.ID)
}

func TestDeclineReservation(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, AllowsReservations: true, RequiresApproval: true,
	})
	res, err := eng.RequestReservation(ctx, pool.ID, 100, 4, "")
	require.NoError(t, err)

	declined, err := eng.DeclineReservation(ctx, res.ID, "fully committed")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCanceled, declined.Status)

	// Nothing was claimed, nothing moves.
	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(6), p.AvailableCapacity)

	_, err = eng.DeclineReservation(ctx, res.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWaitlist_FIFOAndDedupe(t *testing.T) {
	eng, _, _, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 4, MaxGroupSize: 4, AllowsReservations: true,
	})

	var entries []*model.WaitlistEntry
	for owner := uint64(201); owner <= 203; owner++ {
		e, already, err := eng.JoinWaitlist(ctx, pool.ID, owner, 2, false)
		require.NoError(t, err)
		assert.False(t, already)
		entries = append(entries, e)
		clk.Advance(time.Second)
	}

	for i, e := range entries {
		pos, err := eng.WaitlistPosition(ctx, e.ID, e.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}

	// Rejoining returns the existing entry and keeps the place in line.
	dup, already, err := eng.JoinWaitlist(ctx, pool.ID, 201, 3, false)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, entries[0].ID, dup.ID)

	// Position checks are owner-scoped.
	_, err = eng.WaitlistPosition(ctx, entries[0].ID, 999)
	assert.ErrorIs(t, err, ErrForbidden)

	// Leaving moves everyone behind up one.
	gone, err := eng.LeaveWaitlist(ctx, entries[0].ID, 201)
	require.NoError(t, err)
	assert.True(t, gone)
	pos, err := eng.WaitlistPosition(ctx, entries[1].ID, 202)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestWaitlist_NotifySkipsPartiesThatDoNotFit(t *testing.T) {
	eng, store, sink, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)

	// Pin the remaining two seats so only the canceled four come back.
	_, err = eng.CreateHold(ctx, pool.ID, 300, 2, false)
	require.NoError(t, err)
	big, _, err := eng.JoinWaitlist(ctx, pool.ID, 201, 5, false)
	require.NoError(t, err)
	small, _, err := eng.JoinWaitlist(ctx, pool.ID, 202, 2, false)
	require.NoError(t, err)

	_, err = eng.CancelReservation(ctx, res.ID, 100, "")
	require.NoError(t, err)

	// Four seats free: the five-seat party at the head does not fit, so
	// the two-seat party behind it is notified instead.
	slots := sink.slotEvents()
	require.Len(t, slots, 1)
	assert.Equal(t, small.ID, slots[0].EntryID)

	gotBig, err := store.GetEntry(ctx, big.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistWaiting, gotBig.Status)
}

func TestWaitlist_NotificationWindowExpires(t *testing.T) {
	eng, store, sink, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 4, MaxGroupSize: 4, AllowsReservations: true,
	})

	hold, err := eng.CreateHold(ctx, pool.ID, 100, 4, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)

	first, _, err := eng.JoinWaitlist(ctx, pool.ID, 201, 2, false)
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, _, err := eng.JoinWaitlist(ctx, pool.ID, 202, 2, false)
	require.NoError(t, err)

	_, err = eng.CancelReservation(ctx, res.ID, 100, "")
	require.NoError(t, err)
	slots := sink.slotEvents()
	require.Len(t, slots, 1)
	assert.Equal(t, first.ID, slots[0].EntryID)

	// The notified party never claims.  Past the window the next
	// release moves on to the second party.
	clk.Advance(NotifyWindow + time.Second)
	hold2, err := eng.CreateHold(ctx, pool.ID, 300, 2, false)
	require.NoError(t, err)
	require.NoError(t, eng.ReleaseHold(ctx, hold2.ID, 300))

	slots = sink.slotEvents()
	require.Len(t, slots, 2)
	assert.Equal(t, second.ID, slots[1].EntryID)

	got, err := store.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistExpired, got.Status)
}

func TestVerifyTicket(t *testing.T) {
	eng, _, _, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})
	hold, err := eng.CreateHold(ctx, pool.ID, 100, 2, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)
	blob := *res.QRTicket

	result, err := eng.VerifyTicket(ctx, blob)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, res.ID, result.ReservationID)
	assert.False(t, result.CheckedIn)

	// After check-in the ticket still verifies and reports it.
	_, err = eng.CheckIn(ctx, res.ID)
	require.NoError(t, err)
	result, err = eng.VerifyTicket(ctx, blob)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.CheckedIn)

	// Garbage and tampered payloads are invalid, not errors.
	result, err = eng.VerifyTicket(ctx, "not a ticket")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalidTicket, result.Reason)

	payload, err := ticket.Decode(blob)
	require.NoError(t, err)
	payload.OwnerID = 999
	tampered, err := ticket.Encode(payload)
	require.NoError(t, err)
	result, err = eng.VerifyTicket(ctx, tampered)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalidTicket, result.Reason)

	// Expiry beats everything else: two hours after kick-off the ticket
	// reads as expired even though it still verifies structurally.
	clk.Advance(12 * time.Hour)
	result, err = eng.VerifyTicket(ctx, blob)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonTicketExpired, result.Reason)
}

func TestVerifyTicket_CanceledReservation(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 6, MaxGroupSize: 6, AllowsReservations: true,
	})
	hold, err := eng.CreateHold(ctx, pool.ID, 100, 2, false)
	require.NoError(t, err)
	res, _, err := eng.ConfirmHold(ctx, hold.ID, 100, "")
	require.NoError(t, err)
	blob := *res.QRTicket

	_, err = eng.CancelReservation(ctx, res.ID, 100, "")
	require.NoError(t, err)

	// Well signed, but the row behind it no longer admits anyone.
	result, err := eng.VerifyTicket(ctx, blob)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInvalidTicket, result.Reason)
}

// TestFullEvening walks the whole flow for one pool: two parties hold,
// one confirms, a third is turned away onto the waitlist, the idle hold
// lapses and the waiting party gets its slot.
func TestFullEvening(t *testing.T) {
	eng, store, sink, clk := newTestEngine(t)
	ctx := context.Background()
	pool := newPool(t, eng, PoolParams{
		VenueID: 1, EventID: 1,
		TotalCapacity: 10, MaxGroupSize: 6, AllowsReservations: true,
	})

	// Party A holds four seats, party B holds six and confirms.
	_, err := eng.CreateHold(ctx, pool.ID, 1, 4, false)
	require.NoError(t, err)
	holdB, err := eng.CreateHold(ctx, pool.ID, 2, 6, false)
	require.NoError(t, err)
	_, _, err = eng.ConfirmHold(ctx, holdB.ID, 2, "")
	require.NoError(t, err)

	// Party C finds nothing left and queues.
	av, err := eng.CheckAvailability(ctx, pool.ID, 2)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, ReasonInsufficient, av.Reason)

	entryC, already, err := eng.JoinWaitlist(ctx, pool.ID, 3, 2, false)
	require.NoError(t, err)
	assert.False(t, already)
	pos, err := eng.WaitlistPosition(ctx, entryC.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// Party A never confirms.  The next availability read sweeps the
	// lapsed hold and party C is notified.
	clk.Advance(HoldTTL + time.Minute)
	av, err = eng.CheckAvailability(ctx, pool.ID, 2)
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, uint32(4), av.AvailableCapacity)

	slots := sink.slotEvents()
	require.Len(t, slots, 1)
	assert.Equal(t, entryC.ID, slots[0].EntryID)

	// C claims within the window; the entry converts.
	holdC, err := eng.CreateHold(ctx, pool.ID, 3, 2, false)
	require.NoError(t, err)
	gotC, err := store.GetEntry(ctx, entryC.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistConverted, gotC.Status)

	_, _, err = eng.ConfirmHold(ctx, holdC.ID, 3, "")
	require.NoError(t, err)

	p := requireLedger(t, store, pool.ID)
	assert.Equal(t, uint32(2), p.AvailableCapacity)
	assert.Equal(t, uint32(8), p.ReservedCapacity)
	assert.Equal(t, uint32(0), p.HeldCapacity)
}
