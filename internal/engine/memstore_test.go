package engine

// In-memory store used by the engine tests.  It implements every store
// contract with a single mutex, which satisfies the atomicity the
// interfaces require for a single process; the MySQL repositories cover
// the same contracts with conditional UPDATE guards.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/queue"
)

type memStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID uint64

	pools        map[uint64]*model.Pool
	tables       []*model.Table
	holds        map[uint64]*model.Hold
	reservations map[uint64]*model.Reservation
	waitlist     map[uint64]*model.WaitlistEntry
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:          now,
		pools:        make(map[uint64]*model.Pool),
		holds:        make(map[uint64]*model.Hold),
		reservations: make(map[uint64]*model.Reservation),
		waitlist:     make(map[uint64]*model.WaitlistEntry),
	}
}

func (s *memStore) id() uint64 {
	s.nextID++
	return s.nextID
}

// ---- PoolStore ----

func (s *memStore) GetPool(ctx context.Context, poolID uint64) (*model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) CreatePool(ctx context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *memStore) ClaimReserved(ctx context.Context, poolID uint64, partySize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok || p.AvailableCapacity < partySize {
		return ErrInsufficientCapacity
	}
	p.AvailableCapacity -= partySize
	p.ReservedCapacity += partySize
	return nil
}

func (s *memStore) ReleaseReserved(ctx context.Context, poolID uint64, partySize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok || p.ReservedCapacity < partySize {
		return ErrInsufficientCapacity
	}
	p.ReservedCapacity -= partySize
	p.AvailableCapacity += partySize
	return nil
}

// ---- HoldStore ----

func (s *memStore) addTable(t model.Table) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.tables = append(s.tables, &t)
	return t.ID
}

func (s *memStore) CreateHold(ctx context.Context, hold *model.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertHoldLocked(hold)
}

func (s *memStore) insertHoldLocked(hold *model.Hold) error {
	p, ok := s.pools[hold.PoolID]
	if !ok || !p.AllowsReservations || p.AvailableCapacity < hold.PartySize {
		return ErrInsufficientCapacity
	}
	p.AvailableCapacity -= hold.PartySize
	p.HeldCapacity += hold.PartySize
	hold.ID = s.id()
	cp := *hold
	s.holds[hold.ID] = &cp
	return nil
}

func (s *memStore) CreateTableHold(ctx context.Context, venueID uint64, hold *model.Hold, requiresAccessible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := make(map[uint64]bool)
	now := s.now().UTC()
	for _, h := range s.holds {
		if h.TableID != nil && h.ExpiresAt.After(now) {
			busy[*h.TableID] = true
		}
	}
	for _, r := range s.reservations {
		if r.TableID != nil && (r.Status == model.ReservationConfirmed || r.Status == model.ReservationCheckedIn) {
			busy[*r.TableID] = true
		}
	}

	var best *model.Table
	for _, t := range s.tables {
		if t.VenueID != venueID || !t.IsActive || busy[t.ID] {
			continue
		}
		if t.Capacity < hold.PartySize {
			continue
		}
		if requiresAccessible && !t.IsAccessible {
			continue
		}
		if best == nil || t.Capacity < best.Capacity || (t.Capacity == best.Capacity && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return ErrInsufficientCapacity
	}
	tableID := best.ID
	hold.TableID = &tableID
	return s.insertHoldLocked(hold)
}

func (s *memStore) takeHoldLocked(holdID, ownerID uint64) (*model.Hold, error) {
	h, ok := s.holds[holdID]
	if !ok || h.Expired(s.now().UTC()) {
		return nil, ErrNotFound
	}
	if h.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	delete(s.holds, holdID)
	cp := *h
	return &cp, nil
}

func (s *memStore) ConsumeHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.takeHoldLocked(holdID, ownerID)
	if err != nil {
		return nil, err
	}
	p := s.pools[h.PoolID]
	p.HeldCapacity -= h.PartySize
	p.ReservedCapacity += h.PartySize
	return h, nil
}

func (s *memStore) ReleaseHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.takeHoldLocked(holdID, ownerID)
	if err != nil {
		return nil, err
	}
	p := s.pools[h.PoolID]
	p.HeldCapacity -= h.PartySize
	p.AvailableCapacity += h.PartySize
	return h, nil
}

func (s *memStore) SweepExpired(ctx context.Context) ([]model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	var released []model.Hold
	for id, h := range s.holds {
		if !h.Expired(now) {
			continue
		}
		p := s.pools[h.PoolID]
		p.HeldCapacity -= h.PartySize
		p.AvailableCapacity += h.PartySize
		released = append(released, *h)
		delete(s.holds, id)
	}
	sort.Slice(released, func(i, j int) bool { return released[i].ID < released[j].ID })
	return released, nil
}

// ---- ReservationStore ----

func (s *memStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *memStore) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListReservationsByOwner(ctx context.Context, ownerID uint64) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, r := range s.reservations {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) AttachTicket(ctx context.Context, id uint64, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.QRTicket = &blob
	return nil
}

func (s *memStore) transitionLocked(id uint64, from string, apply func(*model.Reservation)) error {
	r, ok := s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from {
		return ErrInvalidTransition
	}
	apply(r)
	return nil
}

func (s *memStore) MarkConfirmed(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, model.ReservationPending, func(r *model.Reservation) {
		r.Status = model.ReservationConfirmed
	})
}

func (s *memStore) MarkCanceled(ctx context.Context, id uint64, fromStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, fromStatus, func(r *model.Reservation) {
		r.Status = model.ReservationCanceled
		r.CanceledAt = &at
		r.CanceledReason = &reason
	})
}

func (s *memStore) MarkCheckedIn(ctx context.Context, id uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, model.ReservationConfirmed, func(r *model.Reservation) {
		r.Status = model.ReservationCheckedIn
		r.CheckedInAt = &at
	})
}

func (s *memStore) MarkCompleted(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, model.ReservationCheckedIn, func(r *model.Reservation) {
		r.Status = model.ReservationCompleted
	})
}

// ---- WaitlistStore ----

func waitlistActive(status string) bool {
	return status == model.WaitlistWaiting || status == model.WaitlistNotified
}

func (s *memStore) CreateEntry(ctx context.Context, e *model.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	cp := *e
	s.waitlist[e.ID] = &cp
	return nil
}

func (s *memStore) GetEntry(ctx context.Context, id uint64) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) FindActiveEntry(ctx context.Context, ownerID, poolID uint64) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.waitlist {
		if e.OwnerID == ownerID && e.PoolID == poolID && waitlistActive(e.Status) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) CountWaitingAhead(ctx context.Context, entry *model.WaitlistEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.waitlist {
		if e.PoolID != entry.PoolID || e.Status != model.WaitlistWaiting {
			continue
		}
		if e.CreatedAt.Before(entry.CreatedAt) || (e.CreatedAt.Equal(entry.CreatedAt) && e.ID < entry.ID) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteEntry(ctx context.Context, id, ownerID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok || e.OwnerID != ownerID || !waitlistActive(e.Status) {
		return false, nil
	}
	delete(s.waitlist, id)
	return true, nil
}

func (s *memStore) FirstWaitingFit(ctx context.Context, poolID uint64, capacity uint32) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.WaitlistEntry
	for _, e := range s.waitlist {
		if e.PoolID != poolID || e.Status != model.WaitlistWaiting || e.PartySize > capacity {
			continue
		}
		if best == nil || e.CreatedAt.Before(best.CreatedAt) || (e.CreatedAt.Equal(best.CreatedAt) && e.ID < best.ID) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *memStore) MarkNotified(ctx context.Context, id uint64, notifiedAt, windowEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok || e.Status != model.WaitlistWaiting {
		return ErrNotFound
	}
	e.Status = model.WaitlistNotified
	e.NotifiedAt = &notifiedAt
	e.NotificationExpiresAt = &windowEnd
	return nil
}

func (s *memStore) ExpireNotifications(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.waitlist {
		if e.Status == model.WaitlistNotified && e.NotificationExpiresAt != nil && !e.NotificationExpiresAt.After(now) {
			e.Status = model.WaitlistExpired
		}
	}
	return nil
}

func (s *memStore) MarkConverted(ctx context.Context, ownerID, poolID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.waitlist {
		if e.OwnerID == ownerID && e.PoolID == poolID && waitlistActive(e.Status) {
			e.Status = model.WaitlistConverted
			return nil
		}
	}
	return ErrNotFound
}

// captureSink records emitted notification intents for assertions.
type captureSink struct {
	mu        sync.Mutex
	confirmed []queue.ReservationConfirmedEvent
	slots     []queue.WaitlistSlotAvailableEvent
}

func (c *captureSink) ReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = append(c.confirmed, ev)
	return nil
}

func (c *captureSink) WaitlistSlotAvailable(ctx context.Context, ev queue.WaitlistSlotAvailableEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = append(c.slots, ev)
	return nil
}

func (c *captureSink) slotEvents() []queue.WaitlistSlotAvailableEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.WaitlistSlotAvailableEvent(nil), c.slots...)
}

func (c *captureSink) confirmedEvents() []queue.ReservationConfirmedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]queue.ReservationConfirmedEvent(nil), c.confirmed...)
}
