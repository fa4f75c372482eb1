package engine

import (
	"context"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/queue"
	"github.com/matiasvr/matchday-reservation/internal/ticket"
)

// CreateHold claims capacity for a party for fifteen minutes.  For
// table-scoped pools the best-fitting free table is selected and pinned
// in the same atomic step, so two concurrent callers can never end up
// on the same table.  requiresAccessible only matters for table-scoped
// pools.
//
// Capacity shortfalls return ErrInsufficientCapacity; oversized parties
// return ErrPartySizeExceedsLimit; venues not taking reservations
// return ErrReservationsClosed.
func (e *Engine) CreateHold(ctx context.Context, poolID, ownerID uint64, partySize uint32, requiresAccessible bool) (*model.Hold, error) {
	// Sweep first so a pool full of lapsed holds does not reject a
	// party it could seat.
	if err := e.ReleaseExpiredHolds(ctx); err != nil {
		return nil, err
	}
	pool, err := e.pools.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !pool.AllowsReservations {
		return nil, ErrReservationsClosed
	}
	if partySize == 0 || partySize > pool.MaxGroupSize {
		return nil, ErrPartySizeExceedsLimit
	}
	token, err := randomToken(16)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	hold := &model.Hold{
		OwnerID:   ownerID,
		PoolID:    poolID,
		PartySize: partySize,
		HoldToken: token,
		CreatedAt: now,
		ExpiresAt: now.Add(HoldTTL),
	}
	if pool.TableScoped {
		err = e.holds.CreateTableHold(ctx, pool.VenueID, hold, requiresAccessible)
	} else {
		err = e.holds.CreateHold(ctx, hold)
	}
	if err != nil {
		return nil, err
	}
	// The owner claimed capacity; close out any waitlist entry they had
	// on this pool.  Best effort only.
	_ = e.waitlist.MarkConverted(ctx, ownerID, poolID)
	return hold, nil
}

// ReleaseHold abandons a hold before confirmation.  The release is
// synchronous: once it returns, the hold no longer exists and its
// capacity is back in the pool, so the waitlist is consulted
// immediately.
func (e *Engine) ReleaseHold(ctx context.Context, holdID, ownerID uint64) error {
	hold, err := e.holds.ReleaseHold(ctx, holdID, ownerID)
	if err != nil {
		return err
	}
	e.notifyNextWaiting(ctx, hold.PoolID)
	return nil
}

// ConfirmHold converts a live hold into a confirmed reservation with a
// signed check-in ticket.  Expired holds behave exactly like
// nonexistent ones.  The hold's capacity moves held -> reserved in the
// same atomic step that deletes the hold; if the reservation row then
// cannot be written, the claim is compensated back to available rather
// than left reserved forever.
func (e *Engine) ConfirmHold(ctx context.Context, holdID, ownerID uint64, specialRequests string) (*model.Reservation, ticket.Payload, error) {
	if err := e.ReleaseExpiredHolds(ctx); err != nil {
		return nil, ticket.Payload{}, err
	}
	hold, err := e.holds.ConsumeHold(ctx, holdID, ownerID)
	if err != nil {
		return nil, ticket.Payload{}, err
	}
	pool, err := e.pools.GetPool(ctx, hold.PoolID)
	if err != nil {
		e.compensateReserved(ctx, hold.PoolID, hold.PartySize)
		return nil, ticket.Payload{}, err
	}
	res := &model.Reservation{
		OwnerID:   ownerID,
		PoolID:    hold.PoolID,
		TableID:   hold.TableID,
		PartySize: hold.PartySize,
		Status:    model.ReservationConfirmed,
		CreatedAt: e.now().UTC(),
	}
	if specialRequests != "" {
		res.SpecialRequests = &specialRequests
	}
	if err := e.reservations.CreateReservation(ctx, res); err != nil {
		e.compensateReserved(ctx, hold.PoolID, hold.PartySize)
		return nil, ticket.Payload{}, err
	}
	payload, err := e.issueTicket(ctx, res, pool)
	if err != nil {
		return nil, ticket.Payload{}, err
	}
	e.publishConfirmed(ctx, res, pool)
	return res, payload, nil
}

// issueTicket signs a payload for the reservation and persists it on
// the row.  Shared by the confirm and approval paths.
func (e *Engine) issueTicket(ctx context.Context, res *model.Reservation, pool *model.Pool) (ticket.Payload, error) {
	var tableID uint64
	if res.TableID != nil {
		tableID = *res.TableID
	}
	payload := e.signer.Sign(res.ID, res.OwnerID, res.PoolID, tableID, pool.EventStartsAt)
	blob, err := ticket.Encode(payload)
	if err != nil {
		return ticket.Payload{}, err
	}
	if err := e.reservations.AttachTicket(ctx, res.ID, blob); err != nil {
		return ticket.Payload{}, err
	}
	res.QRTicket = &blob
	return payload, nil
}

// compensateReserved rolls a failed post-claim write back to available.
// If the compensation itself fails the units stay reserved and only an
// operator cancel can free them; the error is deliberately not
// propagated since the caller already has the original failure.
func (e *Engine) compensateReserved(ctx context.Context, poolID uint64, partySize uint32) {
	if err := e.pools.ReleaseReserved(ctx, poolID, partySize); err == nil {
		e.notifyNextWaiting(ctx, poolID)
	}
}

func (e *Engine) publishConfirmed(ctx context.Context, res *model.Reservation, pool *model.Pool) {
	if e.events == nil {
		return
	}
	_ = e.events.ReservationConfirmed(ctx, queue.ReservationConfirmedEvent{
		ReservationID: res.ID,
		OwnerID:       res.OwnerID,
		PoolID:        pool.ID,
		VenueID:       pool.VenueID,
		EventID:       pool.EventID,
		TableID:       res.TableID,
		PartySize:     res.PartySize,
		EventStartsAt: pool.EventStartsAt.Format(time.RFC3339),
		ConfirmedAt:   e.now().UTC().Format(time.RFC3339),
	})
}
