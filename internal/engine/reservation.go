package engine

import (
	"context"
	"errors"

	"github.com/matiasvr/matchday-reservation/internal/model"
	"github.com/matiasvr/matchday-reservation/internal/ticket"
)

// GetReservation returns a reservation owned by the caller.
func (e *Engine) GetReservation(ctx context.Context, reservationID, ownerID uint64) (*model.Reservation, error) {
	res, err := e.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return res, nil
}

// ListReservations returns every reservation owned by the caller,
// newest first.
func (e *Engine) ListReservations(ctx context.Context, ownerID uint64) ([]model.Reservation, error) {
	return e.reservations.ListReservationsByOwner(ctx, ownerID)
}

// RequestReservation files a pending reservation at a request-to-book
// venue.  No capacity is claimed: the claim happens at approval time so
// requests that are never approved cannot pin capacity.
func (e *Engine) RequestReservation(ctx context.Context, poolID, ownerID uint64, partySize uint32, specialRequests string) (*model.Reservation, error) {
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
	res := &model.Reservation{
		OwnerID:   ownerID,
		PoolID:    poolID,
		PartySize: partySize,
		Status:    model.ReservationPending,
		CreatedAt: e.now().UTC(),
	}
	if specialRequests != "" {
		res.SpecialRequests = &specialRequests
	}
	if err := e.reservations.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ApproveReservation is the operator approval for a pending request.
// Approval claims capacity (available -> reserved in one atomic step)
// and fails with ErrInsufficientCapacity when the pool can no longer
// seat the party.  On success the reservation is confirmed and receives
// its signed ticket.
func (e *Engine) ApproveReservation(ctx context.Context, reservationID uint64) (*model.Reservation, ticket.Payload, error) {
	res, err := e.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, ticket.Payload{}, err
	}
	if res.Status != model.ReservationPending {
		return nil, ticket.Payload{}, ErrInvalidTransition
	}
	pool, err := e.pools.GetPool(ctx, res.PoolID)
	if err != nil {
		return nil, ticket.Payload{}, err
	}
	if err := e.pools.ClaimReserved(ctx, res.PoolID, res.PartySize); err != nil {
		return nil, ticket.Payload{}, err
	}
	if err := e.reservations.MarkConfirmed(ctx, res.ID); err != nil {
		// The request was canceled or approved concurrently; hand the
		// claim back.
		e.compensateReserved(ctx, res.PoolID, res.PartySize)
		return nil, ticket.Payload{}, err
	}
	res.Status = model.ReservationConfirmed
	payload, err := e.issueTicket(ctx, res, pool)
	if err != nil {
		return nil, ticket.Payload{}, err
	}
	e.publishConfirmed(ctx, res, pool)
	return res, payload, nil
}

// DeclineReservation is the operator rejection of a pending request.
// Nothing was ever claimed, so nothing is released.
func (e *Engine) DeclineReservation(ctx context.Context, reservationID uint64, reason string) (*model.Reservation, error) {
	res, err := e.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != model.ReservationPending {
		return nil, ErrInvalidTransition
	}
	at := e.now().UTC()
	if err := e.reservations.MarkCanceled(ctx, res.ID, model.ReservationPending, reason, at); err != nil {
		return nil, err
	}
	res.Status = model.ReservationCanceled
	res.CanceledAt = &at
	res.CanceledReason = &reason
	return res, nil
}

// CancelReservation cancels a pending or confirmed reservation owned by
// the caller.  A confirmed reservation's ledger claim is released
// exactly once: the release is gated on the conditional
// confirmed -> canceled transition, so a concurrent double cancel
// cannot return the same units twice.
func (e *Engine) CancelReservation(ctx context.Context, reservationID, ownerID uint64, reason string) (*model.Reservation, error) {
	res, err := e.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if res.Status != model.ReservationPending && res.Status != model.ReservationConfirmed {
		return nil, ErrInvalidTransition
	}
	at := e.now().UTC()
	if err := e.reservations.MarkCanceled(ctx, res.ID, res.Status, reason, at); err != nil {
		return nil, err
	}
	if res.Status == model.ReservationConfirmed {
		if err := e.pools.ReleaseReserved(ctx, res.PoolID, res.PartySize); err == nil {
			e.notifyNextWaiting(ctx, res.PoolID)
		}
	}
	res.Status = model.ReservationCanceled
	res.CanceledAt = &at
	res.CanceledReason = &reason
	return res, nil
}

// CheckIn transitions a confirmed reservation to checked_in.  Re-checking
// an already checked-in reservation is not an error: the existing record,
// original timestamp included, is returned unchanged so double scans at
// the door stay harmless.
func (e *Engine) CheckIn(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	at := e.now().UTC()
	err := e.reservations.MarkCheckedIn(ctx, reservationID, at)
	if err == nil {
		return e.reservations.GetReservation(ctx, reservationID)
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}
	res, getErr := e.reservations.GetReservation(ctx, reservationID)
	if getErr != nil {
		return nil, getErr
	}
	if res.Status == model.ReservationCheckedIn {
		return res, nil
	}
	return nil, ErrInvalidTransition
}

// CompleteReservation closes out a checked-in party after the event.
func (e *Engine) CompleteReservation(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	if err := e.reservations.MarkCompleted(ctx, reservationID); err != nil {
		return nil, err
	}
	return e.reservations.GetReservation(ctx, reservationID)
}

// VerificationResult is the answer to scanning a ticket.  Reason is one
// of the codes below when Valid is false.
type VerificationResult struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
	CheckedIn     bool   `json:"checked_in"`
}

// Verification failure reasons.
const (
	ReasonTicketExpired = "ticket_expired"
	ReasonInvalidTicket = "invalid_ticket"
)

// VerifyTicket validates raw scanned content.  Expiry is checked before
// the signature, and the payload is cross-checked against the
// reservation row it claims to belong to: a well-signed ticket for a
// canceled reservation is invalid.  Only storage failures return an
// error; every verification outcome is expressed in the result.
func (e *Engine) VerifyTicket(ctx context.Context, raw string) (VerificationResult, error) {
	payload, err := ticket.Decode(raw)
	if err != nil {
		return VerificationResult{Reason: ReasonInvalidTicket}, nil
	}
	if err := e.signer.Verify(payload); err != nil {
		if errors.Is(err, ticket.ErrExpired) {
			return VerificationResult{Reason: ReasonTicketExpired, ReservationID: payload.ReservationID}, nil
		}
		return VerificationResult{Reason: ReasonInvalidTicket}, nil
	}
	res, err := e.reservations.GetReservation(ctx, payload.ReservationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return VerificationResult{Reason: ReasonInvalidTicket}, nil
		}
		return VerificationResult{}, err
	}
	var tableID uint64
	if res.TableID != nil {
		tableID = *res.TableID
	}
	if res.OwnerID != payload.OwnerID || res.PoolID != payload.PoolID || tableID != payload.TableID {
		return VerificationResult{Reason: ReasonInvalidTicket}, nil
	}
	if res.Status != model.ReservationConfirmed && res.Status != model.ReservationCheckedIn {
		return VerificationResult{Reason: ReasonInvalidTicket, ReservationID: res.ID}, nil
	}
	return VerificationResult{
		Valid:         true,
		ReservationID: res.ID,
		CheckedIn:     res.Status == model.ReservationCheckedIn,
	}, nil
}
