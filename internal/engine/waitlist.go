package engine

import (
	"context"
	"errors"

	"github.com/matiasvr/matchday-reservation/internal/model"
)

// JoinWaitlist queues a party for capacity that was unavailable.  A
// second join for the same (owner, pool) pair returns the existing
// active entry instead of creating a new one, so rejoining never resets
// a party's place in line.  The second return value reports whether the
// caller was already queued.
func (e *Engine) JoinWaitlist(ctx context.Context, poolID, ownerID uint64, partySize uint32, requiresAccessibility bool) (*model.WaitlistEntry, bool, error) {
	pool, err := e.pools.GetPool(ctx, poolID)
	if err != nil {
		return nil, false, err
	}
	if partySize == 0 || partySize > pool.MaxGroupSize {
		return nil, false, ErrPartySizeExceedsLimit
	}
	existing, err := e.waitlist.FindActiveEntry(ctx, ownerID, poolID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	entry := &model.WaitlistEntry{
		OwnerID:               ownerID,
		PoolID:                poolID,
		PartySize:             partySize,
		RequiresAccessibility: requiresAccessibility,
		Status:                model.WaitlistWaiting,
		CreatedAt:             e.now().UTC(),
	}
	if err := e.waitlist.CreateEntry(ctx, entry); err != nil {
		return nil, false, err
	}
	return entry, false, nil
}

// WaitlistPosition returns the 1-based position of an entry owned by
// the caller: the count of waiting entries for the same pool created
// earlier, plus one.  Strict FIFO by creation time is the sole ordering
// contract.
func (e *Engine) WaitlistPosition(ctx context.Context, entryID, ownerID uint64) (int, error) {
	entry, err := e.waitlist.GetEntry(ctx, entryID)
	if err != nil {
		return 0, err
	}
	if entry.OwnerID != ownerID {
		return 0, ErrForbidden
	}
	ahead, err := e.waitlist.CountWaitingAhead(ctx, entry)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// LeaveWaitlist removes an active entry owned by the caller.  It
// reports false when the entry was already gone or never belonged to
// the caller.
func (e *Engine) LeaveWaitlist(ctx context.Context, entryID, ownerID uint64) (bool, error) {
	return e.waitlist.DeleteEntry(ctx, entryID, ownerID)
}
