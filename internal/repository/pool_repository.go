// Package repository implements the engine's storage contracts on
// MySQL.  Every counter movement is a conditional UPDATE whose WHERE
// clause re-checks the precondition, so concurrency control lives in
// the database rather than in process memory and survives horizontal
// scaling.  All timestamps are UTC; comparisons use UTC_TIMESTAMP().
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/model"
)

// PoolRepo provides data access to the capacity_pools ledger.  The
// exported methods satisfy engine.PoolStore; the *Tx helpers are used
// by HoldRepo to move counters inside the same transaction that
// mutates the guarding hold row.
type PoolRepo struct {
	db *sql.DB
}

// NewPoolRepo returns a PoolRepo bound to the provided database.
func NewPoolRepo(db *sql.DB) *PoolRepo { return &PoolRepo{db: db} }

// DB exposes the underlying handle so collaborating repositories can
// open transactions spanning pools and holds.
func (r *PoolRepo) DB() *sql.DB { return r.db }

const poolColumns = `id, venue_id, event_id, event_starts_at, total_capacity,
	available_capacity, held_capacity, reserved_capacity, blocked_capacity,
	max_group_size, allows_reservations, requires_approval, table_scoped,
	created_at, updated_at`

func scanPool(row *sql.Row) (*model.Pool, error) {
	var p model.Pool
	err := row.Scan(&p.ID, &p.VenueID, &p.EventID, &p.EventStartsAt, &p.TotalCapacity,
		&p.AvailableCapacity, &p.HeldCapacity, &p.ReservedCapacity, &p.BlockedCapacity,
		&p.MaxGroupSize, &p.AllowsReservations, &p.RequiresApproval, &p.TableScoped,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPool loads one ledger row.
func (r *PoolRepo) GetPool(ctx context.Context, poolID uint64) (*model.Pool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM capacity_pools WHERE id = ?`, poolID)
	return scanPool(row)
}

// CreatePool inserts a new ledger row and fills in the assigned ID.
func (r *PoolRepo) CreatePool(ctx context.Context, p *model.Pool) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO capacity_pools
		 (venue_id, event_id, event_starts_at, total_capacity, available_capacity,
		  held_capacity, reserved_capacity, blocked_capacity, max_group_size,
		  allows_reservations, requires_approval, table_scoped)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?)`,
		p.VenueID, p.EventID, p.EventStartsAt.UTC(), p.TotalCapacity,
		p.AvailableCapacity, p.BlockedCapacity, p.MaxGroupSize,
		p.AllowsReservations, p.RequiresApproval, p.TableScoped)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ClaimReserved atomically moves partySize units available -> reserved.
// Used by the approval path, which never had a hold.  The WHERE clause
// is the capacity check; zero rows affected means another caller got
// there first.
func (r *PoolRepo) ClaimReserved(ctx context.Context, poolID uint64, partySize uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE capacity_pools
		 SET available_capacity = available_capacity - ?,
		     reserved_capacity = reserved_capacity + ?,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND allows_reservations = 1 AND available_capacity >= ?`,
		partySize, partySize, poolID, partySize)
	if err != nil {
		return err
	}
	return requireClaim(res)
}

// ReleaseReserved moves partySize units reserved -> available.  Callers
// gate this on a conditional reservation status change so it can never
// run twice for the same claim; the reserved >= guard is the backstop
// that keeps the ledger consistent even if they get that wrong.
func (r *PoolRepo) ReleaseReserved(ctx context.Context, poolID uint64, partySize uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE capacity_pools
		 SET reserved_capacity = reserved_capacity - ?,
		     available_capacity = available_capacity + ?,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND reserved_capacity >= ?`,
		partySize, partySize, poolID, partySize)
	if err != nil {
		return err
	}
	return requireClaim(res)
}

// ReserveHeldTx moves partySize units available -> held within the
// caller's transaction.  Zero rows affected means the pool cannot cover
// the party or is not taking reservations.
func (r *PoolRepo) ReserveHeldTx(ctx context.Context, tx *sql.Tx, poolID uint64, partySize uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE capacity_pools
		 SET available_capacity = available_capacity - ?,
		     held_capacity = held_capacity + ?,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND allows_reservations = 1 AND available_capacity >= ?`,
		partySize, partySize, poolID, partySize)
	if err != nil {
		return err
	}
	return requireClaim(res)
}

// CommitHeldToReservedTx moves partySize units held -> reserved within
// the caller's transaction, when a hold is consumed into a reservation.
func (r *PoolRepo) CommitHeldToReservedTx(ctx context.Context, tx *sql.Tx, poolID uint64, partySize uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE capacity_pools
		 SET held_capacity = held_capacity - ?,
		     reserved_capacity = reserved_capacity + ?,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND held_capacity >= ?`,
		partySize, partySize, poolID, partySize)
	if err != nil {
		return err
	}
	return requireClaim(res)
}

// ReleaseHeldTx moves partySize units held -> available within the
// caller's transaction, when a hold expires or is abandoned.
func (r *PoolRepo) ReleaseHeldTx(ctx context.Context, tx *sql.Tx, poolID uint64, partySize uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE capacity_pools
		 SET held_capacity = held_capacity - ?,
		     available_capacity = available_capacity + ?,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND held_capacity >= ?`,
		partySize, partySize, poolID, partySize)
	if err != nil {
		return err
	}
	return requireClaim(res)
}

// requireClaim maps an unmatched conditional update to the engine's
// insufficient-capacity rejection.
func requireClaim(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrInsufficientCapacity
	}
	return nil
}
