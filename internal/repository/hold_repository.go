package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/model"
)

// HoldRepo provides data access to the holds table.  Every method that
// creates or removes a hold moves the matching ledger counters inside
// the same transaction, so a hold row and its held units can never
// drift apart: the row is the idempotency guard for the counters.
type HoldRepo struct {
	db    *sql.DB
	pools *PoolRepo
}

// NewHoldRepo returns a HoldRepo sharing the PoolRepo's database.
func NewHoldRepo(db *sql.DB, pools *PoolRepo) *HoldRepo {
	return &HoldRepo{db: db, pools: pools}
}

const holdColumns = `id, owner_id, pool_id, table_id, party_size, hold_token, created_at, expires_at`

func scanHold(scan func(dest ...any) error) (*model.Hold, error) {
	var h model.Hold
	var tableID sql.NullInt64
	if err := scan(&h.ID, &h.OwnerID, &h.PoolID, &tableID, &h.PartySize,
		&h.HoldToken, &h.CreatedAt, &h.ExpiresAt); err != nil {
		return nil, err
	}
	if tableID.Valid {
		id := uint64(tableID.Int64)
		h.TableID = &id
	}
	return &h, nil
}

// CreateHold claims hold.PartySize units of the pool and inserts the
// hold in one transaction.  The conditional counter update is the
// entire concurrency story: two racing callers both reach the UPDATE,
// the database serializes them, and the loser's WHERE clause no longer
// matches.
func (r *HoldRepo) CreateHold(ctx context.Context, hold *model.Hold) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := r.pools.ReserveHeldTx(ctx, tx, hold.PoolID, hold.PartySize); err != nil {
		return err
	}
	if err := r.insertHoldTx(ctx, tx, hold); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreateTableHold is CreateHold for table-scoped pools.  The best-fit
// candidate query orders eligible tables smallest-first and takes the
// first row that is not locked by a concurrent matcher (FOR UPDATE
// SKIP LOCKED), so selection and locking are one step and two callers
// cannot pick the same table.  Busy tables are excluded by subquery:
// any table with a confirmed or checked-in reservation for this pool,
// or a hold that has not yet expired.
func (r *HoldRepo) CreateTableHold(ctx context.Context, venueID uint64, hold *model.Hold, requiresAccessible bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := r.pools.ReserveHeldTx(ctx, tx, hold.PoolID, hold.PartySize); err != nil {
		return err
	}
	query := `SELECT t.id FROM venue_tables t
		WHERE t.venue_id = ? AND t.is_active = 1 AND t.capacity >= ?`
	args := []interface{}{venueID, hold.PartySize}
	if requiresAccessible {
		query += ` AND t.is_accessible = 1`
	}
	query += `
		AND t.id NOT IN (
			SELECT table_id FROM reservations
			WHERE pool_id = ? AND table_id IS NOT NULL AND status IN ('confirmed', 'checked_in'))
		AND t.id NOT IN (
			SELECT table_id FROM holds
			WHERE pool_id = ? AND table_id IS NOT NULL AND expires_at > UTC_TIMESTAMP())
		ORDER BY t.capacity ASC, t.id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
	args = append(args, hold.PoolID, hold.PoolID)
	var tableID uint64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&tableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.ErrInsufficientCapacity
		}
		return err
	}
	hold.TableID = &tableID
	if err := r.insertHoldTx(ctx, tx, hold); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *HoldRepo) insertHoldTx(ctx context.Context, tx *sql.Tx, hold *model.Hold) error {
	var tableID interface{}
	if hold.TableID != nil {
		tableID = *hold.TableID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO holds (owner_id, pool_id, table_id, party_size, hold_token, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hold.OwnerID, hold.PoolID, tableID, hold.PartySize, hold.HoldToken, hold.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	hold.ID = uint64(id)
	return nil
}

// ConsumeHold deletes a live hold and commits its units held ->
// reserved in one transaction.  An absent or expired hold is reported
// as engine.ErrNotFound; a live hold owned by another caller as
// engine.ErrForbidden.  The row is locked first so two confirmations of
// the same hold serialize and the loser sees no row.
func (r *HoldRepo) ConsumeHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error) {
	return r.takeHold(ctx, holdID, ownerID, r.pools.CommitHeldToReservedTx)
}

// ReleaseHold deletes a live hold owned by the caller and returns its
// units held -> available in one transaction.
func (r *HoldRepo) ReleaseHold(ctx context.Context, holdID, ownerID uint64) (*model.Hold, error) {
	return r.takeHold(ctx, holdID, ownerID, r.pools.ReleaseHeldTx)
}

func (r *HoldRepo) takeHold(ctx context.Context, holdID, ownerID uint64,
	moveCounters func(context.Context, *sql.Tx, uint64, uint32) error) (*model.Hold, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	row := tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = ? AND expires_at > UTC_TIMESTAMP() FOR UPDATE`,
		holdID)
	hold, err := scanHold(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent and expired are indistinguishable on purpose; the
		// sweep reclaims expired rows.
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if hold.OwnerID != ownerID {
		return nil, engine.ErrForbidden
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, holdID); err != nil {
		return nil, err
	}
	if err := moveCounters(ctx, tx, hold.PoolID, hold.PartySize); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return hold, nil
}

// SweepExpired removes every hold past its expiry and returns its
// capacity to the owning pool, one transaction per hold so a large
// backlog cannot hold long locks.  The released holds are returned for
// the waitlist notification path.
func (r *HoldRepo) SweepExpired(ctx context.Context) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM holds WHERE expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	released := make([]model.Hold, 0, len(ids))
	for _, id := range ids {
		hold, err := r.expireOne(ctx, id)
		if err != nil {
			return released, err
		}
		if hold != nil {
			released = append(released, *hold)
		}
	}
	return released, nil
}

// expireOne deletes a single expired hold and releases its units.  A
// nil hold with nil error means another sweeper got there first.
func (r *HoldRepo) expireOne(ctx context.Context, holdID uint64) (*model.Hold, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	row := tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = ? AND expires_at <= UTC_TIMESTAMP() FOR UPDATE`,
		holdID)
	hold, err := scanHold(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, holdID); err != nil {
		return nil, err
	}
	if err := r.pools.ReleaseHeldTx(ctx, tx, hold.PoolID, hold.PartySize); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return hold, nil
}
