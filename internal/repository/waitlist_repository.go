package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/model"
)

// WaitlistRepo provides data access to the waitlist_entries table.
// Ordering is strictly created_at; the position query counts earlier
// waiting rows rather than maintaining a position column, so removals
// and conversions never require renumbering.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a WaitlistRepo bound to the database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const waitlistColumns = `id, owner_id, pool_id, party_size, requires_accessibility,
	status, created_at, notified_at, notification_expires_at`

func scanWaitlistEntry(scan func(dest ...any) error) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var notifiedAt, windowEnd sql.NullTime
	if err := scan(&e.ID, &e.OwnerID, &e.PoolID, &e.PartySize, &e.RequiresAccessibility,
		&e.Status, &e.CreatedAt, &notifiedAt, &windowEnd); err != nil {
		return nil, err
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		e.NotifiedAt = &t
	}
	if windowEnd.Valid {
		t := windowEnd.Time
		e.NotificationExpiresAt = &t
	}
	return &e, nil
}

// CreateEntry inserts a waiting entry and fills in the assigned ID.
func (r *WaitlistRepo) CreateEntry(ctx context.Context, e *model.WaitlistEntry) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO waitlist_entries (owner_id, pool_id, party_size, requires_accessibility, status)
		 VALUES (?, ?, ?, ?, ?)`,
		e.OwnerID, e.PoolID, e.PartySize, e.RequiresAccessibility, e.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetEntry loads one entry or returns engine.ErrNotFound.
func (r *WaitlistRepo) GetEntry(ctx context.Context, id uint64) (*model.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id)
	e, err := scanWaitlistEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return e, err
}

// FindActiveEntry returns the waiting or notified entry for an
// (owner, pool) pair, used to dedupe joins.
func (r *WaitlistRepo) FindActiveEntry(ctx context.Context, ownerID, poolID uint64) (*model.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE owner_id = ? AND pool_id = ? AND status IN (?, ?)
		 ORDER BY created_at ASC LIMIT 1`,
		ownerID, poolID, model.WaitlistWaiting, model.WaitlistNotified)
	e, err := scanWaitlistEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return e, err
}

// CountWaitingAhead counts waiting entries for the same pool created
// strictly before the given entry.  Ties on created_at break by id so
// the order stays total under burst joins within one timestamp tick.
func (r *WaitlistRepo) CountWaitingAhead(ctx context.Context, e *model.WaitlistEntry) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist_entries
		 WHERE pool_id = ? AND status = ?
		   AND (created_at < ? OR (created_at = ? AND id < ?))`,
		e.PoolID, model.WaitlistWaiting, e.CreatedAt, e.CreatedAt, e.ID).Scan(&n)
	return n, err
}

// DeleteEntry removes an active entry owned by the caller and reports
// whether anything was removed.
func (r *WaitlistRepo) DeleteEntry(ctx context.Context, id, ownerID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM waitlist_entries
		 WHERE id = ? AND owner_id = ? AND status IN (?, ?)`,
		id, ownerID, model.WaitlistWaiting, model.WaitlistNotified)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FirstWaitingFit returns the earliest waiting entry for the pool whose
// party fits in the given free capacity.
func (r *WaitlistRepo) FirstWaitingFit(ctx context.Context, poolID uint64, capacity uint32) (*model.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE pool_id = ? AND status = ? AND party_size <= ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		poolID, model.WaitlistWaiting, capacity)
	e, err := scanWaitlistEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return e, err
}

// MarkNotified transitions waiting -> notified and stamps the advisory
// claim window.  An entry no longer waiting yields engine.ErrNotFound
// so racing notifiers cannot extend an existing window.
func (r *WaitlistRepo) MarkNotified(ctx context.Context, id uint64, notifiedAt, windowEnd time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_entries
		 SET status = ?, notified_at = ?, notification_expires_at = ?
		 WHERE id = ? AND status = ?`,
		model.WaitlistNotified, notifiedAt.UTC(), windowEnd.UTC(), id, model.WaitlistWaiting)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// ExpireNotifications moves notified entries whose claim window has
// passed to expired so later releases move on to the next party.
func (r *WaitlistRepo) ExpireNotifications(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?
		 WHERE status = ? AND notification_expires_at <= ?`,
		model.WaitlistExpired, model.WaitlistNotified, now.UTC())
	return err
}

// MarkConverted closes out any active entry for the (owner, pool) pair
// after the owner claimed capacity through a hold.
func (r *WaitlistRepo) MarkConverted(ctx context.Context, ownerID, poolID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?
		 WHERE owner_id = ? AND pool_id = ? AND status IN (?, ?)`,
		model.WaitlistConverted, ownerID, poolID, model.WaitlistWaiting, model.WaitlistNotified)
	return err
}
