package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/model"
)

// ReservationRepo provides data access to the reservations table.
// Status transitions are conditional updates keyed on the expected
// prior status; an unmatched transition is reported as
// engine.ErrInvalidTransition and doubles as the exactly-once gate the
// engine relies on before releasing ledger claims.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, owner_id, pool_id, table_id, party_size, status,
	special_requests, qr_ticket, checked_in_at, canceled_at, canceled_reason,
	created_at, updated_at`

func scanReservation(scan func(dest ...any) error) (*model.Reservation, error) {
	var res model.Reservation
	var tableID sql.NullInt64
	var special, qrTicket, reason sql.NullString
	var checkedIn, canceled sql.NullTime
	if err := scan(&res.ID, &res.OwnerID, &res.PoolID, &tableID, &res.PartySize, &res.Status,
		&special, &qrTicket, &checkedIn, &canceled, &reason,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if tableID.Valid {
		id := uint64(tableID.Int64)
		res.TableID = &id
	}
	if special.Valid {
		res.SpecialRequests = &special.String
	}
	if qrTicket.Valid {
		res.QRTicket = &qrTicket.String
	}
	if checkedIn.Valid {
		t := checkedIn.Time
		res.CheckedInAt = &t
	}
	if canceled.Valid {
		t := canceled.Time
		res.CanceledAt = &t
	}
	if reason.Valid {
		res.CanceledReason = &reason.String
	}
	return &res, nil
}

// CreateReservation inserts a reservation and fills in the assigned ID.
func (r *ReservationRepo) CreateReservation(ctx context.Context, res *model.Reservation) error {
	var tableID interface{}
	if res.TableID != nil {
		tableID = *res.TableID
	}
	var special interface{}
	if res.SpecialRequests != nil {
		special = *res.SpecialRequests
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations (owner_id, pool_id, table_id, party_size, status, special_requests)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.OwnerID, res.PoolID, tableID, res.PartySize, res.Status, special)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetReservation loads one reservation or returns engine.ErrNotFound.
func (r *ReservationRepo) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	return res, err
}

// ListReservationsByOwner returns the caller's reservations, newest
// first.  An owner with no reservations gets an empty slice, not nil
// rows errors.
func (r *ReservationRepo) ListReservationsByOwner(ctx context.Context, ownerID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// AttachTicket stores the serialized signed payload on the row.
func (r *ReservationRepo) AttachTicket(ctx context.Context, id uint64, blob string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET qr_ticket = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		blob, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkConfirmed transitions pending -> confirmed.
func (r *ReservationRepo) MarkConfirmed(ctx context.Context, id uint64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.ReservationConfirmed, id, model.ReservationPending)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

// MarkCanceled transitions fromStatus -> canceled and records the
// reason.  The status condition makes a concurrent double cancel a
// visible ErrInvalidTransition instead of a silent second release.
func (r *ReservationRepo) MarkCanceled(ctx context.Context, id uint64, fromStatus, reason string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, canceled_at = ?, canceled_reason = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.ReservationCanceled, at.UTC(), reason, id, fromStatus)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

// MarkCheckedIn transitions confirmed -> checked_in and stamps the
// time.  Re-scans are resolved by the engine: it reads the row back and
// returns the original check-in instead of an error.
func (r *ReservationRepo) MarkCheckedIn(ctx context.Context, id uint64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, checked_in_at = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.ReservationCheckedIn, at.UTC(), id, model.ReservationConfirmed)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

// MarkCompleted transitions checked_in -> completed.
func (r *ReservationRepo) MarkCompleted(ctx context.Context, id uint64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.ReservationCompleted, id, model.ReservationCheckedIn)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

// requireTransition maps an unmatched conditional status update to the
// engine's invalid-transition error.
func requireTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrInvalidTransition
	}
	return nil
}

// requireRow maps an unmatched plain update to engine.ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}
