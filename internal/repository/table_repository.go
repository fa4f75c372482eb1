package repository

import (
	"context"
	"database/sql"

	"github.com/matiasvr/matchday-reservation/internal/model"
)

// TableRepo provides data access to venue_tables.  Table selection for
// holds lives in HoldRepo so it can share the claiming transaction;
// this repository only covers provisioning and listing.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo returns a TableRepo bound to the database.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

// CreateBulk inserts multiple tables for a venue in one statement.
// Passing an empty slice has no effect and returns nil.
func (r *TableRepo) CreateBulk(ctx context.Context, tables []model.Table) error {
	if len(tables) == 0 {
		return nil
	}
	query := `INSERT INTO venue_tables (venue_id, capacity, is_accessible, is_active) VALUES `
	args := make([]interface{}, 0, len(tables)*4)
	for i, t := range tables {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, t.VenueID, t.Capacity, t.IsAccessible, t.IsActive)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// ListByVenue returns all active tables of a venue ordered by capacity,
// the same order the matcher considers them in.
func (r *TableRepo) ListByVenue(ctx context.Context, venueID uint64) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, venue_id, capacity, is_accessible, is_active, created_at
		 FROM venue_tables WHERE venue_id = ? AND is_active = 1
		 ORDER BY capacity ASC, id ASC`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []model.Table
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.VenueID, &t.Capacity, &t.IsAccessible, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
