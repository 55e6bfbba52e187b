package disputes

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepository implements Repository over the call_disputes table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const disputeColumns = `
id, organization_id, call_id, reason, status, reviewer_notes,
resolved_by, resolved_at, created_at, updated_at
`

func (r *PostgresRepository) Insert(ctx context.Context, d Dispute) error {
	const q = `
INSERT INTO call_disputes (
  id, organization_id, call_id, reason, status, reviewer_notes,
  resolved_by, resolved_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		d.ID,
		d.OrganizationID,
		d.CallID,
		d.Reason,
		d.Status,
		d.ReviewerNotes,
		d.ResolvedBy,
		d.ResolvedAt,
		d.CreatedAt,
		d.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, organizationID, disputeID string) (Dispute, error) {
	const q = `SELECT ` + disputeColumns + ` FROM call_disputes WHERE organization_id = $1 AND id = $2`
	return scanDispute(r.db.QueryRowContext(ctx, q, organizationID, disputeID))
}

// GetAny looks a dispute up without an org filter; admin resolution paths
// know the dispute id but not necessarily the tenant.
func (r *PostgresRepository) GetAny(ctx context.Context, disputeID string) (Dispute, error) {
	const q = `SELECT ` + disputeColumns + ` FROM call_disputes WHERE id = $1`
	return scanDispute(r.db.QueryRowContext(ctx, q, disputeID))
}

func (r *PostgresRepository) FindPendingByCall(ctx context.Context, organizationID, callID string) (Dispute, bool, error) {
	const q = `
SELECT ` + disputeColumns + `
FROM call_disputes
WHERE organization_id = $1 AND call_id = $2 AND status = $3
LIMIT 1
`
	d, err := scanDispute(r.db.QueryRowContext(ctx, q, organizationID, callID, StatusPending))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Dispute{}, false, nil
		}
		return Dispute{}, false, err
	}
	return d, true, nil
}

func (r *PostgresRepository) Update(ctx context.Context, d Dispute) error {
	const q = `
UPDATE call_disputes
SET status = $3, reviewer_notes = $4, resolved_by = $5, resolved_at = $6, updated_at = $7
WHERE organization_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		d.OrganizationID,
		d.ID,
		d.Status,
		d.ReviewerNotes,
		d.ResolvedBy,
		d.ResolvedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, organizationID string, limit int) ([]Dispute, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + disputeColumns + ` FROM call_disputes WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dispute
	for rows.Next() {
		var d Dispute
		var notes, resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(
			&d.ID, &d.OrganizationID, &d.CallID, &d.Reason, &d.Status,
			&notes, &resolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		d.ReviewerNotes = notes.String
		d.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			t := resolvedAt.Time
			d.ResolvedAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDispute(row *sql.Row) (Dispute, error) {
	var d Dispute
	var notes, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&d.ID, &d.OrganizationID, &d.CallID, &d.Reason, &d.Status,
		&notes, &resolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, err
	}
	d.ReviewerNotes = notes.String
	d.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return d, nil
}
