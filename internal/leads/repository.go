package leads

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepository implements Repository over database/sql.
//
// NOTE: assumes tables leads (UNIQUE (organization_id, phone)) and
// campaign_contacts.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const leadColumns = `
id, organization_id, phone, name, email, service_requested, urgency, address,
source_call_id, status, created_at, updated_at
`

// UpsertLead inserts or enriches the lead for (organization_id, phone).
// Blank incoming fields never erase known data.
func (r *PostgresRepository) UpsertLead(ctx context.Context, l Lead) (Lead, error) {
	if l.OrganizationID == "" || l.Phone == "" {
		return Lead{}, ErrInvalidArgument
	}

	const q = `
INSERT INTO leads (
  id, organization_id, phone, name, email, service_requested, urgency,
  address, source_call_id, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (organization_id, phone) DO UPDATE SET
  name              = COALESCE(NULLIF(EXCLUDED.name, ''), leads.name),
  email             = COALESCE(NULLIF(EXCLUDED.email, ''), leads.email),
  service_requested = COALESCE(NULLIF(EXCLUDED.service_requested, ''), leads.service_requested),
  urgency           = COALESCE(NULLIF(EXCLUDED.urgency, ''), leads.urgency),
  address           = COALESCE(NULLIF(EXCLUDED.address, ''), leads.address),
  updated_at        = EXCLUDED.updated_at
RETURNING ` + leadColumns

	row := r.db.QueryRowContext(ctx, q,
		l.ID,
		l.OrganizationID,
		l.Phone,
		l.Name,
		l.Email,
		l.ServiceRequested,
		l.Urgency,
		l.Address,
		l.SourceCallID,
		l.Status,
		l.CreatedAt,
		l.UpdatedAt,
	)
	return scanLead(row)
}

func (r *PostgresRepository) UpdateCampaignContactOutcome(ctx context.Context, organizationID, contactID, outcome, callID string, at time.Time) error {
	if organizationID == "" || contactID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE campaign_contacts
SET outcome = COALESCE(NULLIF($3, ''), outcome),
    last_call_id = $4,
    last_call_at = $5,
    updated_at = $5
WHERE organization_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, organizationID, contactID, outcome, callID, at.UTC())
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

func (r *PostgresRepository) GetLead(ctx context.Context, organizationID, leadID string) (Lead, error) {
	const q = `SELECT ` + leadColumns + ` FROM leads WHERE organization_id = $1 AND id = $2`
	l, err := scanLead(r.db.QueryRowContext(ctx, q, organizationID, leadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (r *PostgresRepository) ListLeads(ctx context.Context, organizationID string, limit int) ([]Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + leadColumns + ` FROM leads WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		var name, email, service, urgency, address, sourceCallID sql.NullString
		if err := rows.Scan(
			&l.ID, &l.OrganizationID, &l.Phone, &name, &email, &service,
			&urgency, &address, &sourceCallID, &l.Status, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		l.Name = name.String
		l.Email = email.String
		l.ServiceRequested = service.String
		l.Urgency = urgency.String
		l.Address = address.String
		l.SourceCallID = sourceCallID.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetLeadStatus(ctx context.Context, organizationID, leadID string, status Status, at time.Time) error {
	if !ValidStatus(status) {
		return ErrInvalidArgument
	}
	const q = `UPDATE leads SET status = $3, updated_at = $4 WHERE organization_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, organizationID, leadID, status, at.UTC())
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

func scanLead(row *sql.Row) (Lead, error) {
	var l Lead
	var name, email, service, urgency, address, sourceCallID sql.NullString
	if err := row.Scan(
		&l.ID, &l.OrganizationID, &l.Phone, &name, &email, &service,
		&urgency, &address, &sourceCallID, &l.Status, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}
	l.Name = name.String
	l.Email = email.String
	l.ServiceRequested = service.String
	l.Urgency = urgency.String
	l.Address = address.String
	l.SourceCallID = sourceCallID.String
	return l, nil
}
