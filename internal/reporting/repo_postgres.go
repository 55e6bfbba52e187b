package reporting

import (
	"context"
	"database/sql"
	"time"

	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/leads"
)

// PostgresRepo reads reporting rows straight from the primary tables.
// Aggregation happens in the service; volumes per org per window are small
// enough that pushing GROUP BYs into SQL is not worth the duplication.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListCalls(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]calls.Call, error) {
	const q = `
SELECT id, organization_id, direction, status, duration_seconds, recording_url, campaign_id, created_at
FROM calls
WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
  AND ($4 = '' OR campaign_id = $4)
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, organizationID, from, to, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		var recordingURL, campaign sql.NullString
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.Direction, &c.Status,
			&c.DurationSeconds, &recordingURL, &campaign, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		c.RecordingURL = recordingURL.String
		c.CampaignID = campaign.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListUsage(ctx context.Context, organizationID string, month, year int) ([]billing.UsageEntry, error) {
	const q = `
SELECT id, organization_id, call_id, kind, delta, month, year, created_at
FROM usage_ledger
WHERE organization_id = $1 AND month = $2 AND year = $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, organizationID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.UsageEntry
	for rows.Next() {
		var e billing.UsageEntry
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.CallID, &e.Kind, &e.Delta,
			&e.Month, &e.Year, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListLeads(ctx context.Context, organizationID string, from, to time.Time) ([]leads.Lead, error) {
	const q = `
SELECT id, organization_id, phone, status, urgency, created_at
FROM leads
WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, organizationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leads.Lead
	for rows.Next() {
		var l leads.Lead
		var urgency sql.NullString
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.Phone, &l.Status, &urgency, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Urgency = urgency.String
		out = append(out, l)
	}
	return out, rows.Err()
}
